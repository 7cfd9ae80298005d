// Package contenthash computes the content digests that key academic records
// on the ledger. Clients and auditors must derive hashes through this package
// only; the ledger never sees the preimages.
package contenthash

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Sum returns the Keccak-256 digest of data.
func Sum(data []byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	_, _ = hasher.Write(data)

	var digest common.Hash
	hasher.Sum(digest[:0])
	return digest
}

// Fields hashes an ordered list of fields. Each field is prefixed with its
// big-endian uint32 length so boundaries cannot be shifted between fields.
func Fields(fields ...string) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	var prefix [4]byte
	for _, field := range fields {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(field)))
		_, _ = hasher.Write(prefix[:])
		_, _ = hasher.Write([]byte(field))
	}

	var digest common.Hash
	hasher.Sum(digest[:0])
	return digest
}

// QuizHash commits to the quiz content a student answered.
func QuizHash(subjectCode string, questions []string, submittedAt time.Time) common.Hash {
	fields := make([]string, 0, len(questions)+3)
	fields = append(fields, "quiz", subjectCode)
	fields = append(fields, questions...)
	fields = append(fields, timestamp(submittedAt))
	return Fields(fields...)
}

// AnswerHash commits to the answers submitted for a quiz.
func AnswerHash(answers []string, submittedAt time.Time) common.Hash {
	fields := make([]string, 0, len(answers)+2)
	fields = append(fields, "answers")
	fields = append(fields, answers...)
	fields = append(fields, timestamp(submittedAt))
	return Fields(fields...)
}

// ScheduleHash identifies a schedule item.
func ScheduleHash(scheduleID string) common.Hash {
	return Fields("schedule", scheduleID)
}

// StudentHash commits to off-chain student profile data at registration.
func StudentHash(profile ...string) common.Hash {
	fields := make([]string, 0, len(profile)+1)
	fields = append(fields, "student")
	fields = append(fields, profile...)
	return Fields(fields...)
}

func timestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

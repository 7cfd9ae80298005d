package ledgerabi

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

func signedQuizTx(t *testing.T) (Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	tx, err := NewTransaction(1337, from, 4, MethodRecordQuizSubmission, RecordQuizParams{
		StudentAddress: from,
		QuizHash:       common.HexToHash("0x01"),
		AnswerHash:     common.HexToHash("0x02"),
		Score:          85,
		TotalQuestions: 10,
		SubjectCode:    "DSA",
	})
	require.NoError(t, err)

	digest := tx.Digest()
	tx.Signature, err = wallet.SignPersonal(key, digest[:])
	require.NoError(t, err)
	return tx, from
}

func TestTransactionSenderRecoversSigner(t *testing.T) {
	tx, from := signedQuizTx(t)

	sender, err := tx.Sender()
	require.NoError(t, err)
	require.Equal(t, from, sender)
}

func TestTransactionDigestSurvivesJSONRoundTrip(t *testing.T) {
	tx, from := signedQuizTx(t)

	encoded, err := json.MarshalIndent(tx, "", "  ")
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, tx.Digest(), decoded.Digest())

	sender, err := decoded.Sender()
	require.NoError(t, err)
	require.Equal(t, from, sender)
}

func TestTransactionTamperingChangesSender(t *testing.T) {
	tx, _ := signedQuizTx(t)

	tampered := tx
	tampered.Nonce++
	_, err := tampered.Sender()
	require.ErrorIs(t, err, ErrSignerMismatch)

	tampered = tx
	tampered.Params = json.RawMessage(`{"score":100}`)
	_, err = tampered.Sender()
	require.ErrorIs(t, err, ErrSignerMismatch)

	tampered = tx
	tampered.ChainID = 1
	_, err = tampered.Sender()
	require.ErrorIs(t, err, ErrSignerMismatch)
}

func TestIsDuplicate(t *testing.T) {
	require.True(t, IsDuplicate(RevertDuplicateSubmission))
	require.True(t, IsDuplicate(RevertDuplicateCompletion))
	require.True(t, IsDuplicate(RevertAlreadyRegistered))
	require.False(t, IsDuplicate(RevertUnauthorized))
	require.False(t, IsDuplicate(""))
}

// Package ledgerabi defines the wire contract of the identity registry and the
// academic ledger: method names, parameter shapes, event payloads, revert
// codes and the signed transaction envelope. Both the service and its clients
// depend on it so the two sides cannot drift apart.
package ledgerabi

import "github.com/ethereum/go-ethereum/common"

// Contract names.
const (
	ContractRegistry = "registry"
	ContractLedger   = "ledger"
)

// Registry methods.
const (
	MethodRegisterStudent     = "registerStudent"
	MethodRegisterAdmin       = "registerAdmin"
	MethodSetStudentStatus    = "setStudentStatus"
	MethodSetAdminStatus      = "setAdminStatus"
	MethodToggleRegistryState = "toggleRegistryState"
)

// Ledger methods.
const (
	MethodRecordQuizSubmission     = "recordQuizSubmission"
	MethodRecordScheduleCompletion = "recordScheduleCompletion"
	MethodAuthorizeAdmin           = "authorizeAdmin"
	MethodRevokeAdmin              = "revokeAdmin"
	MethodToggleLedgerState        = "toggleLedgerState"
)

// RegisterStudentParams registers a wallet as a student.
type RegisterStudentParams struct {
	StudentHash   common.Hash    `json:"studentHash"`
	WalletAddress common.Address `json:"walletAddress"`
}

// RegisterAdminParams registers a wallet as an administrator with a role label.
type RegisterAdminParams struct {
	WalletAddress common.Address `json:"walletAddress"`
	Role          string         `json:"role" validate:"required,max=64"`
}

// SetStatusParams toggles the active flag of a student or admin record.
type SetStatusParams struct {
	Address common.Address `json:"address"`
	Active  bool           `json:"active"`
}

// RecordQuizParams records one quiz submission for a student.
type RecordQuizParams struct {
	StudentAddress common.Address `json:"studentAddress"`
	QuizHash       common.Hash    `json:"quizHash"`
	AnswerHash     common.Hash    `json:"answerHash"`
	Score          int            `json:"score" validate:"gte=0,lte=100"`
	TotalQuestions int            `json:"totalQuestions" validate:"gte=1,lte=1000"`
	SubjectCode    string         `json:"subjectCode" validate:"required,max=128"`
}

// RecordScheduleParams records one schedule completion for a student.
type RecordScheduleParams struct {
	StudentAddress common.Address `json:"studentAddress"`
	ScheduleHash   common.Hash    `json:"scheduleHash"`
	CreditsEarned  uint64         `json:"creditsEarned" validate:"lte=1000000"`
	ScheduleTitle  string         `json:"scheduleTitle" validate:"max=128"`
}

// AdminParams names an address for admin authorization changes.
type AdminParams struct {
	Address common.Address `json:"address"`
}

// EmptyParams is used by methods without arguments.
type EmptyParams struct{}

package service

import (
	"errors"
	"fmt"
	"html"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

var (
	// ErrUnauthorized indicates the caller lacks the owner or admin privilege.
	ErrUnauthorized = errors.New("caller is not authorized")
	// ErrInvalidAddress indicates a zero or malformed address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAlreadyRegistered indicates the address already has a registry record.
	ErrAlreadyRegistered = errors.New("address already registered")
	// ErrNotFound indicates the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrContractInactive indicates the contract is paused.
	ErrContractInactive = errors.New("contract is not active")
	// ErrDuplicateSubmission indicates the quiz hash is already recorded for the student.
	ErrDuplicateSubmission = errors.New("quiz submission already recorded")
	// ErrDuplicateCompletion indicates the schedule hash is already recorded for the student.
	ErrDuplicateCompletion = errors.New("schedule completion already recorded")
	// ErrInvalidInput indicates parameters failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStudentNotRegistered indicates the student is not an active registry member.
	ErrStudentNotRegistered = errors.New("student is not registered")
	// ErrNotDeployed indicates the contract state has not been created yet.
	ErrNotDeployed = errors.New("contract not deployed")
)

var revertCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, ledgerabi.RevertUnauthorized},
	{ErrInvalidAddress, ledgerabi.RevertInvalidAddress},
	{ErrAlreadyRegistered, ledgerabi.RevertAlreadyRegistered},
	{ErrNotFound, ledgerabi.RevertNotFound},
	{ErrContractInactive, ledgerabi.RevertContractInactive},
	{ErrDuplicateSubmission, ledgerabi.RevertDuplicateSubmission},
	{ErrDuplicateCompletion, ledgerabi.RevertDuplicateCompletion},
	{ErrInvalidInput, ledgerabi.RevertInvalidInput},
	{ErrStudentNotRegistered, ledgerabi.RevertStudentNotRegistered},
}

// RevertCode returns the revert code of a contract error, or "" for other errors.
func RevertCode(err error) string {
	for _, candidate := range revertCodes {
		if errors.Is(err, candidate.err) {
			return candidate.code
		}
	}
	return ""
}

// ErrorForRevertCode maps a stored revert code back to its sentinel.
func ErrorForRevertCode(code string) error {
	for _, candidate := range revertCodes {
		if candidate.code == code {
			return candidate.err
		}
	}
	return nil
}

func revert(err error) error {
	return chain.Revert(RevertCode(err), err)
}

func invalidInput(err error) error {
	return revert(fmt.Errorf("%w: %v", ErrInvalidInput, err))
}

// checkPlainText rejects values that contain markup.
func checkPlainText(policy *bluemonday.Policy, field, value string) error {
	if html.UnescapeString(policy.Sanitize(value)) != value {
		return fmt.Errorf("%s must not contain markup", field)
	}
	return nil
}

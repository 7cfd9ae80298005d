package ledgerabi

// Revert codes carried by reverted receipts.
const (
	RevertUnauthorized         = "Unauthorized"
	RevertInvalidAddress       = "InvalidAddress"
	RevertInvalidInput         = "InvalidInput"
	RevertAlreadyRegistered    = "AlreadyRegistered"
	RevertNotFound             = "NotFound"
	RevertContractInactive     = "ContractInactive"
	RevertDuplicateSubmission  = "DuplicateSubmission"
	RevertDuplicateCompletion  = "DuplicateCompletion"
	RevertStudentNotRegistered = "StudentNotRegistered"
)

// IsDuplicate reports whether a revert code means the record already exists.
// Such reverts are a final "already recorded" state, never worth retrying.
func IsDuplicate(code string) bool {
	switch code {
	case RevertDuplicateSubmission, RevertDuplicateCompletion, RevertAlreadyRegistered:
		return true
	default:
		return false
	}
}

// Receipt statuses.
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
)

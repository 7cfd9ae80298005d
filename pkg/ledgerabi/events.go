package ledgerabi

import "github.com/ethereum/go-ethereum/common"

// Event names emitted by the contracts.
const (
	EventStudentRegistered    = "StudentRegistered"
	EventAdminRegistered      = "AdminRegistered"
	EventQuizRecorded         = "QuizRecorded"
	EventScheduleCompleted    = "ScheduleCompleted"
	EventCreditsUpdated       = "CreditsUpdated"
	EventAdminAuthorized      = "AdminAuthorized"
	EventAdminRevoked         = "AdminRevoked"
	EventContractStateToggled = "ContractStateToggled"
)

// StudentRegistered is emitted once per successful student registration.
type StudentRegistered struct {
	Address     common.Address `json:"address"`
	StudentHash common.Hash    `json:"studentHash"`
	BlockNumber uint64         `json:"blockNumber"`
}

// AdminRegistered is emitted once per successful admin registration.
type AdminRegistered struct {
	Address     common.Address `json:"address"`
	Role        string         `json:"role"`
	BlockNumber uint64         `json:"blockNumber"`
}

// QuizRecorded is emitted once per recorded quiz submission.
type QuizRecorded struct {
	Address     common.Address `json:"address"`
	QuizHash    common.Hash    `json:"quizHash"`
	Score       int            `json:"score"`
	SubjectCode string         `json:"subjectCode"`
	BlockNumber uint64         `json:"blockNumber"`
}

// ScheduleCompleted is emitted once per recorded schedule completion.
type ScheduleCompleted struct {
	Address       common.Address `json:"address"`
	ScheduleHash  common.Hash    `json:"scheduleHash"`
	CreditsEarned uint64         `json:"creditsEarned"`
	ScheduleTitle string         `json:"scheduleTitle"`
}

// CreditsUpdated follows every ScheduleCompleted with the new running total.
type CreditsUpdated struct {
	Address         common.Address `json:"address"`
	NewTotalCredits uint64         `json:"newTotalCredits"`
}

// AdminAuthorization is the payload of AdminAuthorized and AdminRevoked.
type AdminAuthorization struct {
	Address     common.Address `json:"address"`
	BlockNumber uint64         `json:"blockNumber"`
}

// ContractStateToggled reports the new active flag of a contract.
type ContractStateToggled struct {
	Contract string `json:"contract"`
	Active   bool   `json:"active"`
}

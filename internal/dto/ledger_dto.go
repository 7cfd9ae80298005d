package dto

import (
	"time"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// QuizRecordResponse serializes a recorded quiz submission.
type QuizRecordResponse struct {
	StudentAddress string    `json:"student_address"`
	QuizHash       string    `json:"quiz_hash"`
	AnswerHash     string    `json:"answer_hash"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	SubjectCode    string    `json:"subject_code"`
	BlockNumber    uint64    `json:"block_number"`
	TxHash         string    `json:"tx_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewQuizRecordResponses maps stored quiz records preserving order.
func NewQuizRecordResponses(records []models.QuizRecord) []QuizRecordResponse {
	responses := make([]QuizRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, QuizRecordResponse{
			StudentAddress: record.StudentAddress,
			QuizHash:       record.QuizHash,
			AnswerHash:     record.AnswerHash,
			Score:          record.Score,
			TotalQuestions: record.TotalQuestions,
			SubjectCode:    record.SubjectCode,
			BlockNumber:    record.BlockNumber,
			TxHash:         record.TxHash,
			Timestamp:      record.Timestamp,
		})
	}
	return responses
}

// ScheduleCompletionResponse serializes a recorded schedule completion.
type ScheduleCompletionResponse struct {
	StudentAddress      string    `json:"student_address"`
	ScheduleHash        string    `json:"schedule_hash"`
	CreditsEarned       uint64    `json:"credits_earned"`
	ScheduleTitle       string    `json:"schedule_title"`
	BlockNumber         uint64    `json:"block_number"`
	TxHash              string    `json:"tx_hash"`
	CompletionTimestamp time.Time `json:"completion_timestamp"`
}

// NewScheduleCompletionResponses maps stored completions preserving order.
func NewScheduleCompletionResponses(records []models.ScheduleCompletion) []ScheduleCompletionResponse {
	responses := make([]ScheduleCompletionResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, ScheduleCompletionResponse{
			StudentAddress:      record.StudentAddress,
			ScheduleHash:        record.ScheduleHash,
			CreditsEarned:       record.CreditsEarned,
			ScheduleTitle:       record.ScheduleTitle,
			BlockNumber:         record.BlockNumber,
			TxHash:              record.TxHash,
			CompletionTimestamp: record.CompletionTimestamp,
		})
	}
	return responses
}

// CreditsResponse is the credit accumulator of a student.
type CreditsResponse struct {
	StudentAddress     string     `json:"student_address"`
	TotalCredits       uint64     `json:"total_credits"`
	CompletedSchedules uint64     `json:"completed_schedules"`
	QuizzesTaken       uint64     `json:"quizzes_taken"`
	LastUpdated        *time.Time `json:"last_updated,omitempty"`
}

// NewCreditsResponse maps a credit account.
func NewCreditsResponse(account models.CreditAccount) CreditsResponse {
	response := CreditsResponse{
		StudentAddress:     account.StudentAddress,
		TotalCredits:       account.TotalCredits,
		CompletedSchedules: account.CompletedSchedules,
		QuizzesTaken:       account.QuizzesTaken,
	}
	if !account.LastUpdated.IsZero() {
		lastUpdated := account.LastUpdated
		response.LastUpdated = &lastUpdated
	}
	return response
}

// CountResponse carries a single per-student counter.
type CountResponse struct {
	Address string `json:"address"`
	Count   uint64 `json:"count"`
}

// LedgerStatsResponse summarises the academic ledger.
type LedgerStatsResponse struct {
	Owner            string `json:"owner"`
	ContractActive   bool   `json:"contract_active"`
	AuthorizedAdmins int64  `json:"authorized_admins"`
	RequireRegistry  bool   `json:"require_registered_student"`
}

package models

import "time"

// QuizRecord is a write-once quiz submission keyed by (student, quiz hash).
type QuizRecord struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	StudentAddress string    `gorm:"size:42;not null;uniqueIndex:idx_quiz_student_hash,priority:1" json:"student_address"`
	QuizHash       string    `gorm:"size:66;not null;uniqueIndex:idx_quiz_student_hash,priority:2" json:"quiz_hash"`
	AnswerHash     string    `gorm:"size:66;not null" json:"answer_hash"`
	Score          int       `gorm:"not null" json:"score"`
	TotalQuestions int       `gorm:"not null" json:"total_questions"`
	SubjectCode    string    `gorm:"size:128;not null" json:"subject_code"`
	BlockNumber    uint64    `gorm:"not null;index" json:"block_number"`
	TxHash         string    `gorm:"size:66;not null" json:"tx_hash"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
}

// ScheduleCompletion is a write-once schedule completion keyed by (student, schedule hash).
type ScheduleCompletion struct {
	ID                  uint      `gorm:"primaryKey" json:"-"`
	StudentAddress      string    `gorm:"size:42;not null;uniqueIndex:idx_schedule_student_hash,priority:1" json:"student_address"`
	ScheduleHash        string    `gorm:"size:66;not null;uniqueIndex:idx_schedule_student_hash,priority:2" json:"schedule_hash"`
	CreditsEarned       uint64    `gorm:"not null" json:"credits_earned"`
	ScheduleTitle       string    `gorm:"size:128" json:"schedule_title"`
	BlockNumber         uint64    `gorm:"not null;index" json:"block_number"`
	TxHash              string    `gorm:"size:66;not null" json:"tx_hash"`
	CompletionTimestamp time.Time `gorm:"not null" json:"completion_timestamp"`
}

// CreditAccount accumulates per-student totals. It is only ever written in
// the same transaction that inserts the record it accounts for.
type CreditAccount struct {
	StudentAddress     string    `gorm:"primaryKey;size:42" json:"student_address"`
	TotalCredits       uint64    `gorm:"not null" json:"total_credits"`
	CompletedSchedules uint64    `gorm:"not null" json:"completed_schedules"`
	QuizzesTaken       uint64    `gorm:"not null" json:"quizzes_taken"`
	LastBlock          uint64    `gorm:"not null;default:0" json:"last_block"`
	LastUpdated        time.Time `json:"last_updated"`
}

// AuthorizedAdmin marks an address allowed to write records for any student.
type AuthorizedAdmin struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	AdminAddress      string    `gorm:"size:42;uniqueIndex;not null" json:"admin_address"`
	AuthorizedAtBlock uint64    `gorm:"not null" json:"authorized_at_block"`
	CreatedAt         time.Time `json:"created_at"`
}

package models

import "time"

// Judge submission statuses.
const (
	JudgeStatusRunning = "running"
	JudgeStatusSuccess = "success"
	JudgeStatusFailed  = "failed"
)

// JudgeSubmission is the immutable record of one graded submission.
type JudgeSubmission struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ProblemID    uint              `gorm:"index;not null" json:"problem_id"`
	StudentID    uint              `gorm:"index;not null" json:"student_id"`
	Language     string            `gorm:"size:32;not null" json:"language"`
	Code         string            `gorm:"type:text;not null" json:"code"`
	Status       string            `gorm:"size:16;not null;index" json:"status"`
	Score        int               `gorm:"not null;default:0" json:"score"`
	TotalPoints  int               `gorm:"not null;default:0" json:"total_points"`
	CompileError string            `gorm:"type:text" json:"compile_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Problem      Problem           `gorm:"foreignKey:ProblemID" json:"-"`
	TestResults  []JudgeTestResult `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"test_results"`
}

// JudgeTestResult records the verdict for one test case. Output fields stay
// empty for hidden cases.
type JudgeTestResult struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubmissionID   uint      `gorm:"index;not null" json:"submission_id"`
	TestCaseID     uint      `gorm:"index;not null" json:"test_case_id"`
	Position       int       `gorm:"not null" json:"position"`
	IsHidden       bool      `gorm:"not null" json:"is_hidden"`
	Passed         bool      `gorm:"not null" json:"passed"`
	PointWeight    int       `gorm:"not null;default:1" json:"point_weight"`
	Output         string    `gorm:"type:text" json:"output,omitempty"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output,omitempty"`
	RuntimeMs      int64     `gorm:"not null;default:0" json:"runtime_ms"`
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Problem is a judged programming exercise.
type Problem struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	Title            string                      `gorm:"size:255;not null" json:"title"`
	Slug             string                      `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Statement        string                      `gorm:"type:text" json:"statement"`
	AllowedLanguages datatypes.JSONSlice[string] `gorm:"type:json" json:"allowed_languages"`
	CreatedBy        uint                        `gorm:"index" json:"created_by"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	TestCases        []TestCase                  `gorm:"constraint:OnDelete:CASCADE" json:"test_cases,omitempty"`
}

// TestCase is one input/expected-output pair of a problem. Hidden cases are
// never revealed to students.
type TestCase struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProblemID      uint      `gorm:"index;not null" json:"problem_id"`
	Position       int       `gorm:"not null;default:0" json:"position"`
	IsHidden       bool      `gorm:"not null" json:"is_hidden"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	PointWeight    int       `gorm:"not null;default:1" json:"point_weight"`
	TimeoutMs      int       `gorm:"not null;default:0" json:"timeout_ms"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Weight returns the point weight, never less than one.
func (t TestCase) Weight() int {
	if t.PointWeight < 1 {
		return 1
	}
	return t.PointWeight
}

// Timeout returns the per-case override, zero when unset.
func (t TestCase) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

package model

import (
	"strings"
	"time"
)

type CompletionStatus string

const (
	CompletionPending  CompletionStatus = "pending"
	CompletionApproved CompletionStatus = "approved"
	CompletionRejected CompletionStatus = "rejected"
)

// SyntheticTaskPrefix marks task ids that were generated for a submission
// with no backing cleaning task.
const SyntheticTaskPrefix = "temp_"

func IsSyntheticTaskID(id string) bool {
	return strings.HasPrefix(id, SyntheticTaskPrefix)
}

// TaskCompletion is a user's photo evidence that a task was cleaned. Only
// Status, PointsAwarded and ReviewedAt change after creation.
type TaskCompletion struct {
	ID             string           `json:"id"`
	TaskID         string           `json:"task_id"`
	UserID         string           `json:"user_id"`
	UserName       string           `json:"user_name"`
	UserHouse      string           `json:"user_house"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	BeforeImageURL string           `json:"before_image_url"`
	AfterImageURL  string           `json:"after_image_url"`
	Status         CompletionStatus `json:"status"`
	PointsAwarded  int              `json:"points_awarded"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
}

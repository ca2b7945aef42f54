package models

import "time"

// Session statuses. Running is the sole initial state; the other two are
// terminal and never transitioned out of.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Processing outcomes recorded per message.
const (
	ProcessingSuccess = "success"
	ProcessingFailed  = "failed"
	ProcessingSkipped = "skipped"
	ProcessingError   = "error"
)

// RevertPrefix tags sessions recorded by the revert workflow; the suffix is
// the session id that was reverted.
const RevertPrefix = "REVERT:"

// SortingSession is one execution of a sort or revert run.
type SortingSession struct {
	ID              string     `json:"-" bson:"_id,omitempty"`
	SessionID       string     `json:"session_id" bson:"sessionId"`
	Email           string     `json:"-" bson:"email"`
	FlagsUsed       string     `json:"flags_used" bson:"flagsUsed"` // flag names joined by ","
	Status          string     `json:"status" bson:"status"`
	StartTime       time.Time  `json:"start_time" bson:"startTime"`
	EndTime         *time.Time `json:"end_time,omitempty" bson:"endTime,omitempty"`
	TotalEmails     int        `json:"total_emails" bson:"totalEmails"`
	ProcessedEmails int        `json:"processed_emails" bson:"processedEmails"`
	ErrorMessage    string     `json:"error_message,omitempty" bson:"errorMessage,omitempty"`
}

// SessionUpdate is a partial update to a running session. Only the allowed
// fields are enumerated; nil fields are left untouched.
type SessionUpdate struct {
	Status          *string
	TotalEmails     *int
	ProcessedEmails *int
	ErrorMessage    *string
}

// ProcessingLogEntry records the outcome for one message in one run.
// Append-only, written exactly once per message.
type ProcessingLogEntry struct {
	ID              string    `json:"-" bson:"_id,omitempty"`
	SessionID       string    `json:"session_id" bson:"sessionId"`
	MessageID       string    `json:"message_id" bson:"messageId"`
	Subject         string    `json:"subject" bson:"subject"`
	From            string    `json:"from" bson:"from"`
	AssignedLabel   string    `json:"assigned_label,omitempty" bson:"assignedLabel,omitempty"`
	ConfidenceScore float64   `json:"confidence_score" bson:"confidenceScore"`
	Status          string    `json:"status" bson:"status"`
	ErrorDetails    string    `json:"error_details,omitempty" bson:"errorDetails,omitempty"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
}

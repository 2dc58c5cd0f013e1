// Package model defines the core data types of the planner job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobKind represents the workflow a job belongs to.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobKindGeneration builds a new itinerary from a trip survey.
	JobKindGeneration JobKind = "generation"
	// JobKindModification regenerates an existing itinerary.
	JobKindModification JobKind = "modification"
	// JobKindRecommendation produces scored destination recommendations.
	JobKindRecommendation JobKind = "recommendation"

	// JobStatusPending indicates a job is waiting to be dispatched.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates the planner has been asked to work on the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusSuccess indicates the result has been applied.
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailed indicates the job finished without a usable result.
	JobStatusFailed JobStatus = "failed"
)

// RetryLimit is the number of extra delivery attempts a job is granted after
// its first failed one: retry once, then finalize.
const RetryLimit = 1

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env
// and JSON parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jk := JobKind(v)
	if jk.Valid() {
		*k = jk
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is valid.
func (k JobKind) Valid() bool {
	return k == JobKindGeneration || k == JobKindModification || k == JobKindRecommendation
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing ||
		s == JobStatusSuccess || s == JobStatusFailed
}

// Terminal returns true once the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// CanTransition reports whether the state machine permits moving from s to
// next. Terminal states are sticky; processing may fall back to pending on a
// retry grant, and a pending job may still succeed when a late callback
// arrives after a reaper reset.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusSuccess || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusPending || next == JobStatusSuccess || next == JobStatusFailed
	default:
		return false
	}
}

// Job is the persistent state machine for one unit of delegated work.
type Job struct {
	ID           string     `json:"id"                      db:"id"`
	Kind         JobKind    `json:"kind"                    db:"kind"`
	Status       JobStatus  `json:"status"                  db:"status"`
	OwnerID      string     `json:"owner_id"                db:"owner_id"`
	InputRef     string     `json:"input_ref"               db:"input_ref"`
	ResultRef    *string    `json:"result_ref,omitempty"    db:"result_ref"`
	AttemptCount int        `json:"attempt_count"           db:"attempt_count"`
	ErrorCode    *string    `json:"error_code,omitempty"    db:"error_code"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	StartedAt    *time.Time `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"              db:"updated_at"`
}

// RetryBudgetLeft reports whether the job may be reset for one more attempt.
func (j *Job) RetryBudgetLeft() bool {
	return j.AttemptCount <= RetryLimit
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Kind     JobKind `json:"kind"`
	OwnerID  string  `json:"owner_id"`
	InputRef string  `json:"input_ref"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if _, err := uuid.Parse(r.OwnerID); err != nil {
		return errors.New("owner id must be a valid uuid")
	}
	if _, err := uuid.Parse(r.InputRef); err != nil {
		return errors.New("input ref must be a valid uuid")
	}
	return nil
}

// DispatchTask is the queue task pushed at enqueue time and consumed by the
// dispatch worker.
type DispatchTask struct {
	JobID    string  `json:"job_id"`
	InputRef string  `json:"input_ref"`
	Kind     JobKind `json:"kind"`
}

// Validate validates the DispatchTask fields.
func (t *DispatchTask) Validate() error {
	if t.JobID == "" {
		return errors.New("job id is required")
	}
	if t.InputRef == "" {
		return errors.New("input ref is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid job kind: %q", t.Kind)
	}
	return nil
}

// PlannerRequest is the body submitted to the external planner service. The
// planner acknowledges immediately and later POSTs the result to CallbackURL.
type PlannerRequest struct {
	JobID       string          `json:"job_id"`
	Kind        JobKind         `json:"kind"`
	CallbackURL string          `json:"callback_url"`
	Payload     json.RawMessage `json:"payload"`
}

// Callback statuses reported by the planner service.
const (
	CallbackStatusSuccess = "SUCCESS"
	CallbackStatusFailed  = "FAILED"
)

// CallbackError carries the planner's failure code and message.
type CallbackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CallbackRequest is the body the planner delivers to the callback endpoint.
type CallbackRequest struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *CallbackError  `json:"error,omitempty"`
}

// Validate validates the CallbackRequest fields.
func (r *CallbackRequest) Validate() error {
	switch r.Status {
	case CallbackStatusSuccess:
		if len(r.Data) == 0 {
			return errors.New("success callback requires data")
		}
	case CallbackStatusFailed:
		if r.Error == nil || r.Error.Code == "" {
			return errors.New("failure callback requires an error code")
		}
	default:
		return fmt.Errorf("invalid callback status: %q", r.Status)
	}
	return nil
}

// JobNotification is the best-effort message broadcast on the notification
// channel for every terminal transition.
type JobNotification struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	ErrorCode *string   `json:"error_code,omitempty"`
}

// JobStatusResponse is the polling view of a job.
type JobStatusResponse struct {
	Status       JobStatus  `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobStats represents counts of jobs per status for one kind.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
}

// Error codes stamped on jobs by this service (planner-supplied codes pass
// through unchanged).
const (
	// ErrCodeTimeout marks a job whose callback never arrived.
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeInputMissing marks a job whose input aggregate vanished.
	ErrCodeInputMissing = "INPUT_MISSING"
	// ErrCodeEnqueueFailed marks a job whose queue publish failed.
	ErrCodeEnqueueFailed = "ENQUEUE_FAILED"
	// ErrCodeQueueStalled marks a pending job that was never picked up.
	ErrCodeQueueStalled = "QUEUE_STALLED"
)

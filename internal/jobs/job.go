// Package jobs holds the record of each synthesis job this service submitted.
// Records are ephemeral: they live in memory or in Redis under a TTL.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Phase is the orchestration phase of a job.
type Phase string

const (
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseDone       Phase = "done"
)

// Outcome is how a job ended. It is empty until Phase is PhaseDone.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the speech service reported the job as Failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeRejected means the submission itself was refused.
	OutcomeRejected Outcome = "rejected"
	OutcomeCanceled Outcome = "canceled"
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeUnreachable means the job status could not be read.
	OutcomeUnreachable Outcome = "unreachable"
)

type Job struct {
	ID           string  `json:"job_id"`
	Phase        Phase   `json:"phase"`
	Outcome      Outcome `json:"outcome,omitempty"`
	RemoteStatus string  `json:"remote_status,omitempty"`
	ResultURL    string  `json:"video_url,omitempty"`
	// VideoObjectKey locates the archived copy in the storage provider.
	VideoObjectKey string `json:"video_object_key,omitempty"`
	Error          string `json:"error,omitempty"`
	PollCount      int    `json:"poll_count"`

	Voice     string `json:"voice,omitempty"`
	Character string `json:"character,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal outcome.
func (j *Job) Done() bool {
	return j.Phase == PhaseDone
}

// Succeeded reports whether the job finished with a playable result.
func (j *Job) Succeeded() bool {
	return j.Phase == PhaseDone && j.Outcome == OutcomeSucceeded && j.ResultURL != ""
}

// Finish moves j to PhaseDone with outcome o.
func (j *Job) Finish(o Outcome, now time.Time) {
	j.Phase = PhaseDone
	j.Outcome = o
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// Store persists job records. Create refuses an id that already exists,
// Get and Update report a missing id as a NOT_FOUND error.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, j *Job) error
	// FindByResult returns the succeeded job whose result is resultURL.
	FindByResult(ctx context.Context, resultURL string) (*Job, error)
}

// resultDigest keys the result allow-list without storing URLs as keys.
func resultDigest(resultURL string) string {
	sum := sha256.Sum256([]byte(resultURL))
	return hex.EncodeToString(sum[:])
}

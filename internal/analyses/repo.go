package analyses

import (
	"context"
	"time"
)

// Repo persists analysis records. Status updates are guarded: an
// update that would move a record out of sequence (for example
// completing a record that was never claimed) returns
// ErrInvalidTransition instead of overwriting terminal state.
type Repo interface {
	Create(ctx context.Context, a Analysis) error
	GetByID(ctx context.Context, id string) (Analysis, error)

	// MarkProcessing claims a pending or processing record for a
	// worker; terminal records refuse the claim.
	MarkProcessing(ctx context.Context, id string) error
	// MarkCompleted finishes a processing record with its result.
	MarkCompleted(ctx context.Context, id, result string, processingTime float64) error
	// MarkFailed moves a pending or processing record to failed.
	// processingTime may be nil when the record never reached a worker.
	MarkFailed(ctx context.Context, id, errorMessage string, processingTime *float64) error

	// List returns a page of records, newest first, optionally
	// filtered by status, together with the total matching count.
	List(ctx context.Context, status string, skip, limit int) ([]Analysis, int, error)
	Delete(ctx context.Context, id string) error

	// DeleteTerminalBefore removes completed and failed records created
	// before cutoff, returning how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	// FailStaleProcessing fails records stuck in processing since
	// before cutoff, returning how many were reconciled.
	FailStaleProcessing(ctx context.Context, cutoff time.Time, errorMessage string) (int, error)
}

package health

import (
	"context"
	"database/sql"
	"time"

	"bloodtest-backend/internal/queue"
)

const checkTimeout = 2 * time.Second

// Service probes the service's dependencies for the health endpoint.
// A nil DB or queue pinger reports "not configured" without failing
// the overall status, so local setups without a broker stay healthy.
type Service struct {
	DB    *sql.DB
	Queue queue.Pinger
}

// NewService constructs a health service over the given dependencies.
func NewService(db *sql.DB, q queue.Pinger) *Service {
	return &Service{DB: db, Queue: q}
}

// Status is the health endpoint payload.
type Status struct {
	Status    string `json:"status"`
	API       string `json:"api"`
	Database  string `json:"database"`
	Queue     string `json:"queue"`
	Timestamp string `json:"timestamp"`
}

// Check probes each dependency and aggregates the result. Overall
// status is "healthy" only when every configured dependency responds.
func (s *Service) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	out := Status{
		API:       "healthy",
		Database:  "not configured",
		Queue:     "not configured",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	degraded := false
	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			out.Database = "unreachable: " + err.Error()
			degraded = true
		} else {
			out.Database = "healthy"
		}
	}
	if s.Queue != nil {
		if err := s.Queue.Ping(ctx); err != nil {
			out.Queue = "unreachable: " + err.Error()
			degraded = true
		} else {
			out.Queue = "healthy"
		}
	}

	if degraded {
		out.Status = "degraded"
	} else {
		out.Status = "healthy"
	}
	return out
}

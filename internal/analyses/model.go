package analyses

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultQuery is substituted when a submission carries no query text.
const DefaultQuery = "Summarise my Blood Test Report"

// Analysis is the persisted record tracking one submitted blood test
// report through its lifecycle. Exactly one of AnalysisResult and
// ErrorMessage is non-empty once the record reaches a terminal state.
type Analysis struct {
	ID             string     `json:"id"`
	FileName       string     `json:"file_name"`
	OriginalQuery  string     `json:"original_query"`
	Status         string     `json:"status"`
	AnalysisResult string     `json:"analysis_result,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ProcessingTime *float64   `json:"processing_time,omitempty"`
	FileSize       int64      `json:"file_size"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

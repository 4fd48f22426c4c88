package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloodtest-backend/internal/extract"
	"bloodtest-backend/internal/llm"
	"bloodtest-backend/internal/queue"
	"bloodtest-backend/internal/shared/metrics"
	"bloodtest-backend/internal/shared/storage/object"
	"bloodtest-backend/internal/shared/telemetry"
)

const maxErrorMessageLen = 500

// Processor executes one analysis job end to end: claim the record,
// extract the report text, run the model, persist the terminal state.
// The transient report copy is removed best-effort whatever the
// outcome.
type Processor struct {
	Repo  Repo
	Store object.ObjectStore
	LLM   llm.Client

	// SoftTimeLimit bounds the model call; HardTimeLimit bounds the
	// whole job. A job past either limit fails with a timeout message
	// rather than hanging its queue slot.
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration

	// ExtractText reads the stored report and returns its plain text.
	// Overridable so tests can run without PDF fixtures.
	ExtractText func(ctx context.Context, store object.ObjectStore, fileKey string) (string, error)
}

// NewProcessor wires a processor from its dependencies.
func NewProcessor(repo Repo, store object.ObjectStore, client llm.Client, soft, hard time.Duration) *Processor {
	return &Processor{
		Repo:          repo,
		Store:         store,
		LLM:           client,
		SoftTimeLimit: soft,
		HardTimeLimit: hard,
		ExtractText:   extract.ReadReport,
	}
}

// ProcessAnalysis runs one queued job. Domain failures (unreadable
// PDF, model error, timeout) are persisted on the record and return
// nil so the delivery is acked; an error return means no terminal
// outcome could be recorded and the delivery should go back to the
// broker.
func (p *Processor) ProcessAnalysis(ctx context.Context, msg queue.Message) error {
	fields := map[string]any{
		"analysis_id": msg.AnalysisID,
		"task_id":     msg.TaskID,
		"file_key":    msg.FileKey,
	}

	record, err := p.Repo.GetByID(ctx, msg.AnalysisID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			telemetry.Warn("analysis.job_orphaned", fields)
			metrics.IncJobsDropped()
			p.removeArtifact(msg.FileKey, msg.AnalysisID)
			return nil
		}
		return fmt.Errorf("load analysis %s: %w", msg.AnalysisID, err)
	}

	if err := p.Repo.MarkProcessing(ctx, msg.AnalysisID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Redelivered job for a record that already finished.
			telemetry.Info("analysis.job_duplicate", mergeFields(fields, map[string]any{"status": record.Status}))
			metrics.IncJobsDropped()
			p.removeArtifact(msg.FileKey, msg.AnalysisID)
			return nil
		}
		return fmt.Errorf("claim analysis %s: %w", msg.AnalysisID, err)
	}
	metrics.IncJobsStarted()
	telemetry.Info("analysis.processing", fields)

	started := time.Now()
	// A redelivered job needs the stored report, so the artifact
	// survives an interrupted run and is removed on every terminal one.
	keepArtifact := false
	defer func() {
		if !keepArtifact {
			p.removeArtifact(msg.FileKey, msg.AnalysisID)
		}
	}()

	hardCtx, cancelHard := context.WithTimeout(ctx, p.HardTimeLimit)
	defer cancelHard()

	extractText := p.ExtractText
	if extractText == nil {
		extractText = extract.ReadReport
	}
	text, err := extractText(hardCtx, p.Store, msg.FileKey)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			keepArtifact = true
			return fmt.Errorf("analysis %s interrupted: %w", msg.AnalysisID, ctx.Err())
		}
		p.fail(msg.AnalysisID, started, "extraction_error", fmt.Sprintf("failed to read report: %s", sanitizeError(err)), fields)
		return nil
	}

	query := record.OriginalQuery
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	prompt := query + "\n\nHere is the blood test report:\n" + text

	softCtx, cancelSoft := context.WithTimeout(hardCtx, p.SoftTimeLimit)
	defer cancelSoft()

	result, err := p.LLM.Generate(softCtx, prompt)
	if err != nil {
		if deadlineHit(softCtx, err) {
			p.fail(msg.AnalysisID, started, "llm_timeout",
				fmt.Sprintf("analysis timed out after %s", p.SoftTimeLimit), fields)
			return nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			// Shutdown cancelled the call, not the job's own limits.
			// No terminal outcome, so the broker should redeliver.
			keepArtifact = true
			return fmt.Errorf("analysis %s interrupted: %w", msg.AnalysisID, ctx.Err())
		}
		p.fail(msg.AnalysisID, started, "llm_error", fmt.Sprintf("analysis failed: %s", sanitizeError(err)), fields)
		return nil
	}

	elapsed := time.Since(started).Seconds()
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistTimeout)
	defer cancelPersist()
	if err := p.Repo.MarkCompleted(persistCtx, msg.AnalysisID, result, elapsed); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			telemetry.Warn("analysis.complete_refused", mergeFields(fields, map[string]any{"error": err.Error()}))
			metrics.IncJobsDropped()
			return nil
		}
		return fmt.Errorf("complete analysis %s: %w", msg.AnalysisID, err)
	}

	metrics.IncJobsCompleted()
	metrics.ObserveJobDurationSeconds(elapsed)
	telemetry.Info("analysis.completed", mergeFields(fields, map[string]any{
		"processing_time": elapsed,
		"result_len":      len(result),
	}))
	return nil
}

// fail records a terminal failure. Uses a fresh context so a job
// killed by its own deadline can still persist the outcome.
func (p *Processor) fail(analysisID string, started time.Time, reason, message string, fields map[string]any) {
	elapsed := time.Since(started).Seconds()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.Repo.MarkFailed(ctx, analysisID, message, &elapsed); err != nil {
		telemetry.Error("analysis.fail_record_error", mergeFields(fields, map[string]any{
			"reason": reason,
			"error":  err.Error(),
		}))
	}
	metrics.IncJobsFailed()
	metrics.ObserveJobDurationSeconds(elapsed)
	telemetry.Warn("analysis.failed", mergeFields(fields, map[string]any{
		"reason":          reason,
		"message":         message,
		"processing_time": elapsed,
	}))
}

func (p *Processor) removeArtifact(fileKey, analysisID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Store.Remove(ctx, fileKey); err != nil {
		telemetry.Warn("analysis.artifact_cleanup_error", map[string]any{
			"analysis_id": analysisID,
			"file_key":    fileKey,
			"error":       err.Error(),
		})
	}
}

// persistTimeout bounds terminal-state writes, which run on a fresh
// context so they are not cancelled along with the job that produced
// them.
const persistTimeout = 15 * time.Second

func deadlineHit(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// sanitizeError keeps persisted messages single-line and bounded.
func sanitizeError(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

func mergeFields(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

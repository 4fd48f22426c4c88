package analyses

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"bloodtest-backend/internal/queue"
	"bloodtest-backend/internal/shared/storage/object"
	"bloodtest-backend/internal/shared/telemetry"
	"bloodtest-backend/internal/shared/util"
)

// Service owns the submission path: persist the uploaded report,
// create the pending record, and enqueue the job. All submissions go
// through Submit; there is no synchronous processing path.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Queue queue.Client
}

// NewService wires a submission service from its dependencies.
func NewService(repo Repo, store object.ObjectStore, q queue.Client) *Service {
	return &Service{Repo: repo, Store: store, Queue: q}
}

// Receipt is what a successful submission returns to the caller.
type Receipt struct {
	AnalysisID string
	TaskID     string
	FileName   string
	Query      string
	FileSize   int64
}

// Submit validates the upload, stores the file, creates the pending
// record, and enqueues the work item. If enqueueing fails after the
// record exists, the record is failed and the stored file removed so
// nothing is left waiting on a job that will never run.
func (s *Service) Submit(ctx context.Context, fileName, query string, file io.Reader) (Receipt, error) {
	cleanName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidUpload, err.Error())
	}
	if !strings.EqualFold(filepath.Ext(cleanName), ".pdf") {
		return Receipt{}, fmt.Errorf("%w: only PDF files are supported", ErrInvalidUpload)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery
	}

	analysisID := uuid.NewString()
	taskID := uuid.NewString()
	fileKey := fmt.Sprintf("blood_test_report_%s.pdf", uuid.NewString())

	size, err := s.Store.Save(ctx, fileKey, file)
	if err != nil {
		return Receipt{}, fmt.Errorf("store report: %w", err)
	}
	if size == 0 {
		s.removeArtifact(fileKey, analysisID)
		return Receipt{}, fmt.Errorf("%w: uploaded file is empty", ErrInvalidUpload)
	}

	record := Analysis{
		ID:            analysisID,
		FileName:      cleanName,
		OriginalQuery: query,
		Status:        StatusPending,
		FileSize:      size,
	}
	if err := s.Repo.Create(ctx, record); err != nil {
		s.removeArtifact(fileKey, analysisID)
		return Receipt{}, fmt.Errorf("create analysis record: %w", err)
	}

	msg := queue.Message{
		AnalysisID: analysisID,
		TaskID:     taskID,
		FileKey:    fileKey,
		Query:      query,
		FileSize:   size,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		s.failUnqueued(analysisID)
		s.removeArtifact(fileKey, analysisID)
		return Receipt{}, fmt.Errorf("enqueue analysis job: %w", err)
	}

	telemetry.Info("analysis.submitted", map[string]any{
		"analysis_id": analysisID,
		"task_id":     taskID,
		"file_name":   cleanName,
		"file_size":   size,
	})
	return Receipt{
		AnalysisID: analysisID,
		TaskID:     taskID,
		FileName:   cleanName,
		Query:      query,
		FileSize:   size,
	}, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Analysis, error) {
	return s.Repo.GetByID(ctx, id)
}

// List returns a page of records plus the total for the filter.
func (s *Service) List(ctx context.Context, status string, skip, limit int) ([]Analysis, int, error) {
	return s.Repo.List(ctx, status, skip, limit)
}

// Delete removes a record regardless of status. The transient file is
// keyed per job and cleaned up by the worker, so there is nothing else
// to remove here.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

// failUnqueued records that a submission never reached the queue. The
// update is best-effort: the caller already has a failure to report.
func (s *Service) failUnqueued(analysisID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Repo.MarkFailed(ctx, analysisID, "failed to enqueue analysis job", nil); err != nil {
		telemetry.Error("analysis.fail_unqueued_error", map[string]any{
			"analysis_id": analysisID,
			"error":       err.Error(),
		})
	}
}

// removeArtifact drops the stored report copy. Best-effort: a leftover
// file is reclaimed by operators, not by failing the request twice.
func (s *Service) removeArtifact(fileKey, analysisID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.Remove(ctx, fileKey); err != nil {
		telemetry.Warn("analysis.artifact_cleanup_error", map[string]any{
			"analysis_id": analysisID,
			"file_key":    fileKey,
			"error":       err.Error(),
		})
	}
}

package analyses

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedRecord(t *testing.T, repo *MemoryRepo, id, status string) {
	t.Helper()
	err := repo.Create(context.Background(), Analysis{
		ID:            id,
		FileName:      "report.pdf",
		OriginalQuery: DefaultQuery,
		Status:        status,
		FileSize:      1024,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestMemoryRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedRecord(t, repo, "id-1", StatusPending)

	if err := repo.MarkProcessing(ctx, "id-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkCompleted(ctx, "id-1", "all clear", 2.5); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	a, err := repo.GetByID(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != StatusCompleted || a.AnalysisResult != "all clear" {
		t.Fatalf("unexpected record: %+v", a)
	}
	if a.ProcessingTime == nil || *a.ProcessingTime != 2.5 {
		t.Fatalf("expected processing_time 2.5, got %v", a.ProcessingTime)
	}
	if a.ErrorMessage != "" {
		t.Fatalf("completed record must not carry an error message")
	}
}

func TestMemoryRepoGuardsTerminalState(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedRecord(t, repo, "id-1", StatusPending)

	if err := repo.MarkProcessing(ctx, "id-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkFailed(ctx, "id-1", "boom", nil); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := repo.MarkProcessing(ctx, "id-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := repo.MarkCompleted(ctx, "id-1", "late", 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := repo.MarkFailed(ctx, "id-1", "again", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	a, _ := repo.GetByID(ctx, "id-1")
	if a.Status != StatusFailed || a.ErrorMessage != "boom" {
		t.Fatalf("terminal state overwritten: %+v", a)
	}
}

func TestMemoryRepoMarkCompletedRequiresClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedRecord(t, repo, "id-1", StatusPending)

	if err := repo.MarkCompleted(ctx, "id-1", "early", 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMemoryRepoListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	for i, status := range []string{StatusPending, StatusCompleted, StatusFailed, StatusCompleted} {
		id := []string{"a", "b", "c", "d"}[i]
		seedRecord(t, repo, id, status)
	}

	all, total, err := repo.List(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("expected 4 records, got total=%d len=%d", total, len(all))
	}

	completed, total, err := repo.List(ctx, StatusCompleted, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(completed) != 2 {
		t.Fatalf("expected 2 completed, got total=%d len=%d", total, len(completed))
	}

	page, total, err := repo.List(ctx, "", 3, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(page) != 1 {
		t.Fatalf("expected 1 record on last page, got total=%d len=%d", total, len(page))
	}
}

func TestMemoryRepoSweepHelpers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	old := time.Now().UTC().Add(-48 * time.Hour)
	for id, status := range map[string]string{"done": StatusCompleted, "dead": StatusFailed, "stuck": StatusProcessing, "waiting": StatusPending} {
		if err := repo.Create(ctx, Analysis{ID: id, FileName: "r.pdf", Status: status, CreatedAt: old, UpdatedAt: old}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	removed, err := repo.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	failed, err := repo.FailStaleProcessing(ctx, time.Now().UTC().Add(-24*time.Hour), "worker presumed lost")
	if err != nil {
		t.Fatalf("FailStaleProcessing: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 reconciled, got %d", failed)
	}

	a, err := repo.GetByID(ctx, "stuck")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != StatusFailed || a.ErrorMessage != "worker presumed lost" {
		t.Fatalf("unexpected reconciled record: %+v", a)
	}
	if _, err := repo.GetByID(ctx, "waiting"); err != nil {
		t.Fatalf("pending record must survive the sweep: %v", err)
	}
}

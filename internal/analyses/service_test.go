package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"bloodtest-backend/internal/queue"
)

func TestSubmitCreatesPendingRecordAndEnqueues(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	store := newFakeStore()
	q := &fakeQueue{}
	svc := NewService(repo, store, q)

	receipt, err := svc.Submit(ctx, "blood_results.pdf", "What does my cholesterol mean?", strings.NewReader("%PDF-1.4 fake"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := uuid.Parse(receipt.AnalysisID); err != nil {
		t.Fatalf("analysis id is not a uuid: %v", err)
	}
	if receipt.TaskID == receipt.AnalysisID {
		t.Fatalf("task id must be distinct from analysis id")
	}

	a, err := repo.GetByID(ctx, receipt.AnalysisID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != StatusPending {
		t.Fatalf("expected pending record, got %q", a.Status)
	}
	if a.OriginalQuery != "What does my cholesterol mean?" {
		t.Fatalf("unexpected query: %q", a.OriginalQuery)
	}
	if a.FileSize == 0 {
		t.Fatalf("file size not recorded")
	}

	msgs := q.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.AnalysisID != receipt.AnalysisID || msg.TaskID != receipt.TaskID {
		t.Fatalf("message ids do not match receipt: %+v", msg)
	}
	if !strings.HasPrefix(msg.FileKey, "blood_test_report_") || !strings.HasSuffix(msg.FileKey, ".pdf") {
		t.Fatalf("unexpected file key: %q", msg.FileKey)
	}
	if _, ok := store.saved[msg.FileKey]; !ok {
		t.Fatalf("file not stored under message key")
	}
}

func TestSubmitDefaultsEmptyQuery(t *testing.T) {
	svc := NewService(NewMemoryRepo(), newFakeStore(), &fakeQueue{})

	receipt, err := svc.Submit(context.Background(), "report.pdf", "   ", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Query != DefaultQuery {
		t.Fatalf("expected default query, got %q", receipt.Query)
	}
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	svc := NewService(NewMemoryRepo(), newFakeStore(), &fakeQueue{})

	_, err := svc.Submit(context.Background(), "results.docx", "", strings.NewReader("data"))
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
}

func TestSubmitRejectsEmptyFile(t *testing.T) {
	store := newFakeStore()
	svc := NewService(NewMemoryRepo(), store, &fakeQueue{})

	_, err := svc.Submit(context.Background(), "report.pdf", "", strings.NewReader(""))
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
	if len(store.removedKeys()) != 1 {
		t.Fatalf("empty upload artifact not cleaned up")
	}
}

func TestSubmitEnqueueFailureFailsRecordAndCleansUp(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	store := newFakeStore()
	q := &fakeQueue{sendErr: errors.New("broker down")}
	svc := NewService(repo, store, q)

	_, err := svc.Submit(ctx, "report.pdf", "", strings.NewReader("data"))
	if err == nil {
		t.Fatalf("expected error when enqueue fails")
	}

	records, total, err := repo.List(ctx, StatusFailed, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 failed record, got %d", total)
	}
	if records[0].ErrorMessage == "" {
		t.Fatalf("failed record missing error message")
	}
	if len(store.removedKeys()) != 1 {
		t.Fatalf("stored artifact not cleaned up after enqueue failure")
	}
}

func TestConcurrentSubmissionsStayIndependent(t *testing.T) {
	const n = 16

	ctx := context.Background()
	repo := NewMemoryRepo()
	store := newFakeStore()
	q := &fakeQueue{}
	svc := NewService(repo, store, q)

	client := &fakeLLM{fn: func(_ context.Context, prompt string) (string, error) {
		// First prompt line is the caller's query; echo it so each
		// record's result is traceable to its own submission.
		line, _, _ := strings.Cut(prompt, "\n")
		return "answer for " + line, nil
	}}
	p := newTestProcessor(repo, store, client)

	receipts := make([]Receipt, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("query-%d", i)
			r, err := svc.Submit(ctx, "report.pdf", query, strings.NewReader("%PDF-1.4 fake"))
			if err != nil {
				errs <- err
				return
			}
			receipts[i] = r
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Submit: %v", err)
	}

	msgs := q.messages()
	if len(msgs) != n {
		t.Fatalf("expected %d enqueued messages, got %d", n, len(msgs))
	}
	wg = sync.WaitGroup{}
	for _, msg := range msgs {
		wg.Add(1)
		go func(msg queue.Message) {
			defer wg.Done()
			if err := p.ProcessAnalysis(ctx, msg); err != nil {
				t.Errorf("ProcessAnalysis %s: %v", msg.AnalysisID, err)
			}
		}(msg)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, r := range receipts {
		if seen[r.AnalysisID] {
			t.Fatalf("duplicate analysis id %s", r.AnalysisID)
		}
		seen[r.AnalysisID] = true

		a, err := repo.GetByID(ctx, r.AnalysisID)
		if err != nil {
			t.Fatalf("GetByID %s: %v", r.AnalysisID, err)
		}
		if a.Status != StatusCompleted {
			t.Fatalf("record %d: expected completed, got %q (%s)", i, a.Status, a.ErrorMessage)
		}
		want := fmt.Sprintf("answer for query-%d", i)
		if a.AnalysisResult != want {
			t.Fatalf("record %d carries result %q, want %q", i, a.AnalysisResult, want)
		}
		if a.ErrorMessage != "" {
			t.Fatalf("record %d: completed record has error message %q", i, a.ErrorMessage)
		}
	}
}

func TestSubmitStoreFailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	svc := NewService(repo, store, &fakeQueue{})

	_, err := svc.Submit(ctx, "report.pdf", "", strings.NewReader("data"))
	if err == nil {
		t.Fatalf("expected error when store fails")
	}
	_, total, err := repo.List(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no records, got %d", total)
	}
}

package local

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveOpenRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	n, err := store.Save(ctx, "blood_test_report_a.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != int64(len("%PDF-1.4 body")) {
		t.Fatalf("unexpected size: %d", n)
	}

	rc, err := store.Open(ctx, "blood_test_report_a.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "%PDF-1.4 body" {
		t.Fatalf("unexpected content: %q", data)
	}

	if err := store.Remove(ctx, "blood_test_report_a.pdf"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Open(ctx, "blood_test_report_a.pdf"); err == nil {
		t.Fatalf("expected error opening removed object")
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Remove(context.Background(), "never_saved.pdf"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	for _, key := range []string{"../escape.pdf", "/abs.pdf", "."} {
		if _, err := store.Save(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

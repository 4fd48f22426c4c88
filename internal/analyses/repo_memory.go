package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo used for local development and
// tests. It mirrors the Postgres guards on status transitions.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]Analysis
}

// NewMemoryRepo returns an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]Analysis)}
}

func (r *MemoryRepo) Create(_ context.Context, a Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == "" {
		a.Status = StatusPending
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	r.records[a.ID] = a
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.records[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) MarkProcessing(_ context.Context, id string) error {
	return r.update(id, func(a *Analysis) error {
		if IsTerminal(a.Status) {
			return ErrInvalidTransition
		}
		a.Status = StatusProcessing
		return nil
	})
}

func (r *MemoryRepo) MarkCompleted(_ context.Context, id, result string, processingTime float64) error {
	return r.update(id, func(a *Analysis) error {
		if a.Status != StatusProcessing {
			return ErrInvalidTransition
		}
		a.Status = StatusCompleted
		a.AnalysisResult = result
		a.ErrorMessage = ""
		a.ProcessingTime = &processingTime
		return nil
	})
}

func (r *MemoryRepo) MarkFailed(_ context.Context, id, errorMessage string, processingTime *float64) error {
	return r.update(id, func(a *Analysis) error {
		if IsTerminal(a.Status) {
			return ErrInvalidTransition
		}
		a.Status = StatusFailed
		a.ErrorMessage = errorMessage
		a.AnalysisResult = ""
		if processingTime != nil {
			a.ProcessingTime = processingTime
		}
		return nil
	})
}

func (r *MemoryRepo) update(id string, apply func(*Analysis) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	if err := apply(&a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	r.records[id] = a
	return nil
}

func (r *MemoryRepo) List(_ context.Context, status string, skip, limit int) ([]Analysis, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []Analysis
	for _, a := range r.records {
		if status != "" && a.Status != status {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if skip >= total {
		return nil, total, nil
	}
	end := skip + limit
	if end > total {
		end = total
	}
	return all[skip:end], total, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, a := range r.records {
		if IsTerminal(a.Status) && a.CreatedAt.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepo) FailStaleProcessing(_ context.Context, cutoff time.Time, errorMessage string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := 0
	for id, a := range r.records {
		if a.Status == StatusProcessing && a.UpdatedAt.Before(cutoff) {
			a.Status = StatusFailed
			a.ErrorMessage = errorMessage
			a.UpdatedAt = time.Now().UTC()
			r.records[id] = a
			failed++
		}
	}
	return failed, nil
}

var _ Repo = (*MemoryRepo)(nil)

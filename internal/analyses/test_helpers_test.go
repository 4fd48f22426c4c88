package analyses

import (
	"bytes"
	"context"
	"io"
	"sync"

	"bloodtest-backend/internal/queue"
)

// fakeStore is an in-memory object store recording removals.
type fakeStore struct {
	mu        sync.Mutex
	saved     map[string][]byte
	removed   []string
	saveErr   error
	openErr   error
	removeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]byte)}
}

func (s *fakeStore) Save(_ context.Context, storageKey string, r io.Reader) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[storageKey] = data
	return int64(len(data)), nil
}

func (s *fakeStore) Open(_ context.Context, storageKey string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[storageKey]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Remove(_ context.Context, storageKey string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, storageKey)
	s.removed = append(s.removed, storageKey)
	return nil
}

func (s *fakeStore) removedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// fakeQueue records sent messages.
type fakeQueue struct {
	mu      sync.Mutex
	sent    []queue.Message
	sendErr error
}

func (q *fakeQueue) Send(_ context.Context, msg queue.Message) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, msg)
	return nil
}

func (q *fakeQueue) messages() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.sent...)
}

// fakeLLM returns a canned response or delegates to fn.
type fakeLLM struct {
	response string
	err      error
	fn       func(ctx context.Context, prompt string) (string, error)
}

func (l *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if l.fn != nil {
		return l.fn(ctx, prompt)
	}
	if l.err != nil {
		return "", l.err
	}
	return l.response, nil
}

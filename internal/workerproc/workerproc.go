package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"bloodtest-backend/internal/analyses"
	"bloodtest-backend/internal/queue"
)

// MessageMeta captures payload details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingAnalysisID indicates a message missing the analysis id.
type ErrMissingAnalysisID struct {
	Meta   MessageMeta
	TaskID string
}

func (e ErrMissingAnalysisID) Error() string { return "missing analysis id" }

// ErrProcess indicates processing failed after successful parsing.
// Deliveries carrying it should go back to the broker for retry.
type ErrProcess struct {
	AnalysisID string
	TaskID     string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process analysis"
	}
	return "process analysis: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body []byte) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if len(strings.TrimSpace(string(body))) == 0 {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage(body)
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return msg, meta, ErrMissingAnalysisID{Meta: meta, TaskID: msg.TaskID}
	}
	return msg, meta, nil
}

// Malformed reports whether err means the payload itself is bad and
// redelivery can never succeed. Such deliveries are dropped, not
// returned to the broker.
func Malformed(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var missing ErrMissingAnalysisID
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// HandleMessage parses, validates, and processes one queue payload.
func HandleMessage(ctx context.Context, processor *analyses.Processor, body []byte) error {
	if processor == nil {
		return errors.New("analysis processor not configured")
	}

	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}

	if err := processor.ProcessAnalysis(ctx, msg); err != nil {
		return ErrProcess{AnalysisID: msg.AnalysisID, TaskID: msg.TaskID, Err: err}
	}
	return nil
}

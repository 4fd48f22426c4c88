package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"bloodtest-backend/internal/shared/storage/object"
)

// ReadReport pulls the plain text of a stored blood test report PDF.
// Extraction failures are returned as errors; callers decide how to
// record them, they are never folded into the returned text.
func ReadReport(ctx context.Context, store object.ObjectStore, fileKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("read report key=%s: %w", fileKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read report key=%s: read: %w", fileKey, err)
	}

	text, err := FromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("read report key=%s: %w", fileKey, err)
	}
	return text, nil
}

// FromBytes extracts report text from an in-memory PDF payload.
func FromBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty pdf data")
	}

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	text := normalize(buf.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}

// normalize collapses repeated blank lines so the composed prompt stays compact.
func normalize(raw string) string {
	for strings.Contains(raw, "\n\n") {
		raw = strings.ReplaceAll(raw, "\n\n", "\n")
	}
	return strings.TrimSpace(raw)
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbstack/arbengine/internal/domain"
)

// ExecutionLister provides read access to executions for archival. The
// Postgres execution store satisfies it.
type ExecutionLister interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error)
}

// BlobPutter is the narrow upload surface the archiver needs.
type BlobPutter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// ExecutionArchiver moves old execution records to cold storage. It queries
// the execution store for records before a cutoff, serializes them to JSONL,
// and uploads the result as a monthly object. Deletion from the primary
// store is a separate, explicit step after the archive is verified.
type ExecutionArchiver struct {
	writer BlobPutter
	execs  ExecutionLister
	logger *slog.Logger
}

// NewExecutionArchiver creates an ExecutionArchiver.
func NewExecutionArchiver(writer BlobPutter, execs ExecutionLister, logger *slog.Logger) *ExecutionArchiver {
	return &ExecutionArchiver{
		writer: writer,
		execs:  execs,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore uploads all executions started before the cutoff to
// archive/executions/YYYY-MM.jsonl and returns the archived count.
func (a *ExecutionArchiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.execs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(execs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(execs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	count := int64(len(execs))
	a.logger.Info("archived executions",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before))

	return count, nil
}

// Run archives on a fixed interval until the context is cancelled. Records
// older than retention at each tick are moved to cold storage.
func (a *ExecutionArchiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			if _, err := a.ArchiveBefore(ctx, cutoff); err != nil {
				a.logger.Error("archive pass failed", slog.Any("error", err))
			}
		}
	}
}

// archivePath builds the object key, partitioned by the cutoff's year-month.
//
//	archive/executions/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

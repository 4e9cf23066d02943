package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Archiver exports applied settlements to blob storage as month-partitioned
// JSONL objects. Deletion of archived rows from the primary store is a
// separate, explicit step to be run after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	log    domain.SettlementLog
	logger *slog.Logger
}

// NewArchiver creates an Archiver reading from the settlement log and
// writing through the given blob writer.
func NewArchiver(writer domain.BlobWriter, log domain.SettlementLog, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		log:    log,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettlements queries all settlements before the cutoff, serializes
// them to JSONL, and uploads the object to archive/settlements/YYYY-MM.jsonl.
// Returns the number of archived records; zero records means no upload.
func (a *Archiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	settlements, err := a.log.ListSettlementsBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(settlements) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(settlements)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	count := int64(len(settlements))
	a.logger.InfoContext(ctx, "settlements archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/settlements/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON, each
// element one compact line.
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

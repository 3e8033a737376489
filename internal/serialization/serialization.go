// Package serialization exports and imports the upload ledger as JSON,
// for the basingate-ledger operational tool.
package serialization

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/basingate/basingate/internal/ledger"
)

// Version is the export format's schema version, bumped whenever the
// record shape below changes.
const Version = 1

// Record is one exported upload-ledger entry.
type Record struct {
	UploadID string `json:"upload_id"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
}

// Export is the top-level export document.
type Export struct {
	Version int      `json:"version"`
	Uploads []Record `json:"uploads"`
}

// ExportLedger writes every upload currently tracked by l to w as JSON.
func ExportLedger(ctx context.Context, l *ledger.Ledger, w io.Writer) error {
	entries, err := l.All(ctx)
	if err != nil {
		return err
	}

	doc := Export{Version: Version}
	for _, e := range entries {
		doc.Uploads = append(doc.Uploads, Record{
			UploadID: e.UploadID.String(),
			Bucket:   e.Bucket,
			Key:      e.Key,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ImportResult reports how many ledger rows an import applied or skipped.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportLedger reads an Export document from r and re-records each upload
// with l.Begin, which upserts by upload ID; a row already present in the
// ledger with the same ID is counted as skipped rather than an error.
func ImportLedger(ctx context.Context, l *ledger.Ledger, r io.Reader) (*ImportResult, error) {
	var doc Export
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("serialization: decode ledger export: %w", err)
	}

	existing, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.UploadID.String()] = true
	}

	result := &ImportResult{}
	for _, rec := range doc.Uploads {
		if seen[rec.UploadID] {
			result.Skipped++
			continue
		}
		id, err := uuid.Parse(rec.UploadID)
		if err != nil {
			return nil, fmt.Errorf("serialization: invalid upload id %q: %w", rec.UploadID, err)
		}
		if err := l.Begin(ctx, id, rec.Bucket, rec.Key); err != nil {
			return nil, fmt.Errorf("serialization: import upload %s: %w", rec.UploadID, err)
		}
		result.Imported++
	}
	return result, nil
}

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBeginEndAndExpiry(t *testing.T) {
	ctx := context.Background()
	l, err := Open(t.TempDir() + "/ledger.sqlite")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	id := uuid.New()
	if err := l.Begin(ctx, id, "bucket", "key"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	expired, err := l.ExpiredUploads(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpiredUploads: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no expired uploads yet, got %v", expired)
	}

	expired, err = l.ExpiredUploads(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("ExpiredUploads: %v", err)
	}
	if len(expired) != 1 || expired[0].UploadID != id {
		t.Fatalf("expected upload %s to be expired, got %v", id, expired)
	}

	if err := l.End(ctx, id); err != nil {
		t.Fatalf("End: %v", err)
	}
	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected ledger to be empty after End, got %v", all)
	}
}

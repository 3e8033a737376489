package staging

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestWritePartAndRemoveUpload(t *testing.T) {
	dir := t.TempDir()
	root, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	uploadID := uuid.New()
	size, md5Digest, err := root.WritePart(uploadID, 1, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("WritePart: %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
	if len(md5Digest) != 16 {
		t.Errorf("md5 digest length = %d, want 16", len(md5Digest))
	}

	if _, err := os.Stat(root.PartPath(uploadID, 1)); err != nil {
		t.Fatalf("staged part not found: %v", err)
	}

	nums, err := root.PartNumbers(uploadID)
	if err != nil {
		t.Fatalf("PartNumbers: %v", err)
	}
	if len(nums) != 1 || nums[0] != 1 {
		t.Errorf("PartNumbers = %v, want [1]", nums)
	}

	if err := root.RemoveUpload(uploadID); err != nil {
		t.Fatalf("RemoveUpload: %v", err)
	}
	if _, err := os.Stat(root.PartPath(uploadID, 1)); !os.IsNotExist(err) {
		t.Fatalf("part file should be gone, stat err = %v", err)
	}

	// Removing again must be a no-op, matching abort's idempotence.
	if err := root.RemoveUpload(uploadID); err != nil {
		t.Fatalf("RemoveUpload (second call): %v", err)
	}
}

func TestWriteObjectBody(t *testing.T) {
	root, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path, size, _, err := root.WriteObjectBody(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("WriteObjectBody: %v", err)
	}
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged body: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("staged body = %q, want %q", data, "abc")
	}
	if err := root.RemoveFile(path); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
}

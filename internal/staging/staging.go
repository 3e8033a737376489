// Package staging manages the local-filesystem staging area multipart
// parts and in-flight PUT bodies are buffered to before being handed to
// the backend, whose upload API takes a file path rather than a stream.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/basingate/basingate/internal/digest"
)

// Root is a staging directory. The zero value is not usable; construct
// with New.
type Root struct {
	dir string
}

// New ensures dir exists and returns a Root rooted there.
func New(dir string) (*Root, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create root %q: %w", dir, err)
	}
	return &Root{dir: dir}, nil
}

// Dir returns the staging directory path.
func (r *Root) Dir() string { return r.dir }

// partPrefix is the filename prefix shared by every part of one upload,
// used both to name a specific part and to find every part of an upload
// during abort or crash recovery.
func partPrefix(uploadID uuid.UUID) string {
	return fmt.Sprintf(".upload-%s.part-", uploadID)
}

// PartPath returns the path a given part of an upload is staged at.
func (r *Root) PartPath(uploadID uuid.UUID, partNumber int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s%d.json", partPrefix(uploadID), partNumber))
}

// WritePart atomically stages the bytes read from src as the given part,
// returning its size and MD5 digest.
func (r *Root) WritePart(uploadID uuid.UUID, partNumber int, src io.Reader) (size int64, md5Digest []byte, err error) {
	return r.writeAtomic(r.PartPath(uploadID, partNumber), src)
}

// writeAtomic streams src into a temp file in the staging directory,
// fsyncs it, and renames it into place, tee-ing through an MD5 digest
// along the way. This mirrors local.go's PutObject/PutPart exactly.
func (r *Root) writeAtomic(finalPath string, src io.Reader) (size int64, md5Digest []byte, err error) {
	tmp, err := os.CreateTemp(r.dir, ".tmp-*")
	if err != nil {
		return 0, nil, fmt.Errorf("staging: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	dr := digest.NewReader(src)
	n, copyErr := io.Copy(tmp, dr)
	if copyErr != nil {
		tmp.Close()
		return 0, nil, fmt.Errorf("staging: write temp file: %w", copyErr)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, nil, fmt.Errorf("staging: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, nil, fmt.Errorf("staging: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, nil, fmt.Errorf("staging: rename into place: %w", err)
	}

	return n, dr.Sum(), nil
}

// WriteObjectBody atomically stages an object's whole body (a PutObject
// request) to a temp file and returns its path, size, and MD5 digest. The
// caller is responsible for removing the file once the backend upload
// completes.
func (r *Root) WriteObjectBody(src io.Reader) (path string, size int64, md5Digest []byte, err error) {
	name := ".put-" + uuid.NewString() + ".tmp"
	finalPath := filepath.Join(r.dir, name)
	size, md5Digest, err = r.writeAtomic(finalPath, src)
	if err != nil {
		return "", 0, nil, err
	}
	return finalPath, size, md5Digest, nil
}

// OpenPart opens a staged part for reading.
func (r *Root) OpenPart(uploadID uuid.UUID, partNumber int) (*os.File, error) {
	return os.Open(r.PartPath(uploadID, partNumber))
}

// OpenFile reopens a path previously returned by WriteObjectBody for
// reading, e.g. to hand the staged body to AddReader after AddFromPath's
// path-based upload isn't a fit (CopyObject's re-streamed source body).
func (r *Root) OpenFile(path string) (*os.File, error) {
	return os.Open(path)
}

// RemovePart deletes one staged part, if present.
func (r *Root) RemovePart(uploadID uuid.UUID, partNumber int) error {
	err := os.Remove(r.PartPath(uploadID, partNumber))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveFile deletes an arbitrary staged file (used to clean up a
// WriteObjectBody temp file after upload).
func (r *Root) RemoveFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveUpload deletes every staged part belonging to uploadID. Used by
// both AbortMultipartUpload and the crash-recovery sweep; idempotent.
func (r *Root) RemoveUpload(uploadID uuid.UUID) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	prefix := partPrefix(uploadID)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// PartNumbers lists the part numbers currently staged for uploadID, in
// ascending order.
func (r *Root) PartNumbers(uploadID uuid.UUID) ([]int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	prefix := partPrefix(uploadID)
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

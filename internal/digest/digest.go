// Package digest computes S3-style ETags: an MD5 hex digest for a single
// part or object, and the AWS multipart convention (MD5 of the
// concatenated per-part MD5 digests, suffixed with the part count) for a
// completed multipart upload.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Reader wraps an io.Reader, feeding every byte read through an MD5
// hasher. Call Sum after the underlying reader has been fully drained.
type Reader struct {
	r io.Reader
	h hash.Hash
}

// NewReader wraps r so that reads are tee'd into an MD5 hash.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: md5.New()}
}

func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the MD5 digest of everything read so far.
func (d *Reader) Sum() []byte {
	return d.h.Sum(nil)
}

// ObjectETag formats a single-part ETag from an MD5 digest, e.g.
// `"4a944a9af55168f2e2063907c421b061"`.
func ObjectETag(md5Digest []byte) string {
	return fmt.Sprintf("%q", hex.EncodeToString(md5Digest))
}

// Composite accumulates per-part MD5 digests in ascending part order and
// produces the multipart ETag: MD5 of the concatenation of each part's
// MD5 digest bytes, followed by "-<part count>".
type Composite struct {
	h     hash.Hash
	count int
}

// NewComposite returns an empty composite-ETag accumulator.
func NewComposite() *Composite {
	return &Composite{h: md5.New()}
}

// AddPart folds one more part's MD5 digest bytes into the composite hash.
// Parts must be added in ascending part-number order.
func (c *Composite) AddPart(partMD5Digest []byte) {
	c.h.Write(partMD5Digest)
	c.count++
}

// ETag returns the final multipart ETag string, e.g.
// `"af77e80818f1ff6fa731c8877e8b52ec-1"`.
func (c *Composite) ETag() string {
	return fmt.Sprintf("%q", fmt.Sprintf("%s-%d", hex.EncodeToString(c.h.Sum(nil)), c.count))
}

package gateway

import (
	"encoding/xml"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/digest"
	s3err "github.com/basingate/basingate/internal/errors"
	"github.com/basingate/basingate/internal/metrics"
	"github.com/basingate/basingate/internal/xmlutil"
)

// completeMultipartUploadRequest is the XML body of a
// CompleteMultipartUpload request.
type completeMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []completePart `xml:"Part"`
}

type completePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// CreateMultipartUpload names a new upload with a freshly generated UUID.
// There is no backend record of the upload; server-side state is the
// staged part files plus the ledger entry kept for crash-recovery
// bookkeeping.
func (g *Gateway) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("CreateMultipartUpload")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	bucket, key := extractBucketKey(r)
	if _, _, serr := g.resolveBucketAddress(r.Context(), bucket); serr != nil {
		writeErr(w, r, serr)
		return
	}

	id := uuid.New()
	if err := g.ledger.Begin(r.Context(), id, bucket, key); err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}

	xmlutil.RenderInitiateMultipartUpload(w, &xmlutil.InitiateMultipartUploadResult{
		Bucket:   bucket,
		Key:      key,
		UploadID: id.String(),
	})
	guard.Succeed()
}

// UploadPart stages one part's body on the local filesystem and answers
// with the part's MD5 ETag.
func (g *Gateway) UploadPart(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("UploadPart")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	q := r.URL.Query()
	id, serr := parseUploadID(q.Get("uploadId"))
	if serr != nil {
		writeErr(w, r, serr)
		return
	}
	partNumber, err := strconv.Atoi(q.Get("partNumber"))
	if err != nil || partNumber < 1 {
		writeErr(w, r, s3err.ErrInvalidRequest)
		return
	}
	if r.Body == nil || r.ContentLength == 0 {
		writeErr(w, r, s3err.ErrIncompleteBody)
		return
	}

	_, md5Digest, err := g.staging.WritePart(id, partNumber, r.Body)
	if err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}

	etag := digest.ObjectETag(md5Digest)
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	guard.Succeed()
}

// CompleteMultipartUpload consumes the staged parts strictly in ascending
// order starting at 1, concatenating them into a single temp file while
// folding each part's MD5 digest into an outer composite digest, then
// submits the result as one object.
func (g *Gateway) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("CompleteMultipartUpload")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	bucket, key := extractBucketKey(r)
	id, serr := parseUploadID(r.URL.Query().Get("uploadId"))
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	var req completeMultipartUploadRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, s3err.ErrMalformedXML)
		return
	}
	if len(req.Parts) == 0 {
		writeErr(w, r, s3err.ErrInvalidRequest)
		return
	}

	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	tmp, err := os.CreateTemp(g.staging.Dir(), ".complete-*.tmp")
	if err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	composite := digest.NewComposite()
	for i, part := range req.Parts {
		if part.PartNumber != i+1 {
			tmp.Close()
			writeErr(w, r, s3err.ErrInvalidRequest)
			return
		}

		f, err := g.staging.OpenPart(id, part.PartNumber)
		if err != nil {
			tmp.Close()
			writeErr(w, r, s3err.ErrInvalidPart)
			return
		}
		dr := digest.NewReader(f)
		_, copyErr := io.Copy(tmp, dr)
		f.Close()
		if copyErr != nil {
			tmp.Close()
			writeErr(w, r, s3err.Internal(copyErr))
			return
		}
		composite.AddPart(dr.Sum())
		g.staging.RemovePart(id, part.PartNumber)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		writeErr(w, r, s3err.Internal(err))
		return
	}
	if err := tmp.Close(); err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}

	etag := composite.ETag()
	meta := map[string]string{
		backend.MetaLastModified: nowEpoch(),
		backend.MetaETag:         etag,
	}
	if err := g.provider.AddFromPath(r.Context(), g.wallet, addr, key, tmpPath, backend.AddOptions{Metadata: meta}); err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	g.ledger.End(r.Context(), id)

	xmlutil.RenderCompleteMultipartUpload(w, &xmlutil.CompleteMultipartUploadResult{
		Bucket: bucket,
		Key:    key,
		ETag:   etag,
	})
	guard.Succeed()
}

// AbortMultipartUpload removes every staged part file for the upload
// before responding, tolerant of parts that were never uploaded;
// aborting twice is a no-op.
func (g *Gateway) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("AbortMultipartUpload")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	id, serr := parseUploadID(r.URL.Query().Get("uploadId"))
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	if err := g.staging.RemoveUpload(id); err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}
	g.ledger.End(r.Context(), id)

	w.WriteHeader(http.StatusNoContent)
	guard.Succeed()
}

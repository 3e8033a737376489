package gateway

import (
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/digest"
	s3err "github.com/basingate/basingate/internal/errors"
	"github.com/basingate/basingate/internal/metrics"
	"github.com/basingate/basingate/internal/rangespec"
	"github.com/basingate/basingate/internal/xmlutil"
)

// defaultMaxKeys is ListObjects(V2)'s clamp and default.
const defaultMaxKeys = 1000

// PutObject stages the request body to a local temp file while hashing
// it, then submits the file to the backend with etag/last_modified
// metadata.
func (g *Gateway) PutObject(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("PutObject")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	bucket, key := extractBucketKey(r)
	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	if r.Body == nil || r.ContentLength == 0 {
		writeErr(w, r, s3err.ErrIncompleteBody)
		return
	}
	if g.maxSize > 0 && r.ContentLength > g.maxSize {
		writeErr(w, r, s3err.ErrEntityTooLarge)
		return
	}

	path, _, md5Digest, err := g.staging.WriteObjectBody(r.Body)
	if err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}
	defer g.staging.RemoveFile(path)

	etag := digest.ObjectETag(md5Digest)
	meta := mergeMetadata(map[string]string{
		backend.MetaLastModified: nowEpoch(),
		backend.MetaETag:         etag,
	}, extractUserMetadata(r))

	if err := g.provider.AddFromPath(r.Context(), g.wallet, addr, key, path, backend.AddOptions{Metadata: meta}); err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	guard.Succeed()
}

// GetObject streams the backend download through an in-memory pipe: a
// background goroutine drives the backend Get call into the pipe's writer
// end while the response streams the reader end.
func (g *Gateway) GetObject(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("GetObject")
	defer guard.Release()

	bucket, key := extractBucketKey(r)
	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	result, err := g.provider.Query(r.Context(), addr, backend.QueryOptions{
		Prefix:   key,
		StartKey: []byte(key),
		Limit:    1,
	})
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}
	if len(result.Entries) == 0 || string(result.Entries[0].Key) != key {
		writeErr(w, r, s3err.ErrNoSuchKey)
		return
	}
	entry := result.Entries[0]
	size := entry.State.Size
	meta := entry.State.Metadata

	var rangeParam string
	status := http.StatusOK
	contentLength := size

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		spec, perr := rangespec.Parse(rangeHeader)
		if perr != nil {
			writeErr(w, r, perr.(*s3err.S3Error))
			return
		}
		offset, length, oerr := spec.Offsets(size)
		if oerr != nil {
			writeErr(w, r, oerr.(*s3err.S3Error))
			return
		}
		w.Header().Set("Content-Range", rangespec.ContentRangeHeader(offset, length, size))
		// The backend takes the client's range as requested, not the
		// resolved offset/length.
		rangeParam = spec.BackendParam()
		contentLength = length
		status = http.StatusPartialContent
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", meta[backend.MetaETag])
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(parseEpoch(meta[backend.MetaLastModified])))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatUint(contentLength, 10))
	w.WriteHeader(status)
	guard.Succeed()

	pr, pw := io.Pipe()
	go func() {
		getErr := g.provider.Get(r.Context(), addr, key, pw, backend.GetOptions{Range: rangeParam})
		if getErr != nil {
			pw.CloseWithError(getErr)
			return
		}
		pw.Close()
	}()

	if _, err := io.Copy(w, pr); err != nil {
		slog.Error("gateway: GetObject background stream failed", "bucket", bucket, "key", key, "error", err)
	}
}

// HeadObject answers the object's size, content type, ETag, and
// modification time without transferring the body.
func (g *Gateway) HeadObject(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("HeadObject")
	defer guard.Release()

	bucket, key := extractBucketKey(r)
	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	result, err := g.provider.Query(r.Context(), addr, backend.QueryOptions{Prefix: key, StartKey: []byte(key), Limit: 1})
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}
	if len(result.Entries) == 0 || string(result.Entries[0].Key) != key {
		writeErr(w, r, s3err.ErrNoSuchKey)
		return
	}
	entry := result.Entries[0]

	w.Header().Set("Content-Length", strconv.FormatUint(entry.State.Size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", entry.State.Metadata[backend.MetaETag])
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(parseEpoch(entry.State.Metadata[backend.MetaLastModified])))
	w.WriteHeader(http.StatusOK)
	guard.Succeed()
}

// parseCopySource splits the X-Amz-Copy-Source header into bucket and key,
// URL-decoding each component. The access-point ARN form is rejected with
// NotImplemented.
func parseCopySource(header string) (bucket, key string, serr *s3err.S3Error) {
	header = strings.TrimPrefix(header, "/")
	if strings.HasPrefix(header, "arn:") {
		return "", "", s3err.ErrNotImplemented
	}
	idx := strings.IndexByte(header, '/')
	if idx < 0 {
		return "", "", s3err.ErrInvalidArgument
	}
	b, key1 := header[:idx], header[idx+1:]
	decodedBucket, err := url.QueryUnescape(b)
	if err != nil {
		return "", "", s3err.ErrInvalidArgument
	}
	decodedKey, err := url.QueryUnescape(key1)
	if err != nil {
		return "", "", s3err.ErrInvalidArgument
	}
	return decodedBucket, decodedKey, nil
}

// CopyObject streams the source object into a staged temp file and
// re-submits it under the destination key, carrying the source ETag over
// verbatim.
func (g *Gateway) CopyObject(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("CopyObject")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	dstBucket, dstKey := extractBucketKey(r)
	srcBucket, srcKey, serr := parseCopySource(r.Header.Get("X-Amz-Copy-Source"))
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	ctx := r.Context()
	_, srcAddr, serr := g.resolveBucketAddress(ctx, srcBucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}
	_, dstAddr, serr := g.resolveBucketAddress(ctx, dstBucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	srcResult, err := g.provider.Query(ctx, srcAddr, backend.QueryOptions{Prefix: srcKey, StartKey: []byte(srcKey), Limit: 1})
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}
	if len(srcResult.Entries) == 0 || string(srcResult.Entries[0].Key) != srcKey {
		writeErr(w, r, s3err.ErrNoSuchKey)
		return
	}
	srcETag := srcResult.Entries[0].State.Metadata[backend.MetaETag]
	if srcETag == "" {
		writeErr(w, r, s3err.ErrInternalError)
		return
	}

	pr, pw := io.Pipe()
	go func() {
		getErr := g.provider.Get(ctx, srcAddr, srcKey, pw, backend.GetOptions{})
		if getErr != nil {
			pw.CloseWithError(getErr)
			return
		}
		pw.Close()
	}()

	path, size, _, err := g.staging.WriteObjectBody(pr)
	if err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}
	defer g.staging.RemoveFile(path)

	f, err := g.staging.OpenFile(path)
	if err != nil {
		writeErr(w, r, s3err.Internal(err))
		return
	}
	defer f.Close()

	meta := map[string]string{
		backend.MetaLastModified: nowEpoch(),
		backend.MetaETag:         srcETag,
	}
	if err := g.provider.AddReader(ctx, g.wallet, dstAddr, dstKey, f, size, backend.AddOptions{Metadata: meta}); err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	xmlutil.RenderCopyObject(w, &xmlutil.CopyObjectResult{
		LastModified: xmlutil.FormatTimeS3(parseEpoch(meta[backend.MetaLastModified])),
		ETag:         srcETag,
	})
	guard.Succeed()
}

// DeleteObject submits a delete transaction for one key.
func (g *Gateway) DeleteObject(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("DeleteObject")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	bucket, key := extractBucketKey(r)
	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	if err := g.provider.Delete(r.Context(), g.wallet, addr, key); err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
	guard.Succeed()
}

// DeleteObjects deletes the requested keys sequentially; a failure
// partway through aborts the batch with InternalError, leaving
// already-deleted keys deleted.
func (g *Gateway) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("DeleteObjects")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	bucket, _ := extractBucketKey(r)
	_, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	var req xmlutil.DeleteRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, s3err.ErrMalformedXML)
		return
	}

	result := &xmlutil.DeleteResult{}
	for _, obj := range req.Objects {
		if err := g.provider.Delete(r.Context(), g.wallet, addr, obj.Key); err != nil {
			writeErr(w, r, s3err.Internal(err))
			return
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, xmlutil.DeletedItem{Key: obj.Key})
		}
	}

	xmlutil.RenderDeleteResult(w, result)
	guard.Succeed()
}

// ListObjectsV2 pages through a bucket's keys, treating the continuation
// token as the backend's raw start key.
func (g *Gateway) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("ListObjectsV2")
	defer guard.Release()

	bucket, _ := extractBucketKey(r)
	name, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	maxKeys := clampMaxKeys(q.Get("max-keys"))
	continuationToken := q.Get("continuation-token")

	result, err := g.provider.Query(r.Context(), addr, backend.QueryOptions{
		Prefix:    prefix,
		Delimiter: delimiter,
		StartKey:  []byte(continuationToken),
		Limit:     maxKeys,
	})
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	resp := &xmlutil.ListBucketV2Result{
		Name:              name.Alias(),
		Prefix:            prefix,
		Delimiter:         delimiter,
		ContinuationToken: continuationToken,
		MaxKeys:           defaultMaxKeys,
	}
	for _, e := range result.Entries {
		resp.Contents = append(resp.Contents, objectXML(e))
	}
	for _, cp := range result.CommonPrefixes {
		resp.CommonPrefixes = append(resp.CommonPrefixes, xmlutil.CommonPrefix{Prefix: string(cp)})
	}
	resp.KeyCount = len(resp.Contents)
	if len(result.NextKey) > 0 {
		resp.NextContinuationToken = string(result.NextKey)
		resp.IsTruncated = true
	}

	xmlutil.RenderListObjectsV2(w, resp)
	guard.Succeed()
}

// ListObjects issues the same backend query ListObjectsV2 uses and
// projects the result onto v1's marker/next-marker fields.
func (g *Gateway) ListObjects(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("ListObjects")
	defer guard.Release()

	bucket, _ := extractBucketKey(r)
	name, addr, serr := g.resolveBucketAddress(r.Context(), bucket)
	if serr != nil {
		writeErr(w, r, serr)
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	maxKeys := clampMaxKeys(q.Get("max-keys"))
	marker := q.Get("marker")

	result, err := g.provider.Query(r.Context(), addr, backend.QueryOptions{
		Prefix:    prefix,
		Delimiter: delimiter,
		StartKey:  []byte(marker),
		Limit:     maxKeys,
	})
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	resp := &xmlutil.ListBucketResult{
		Name:      name.Alias(),
		Prefix:    prefix,
		Marker:    marker,
		Delimiter: delimiter,
		MaxKeys:   defaultMaxKeys,
	}
	for _, e := range result.Entries {
		resp.Contents = append(resp.Contents, objectXML(e))
	}
	for _, cp := range result.CommonPrefixes {
		resp.CommonPrefixes = append(resp.CommonPrefixes, xmlutil.CommonPrefix{Prefix: string(cp)})
	}
	if len(result.NextKey) > 0 {
		resp.NextMarker = string(result.NextKey)
		resp.IsTruncated = true
	}

	xmlutil.RenderListObjects(w, resp)
	guard.Succeed()
}

func objectXML(e backend.QueryEntry) xmlutil.Object {
	return xmlutil.Object{
		Key:          string(e.Key),
		LastModified: xmlutil.FormatTimeS3(parseEpoch(e.State.Metadata[backend.MetaLastModified])),
		ETag:         e.State.Metadata[backend.MetaETag],
		Size:         int64(e.State.Size),
		StorageClass: "STANDARD",
	}
}

func clampMaxKeys(raw string) int {
	if raw == "" {
		return defaultMaxKeys
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > defaultMaxKeys {
		return defaultMaxKeys
	}
	return n
}

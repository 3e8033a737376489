package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/basingate/basingate/internal/backend/memprovider"
	"github.com/basingate/basingate/internal/ledger"
	"github.com/basingate/basingate/internal/staging"
	"github.com/basingate/basingate/internal/walletaddr"
)

func newTestGateway(t *testing.T, readOnly bool) (*Gateway, walletaddr.Wallet) {
	t.Helper()

	provider := memprovider.New(walletaddr.NetworkTestnet)
	root, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	led, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	var wallet walletaddr.Wallet
	if !readOnly {
		wallet = walletaddr.NewWalletFromAddress(walletaddr.RandomPlaceholder())
	}

	return New(provider, wallet, root, led, walletaddr.NetworkTestnet, 5<<30), wallet
}

func createTestBucket(t *testing.T, g *Gateway, alias string) string {
	t.Helper()
	r := httptest.NewRequest(http.MethodPut, "/"+alias, nil)
	w := httptest.NewRecorder()
	g.CreateBucket(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("CreateBucket(%q): status %d, body %s", alias, w.Code, w.Body.String())
	}
	return g.wallet.Address().String() + "." + alias
}

func TestSingleObjectRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-single-object")

	body := "hello world\n你好世界\n"
	putReq := httptest.NewRequest(http.MethodPut, "/"+bucket+"/sample.txt", strings.NewReader(body))
	putReq.ContentLength = int64(len(body))
	putW := httptest.NewRecorder()
	g.PutObject(putW, putReq)
	if putW.Code != http.StatusOK {
		t.Fatalf("PutObject: status %d, body %s", putW.Code, putW.Body.String())
	}
	etag := putW.Header().Get("ETag")
	if etag != `"4a944a9af55168f2e2063907c421b061"` {
		t.Errorf("PutObject ETag = %q, want the documented digest", etag)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/"+bucket+"/sample.txt", nil)
	getW := httptest.NewRecorder()
	g.GetObject(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("GetObject: status %d, body %s", getW.Code, getW.Body.String())
	}
	if getW.Header().Get("Content-Length") != strconv.Itoa(len(body)) {
		t.Errorf("Content-Length = %q, want %d", getW.Header().Get("Content-Length"), len(body))
	}
	if getW.Body.String() != body {
		t.Errorf("GetObject body = %q, want %q", getW.Body.String(), body)
	}
	if getW.Header().Get("ETag") != etag {
		t.Errorf("GetObject ETag = %q, want %q", getW.Header().Get("ETag"), etag)
	}
}

func TestMultipartSinglePart(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-multipart")

	initReq := httptest.NewRequest(http.MethodPost, "/"+bucket+"/big.bin?uploads", nil)
	initW := httptest.NewRecorder()
	g.CreateMultipartUpload(initW, initReq)
	if initW.Code != http.StatusOK {
		t.Fatalf("CreateMultipartUpload: status %d, body %s", initW.Code, initW.Body.String())
	}

	uploadID := extractTag(initW.Body.String(), "UploadId")
	if uploadID == "" {
		t.Fatalf("CreateMultipartUpload response missing UploadId: %s", initW.Body.String())
	}

	partBody := "abcdefghijklmnopqrstuvwxyz/0123456789/!@#$%^&*();\n"
	uploadURL := "/" + bucket + "/big.bin?" + url.Values{"partNumber": {"1"}, "uploadId": {uploadID}}.Encode()
	uploadReq := httptest.NewRequest(http.MethodPut, uploadURL, strings.NewReader(partBody))
	uploadReq.ContentLength = int64(len(partBody))
	uploadW := httptest.NewRecorder()
	g.UploadPart(uploadW, uploadReq)
	if uploadW.Code != http.StatusOK {
		t.Fatalf("UploadPart: status %d, body %s", uploadW.Code, uploadW.Body.String())
	}

	completeBody := `<CompleteMultipartUpload><Part><PartNumber>1</PartNumber><ETag>` + uploadW.Header().Get("ETag") + `</ETag></Part></CompleteMultipartUpload>`
	completeURL := "/" + bucket + "/big.bin?" + url.Values{"uploadId": {uploadID}}.Encode()
	completeReq := httptest.NewRequest(http.MethodPost, completeURL, strings.NewReader(completeBody))
	completeW := httptest.NewRecorder()
	g.CompleteMultipartUpload(completeW, completeReq)
	if completeW.Code != http.StatusOK {
		t.Fatalf("CompleteMultipartUpload: status %d, body %s", completeW.Code, completeW.Body.String())
	}

	// The ETag is quoted; encoding/xml escapes each quote as &#34;.
	etag := extractTag(completeW.Body.String(), "ETag")
	if etag != "&#34;af77e80818f1ff6fa731c8877e8b52ec-1&#34;" {
		t.Errorf("CompleteMultipartUpload ETag = %q, want the documented composite digest", etag)
	}
}

func TestCopyObjectPreservesETag(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-copy-object")

	body := "hello world"
	putReq := httptest.NewRequest(http.MethodPut, "/"+bucket+"/sample.txt", strings.NewReader(body))
	putReq.ContentLength = int64(len(body))
	putW := httptest.NewRecorder()
	g.PutObject(putW, putReq)
	srcETag := putW.Header().Get("ETag")

	copyReq := httptest.NewRequest(http.MethodPut, "/"+bucket+"/sample-copy.txt", nil)
	copyReq.Header.Set("X-Amz-Copy-Source", "/"+bucket+"/sample.txt")
	copyW := httptest.NewRecorder()
	g.CopyObject(copyW, copyReq)
	if copyW.Code != http.StatusOK {
		t.Fatalf("CopyObject: status %d, body %s", copyW.Code, copyW.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/"+bucket+"/sample-copy.txt", nil)
	getW := httptest.NewRecorder()
	g.GetObject(getW, getReq)
	if getW.Body.String() != body {
		t.Errorf("copy destination body = %q, want %q", getW.Body.String(), body)
	}
	if getW.Header().Get("ETag") != srcETag {
		t.Errorf("copy destination ETag = %q, want source ETag %q", getW.Header().Get("ETag"), srcETag)
	}
}

func TestCreateBucketAlreadyExists(t *testing.T) {
	g, _ := newTestGateway(t, false)
	createTestBucket(t, g, "dup-bucket")

	r := httptest.NewRequest(http.MethodPut, "/dup-bucket", nil)
	w := httptest.NewRecorder()
	g.CreateBucket(w, r)
	if w.Code != http.StatusConflict {
		t.Fatalf("second CreateBucket: status %d, want 409, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "BucketAlreadyExists") {
		t.Errorf("second CreateBucket body = %s, want BucketAlreadyExists", w.Body.String())
	}
}

func TestListObjectsV2WithPrefix(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-list-prefix")

	for _, key := range []string{"this/is/a/test/path/file1.txt", "this/is/a/test/path/file2.txt", "other/file.txt"} {
		r := httptest.NewRequest(http.MethodPut, "/"+bucket+"/"+key, strings.NewReader("x"))
		r.ContentLength = 1
		w := httptest.NewRecorder()
		g.PutObject(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("PutObject(%q): status %d", key, w.Code)
		}
	}

	listURL := "/" + bucket + "?" + url.Values{"list-type": {"2"}, "prefix": {"this/is/a/test/path/"}}.Encode()
	listReq := httptest.NewRequest(http.MethodGet, listURL, nil)
	listW := httptest.NewRecorder()
	g.ListObjectsV2(listW, listReq)
	if listW.Code != http.StatusOK {
		t.Fatalf("ListObjectsV2: status %d, body %s", listW.Code, listW.Body.String())
	}
	body := listW.Body.String()
	if !strings.Contains(body, "file1.txt") || !strings.Contains(body, "file2.txt") {
		t.Errorf("ListObjectsV2 body missing expected keys: %s", body)
	}
	if strings.Contains(body, "other/file.txt") {
		t.Errorf("ListObjectsV2 body unexpectedly includes out-of-prefix key: %s", body)
	}
	if got := extractTag(body, "Name"); got != "test-list-prefix" {
		t.Errorf("ListObjectsV2 Name = %q, want the bucket alias without the owner prefix", got)
	}
}

func TestGetObjectRange(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-ranges")

	body := "0123456789"
	putReq := httptest.NewRequest(http.MethodPut, "/"+bucket+"/ten.bin", strings.NewReader(body))
	putReq.ContentLength = int64(len(body))
	putW := httptest.NewRecorder()
	g.PutObject(putW, putReq)

	cases := []struct {
		rangeHeader string
		wantBody    string
		wantStatus  int
	}{
		{"bytes=0-", "0123456789", http.StatusPartialContent},
		{"bytes=-5", "56789", http.StatusPartialContent},
		{"bytes=-1000", "0123456789", http.StatusPartialContent},
		{"bytes=2-5", "2345", http.StatusPartialContent},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/"+bucket+"/ten.bin", nil)
		r.Header.Set("Range", c.rangeHeader)
		w := httptest.NewRecorder()
		g.GetObject(w, r)
		if w.Code != c.wantStatus {
			t.Errorf("range %q: status %d, want %d", c.rangeHeader, w.Code, c.wantStatus)
		}
		if w.Body.String() != c.wantBody {
			t.Errorf("range %q: body %q, want %q", c.rangeHeader, w.Body.String(), c.wantBody)
		}
	}
}

func TestReadOnlyModeRejectsMutations(t *testing.T) {
	g, _ := newTestGateway(t, true)
	if !g.ReadOnly() {
		t.Fatal("gateway constructed without a wallet should be ReadOnly")
	}

	cases := []struct {
		name string
		call func(w http.ResponseWriter, r *http.Request)
		req  *http.Request
	}{
		{"CreateBucket", g.CreateBucket, httptest.NewRequest(http.MethodPut, "/somebucket", nil)},
		{"PutObject", g.PutObject, httptest.NewRequest(http.MethodPut, "/0xabc.somebucket/key", strings.NewReader("x"))},
		{"DeleteObject", g.DeleteObject, httptest.NewRequest(http.MethodDelete, "/0xabc.somebucket/key", nil)},
		{"CreateMultipartUpload", g.CreateMultipartUpload, httptest.NewRequest(http.MethodPost, "/0xabc.somebucket/key?uploads", nil)},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		c.call(w, c.req)
		if w.Code != http.StatusNotImplemented {
			t.Errorf("%s in read-only mode: status %d, want 501, body %s", c.name, w.Code, w.Body.String())
		}
	}
}

func TestAbortMultipartIdempotent(t *testing.T) {
	g, _ := newTestGateway(t, false)
	bucket := createTestBucket(t, g, "test-abort")

	initReq := httptest.NewRequest(http.MethodPost, "/"+bucket+"/obj.bin?uploads", nil)
	initW := httptest.NewRecorder()
	g.CreateMultipartUpload(initW, initReq)
	uploadID := extractTag(initW.Body.String(), "UploadId")

	partReq := httptest.NewRequest(http.MethodPut, "/"+bucket+"/obj.bin?"+url.Values{"partNumber": {"1"}, "uploadId": {uploadID}}.Encode(), strings.NewReader("x"))
	partReq.ContentLength = 1
	partW := httptest.NewRecorder()
	g.UploadPart(partW, partReq)
	if partW.Code != http.StatusOK {
		t.Fatalf("UploadPart: status %d", partW.Code)
	}

	for i := 0; i < 2; i++ {
		abortReq := httptest.NewRequest(http.MethodDelete, "/"+bucket+"/obj.bin?"+url.Values{"uploadId": {uploadID}}.Encode(), nil)
		abortW := httptest.NewRecorder()
		g.AbortMultipartUpload(abortW, abortReq)
		if abortW.Code != http.StatusNoContent {
			t.Errorf("abort #%d: status %d, want 204, body %s", i, abortW.Code, abortW.Body.String())
		}
	}

	nums, err := g.staging.PartNumbers(mustParseUUID(t, uploadID))
	if err != nil {
		t.Fatalf("PartNumbers: %v", err)
	}
	if len(nums) != 0 {
		t.Errorf("part numbers after abort = %v, want none", nums)
	}
}

// extractTag pulls the text content of the first occurrence of a simple
// (non-nested, no-attribute) XML tag, good enough for these assertions
// without pulling in a full XML decode.
func extractTag(body, tag string) string {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	start := strings.Index(body, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(body[start:], close)
	if end < 0 {
		return ""
	}
	return body[start : start+end]
}

func mustParseUUID(t *testing.T, s string) (id [16]byte) {
	t.Helper()
	parsed, err := parseUploadID(s)
	if err != nil {
		t.Fatalf("parseUploadID(%q): %v", s, err)
	}
	return parsed
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/basingate/basingate/internal/backend/memprovider"
	"github.com/basingate/basingate/internal/config"
	"github.com/basingate/basingate/internal/gateway"
	"github.com/basingate/basingate/internal/ledger"
	"github.com/basingate/basingate/internal/metrics"
	"github.com/basingate/basingate/internal/staging"
	"github.com/basingate/basingate/internal/walletaddr"
)

func init() {
	// Register metrics once for the entire test binary so the full
	// middleware chain can record without panicking.
	metrics.Register()
}

// newTestServer creates a Server over an in-memory backend with auth
// disabled, wired through the same construction path main uses.
func newTestServer(t *testing.T, cfg *config.Config) *Server {
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

	wallet := walletaddr.NewWalletFromAddress(walletaddr.RandomPlaceholder())
	gw := gateway.New(provider, wallet, root, led, walletaddr.NetworkTestnet, 5<<30)

	srv, err := New(cfg, gw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func defaultTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 9011},
	}
}

// testRequest performs a request against the full middleware chain.
func testRequest(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig())
	rec := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET /health body unmarshal error: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("GET /health status = %q, want %q", body["status"], "ok")
	}
}

func TestCommonHeaders(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig())
	rec := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("x-amz-request-id") == "" {
		t.Error("response missing x-amz-request-id header")
	}
	if rec.Header().Get("Server") != "Basingate" {
		t.Errorf("Server header = %q, want Basingate", rec.Header().Get("Server"))
	}
}

func TestDispatchPutGetRoundTrip(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig())

	createRec := testRequest(t, srv, httptest.NewRequest(http.MethodPut, "/round-trip", nil))
	if createRec.Code != http.StatusOK {
		t.Fatalf("PUT /round-trip status = %d, body %s", createRec.Code, createRec.Body.String())
	}

	putReq := httptest.NewRequest(http.MethodPut, "/round-trip/hello.txt", strings.NewReader("hello"))
	putReq.ContentLength = 5
	putRec := testRequest(t, srv, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT object status = %d, body %s", putRec.Code, putRec.Body.String())
	}

	getRec := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/round-trip/hello.txt", nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET object status = %d, body %s", getRec.Code, getRec.Body.String())
	}
	if getRec.Body.String() != "hello" {
		t.Errorf("GET object body = %q, want %q", getRec.Body.String(), "hello")
	}
}

func TestDispatchUnknownServiceVerb(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig())
	rec := testRequest(t, srv, httptest.NewRequest(http.MethodDelete, "/", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("DELETE / status = %d, want 501", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NotImplemented") {
		t.Errorf("DELETE / body = %s, want NotImplemented error", rec.Body.String())
	}
}

func TestVirtualHostRewrite(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Server.BaseDomain = "s3.example.com"
	srv := newTestServer(t, cfg)

	createRec := testRequest(t, srv, httptest.NewRequest(http.MethodPut, "/vhost-bucket", nil))
	if createRec.Code != http.StatusOK {
		t.Fatalf("create bucket status = %d, body %s", createRec.Code, createRec.Body.String())
	}

	// PUT via virtual-hosted style: the bucket lives in the Host header.
	putReq := httptest.NewRequest(http.MethodPut, "/greeting.txt", strings.NewReader("hi"))
	putReq.Host = "vhost-bucket.s3.example.com"
	putReq.ContentLength = 2
	putRec := testRequest(t, srv, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("virtual-hosted PUT status = %d, body %s", putRec.Code, putRec.Body.String())
	}

	// The object must be visible path-style under the same bucket.
	getRec := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/vhost-bucket/greeting.txt", nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("path-style GET status = %d, body %s", getRec.Code, getRec.Body.String())
	}
	if getRec.Body.String() != "hi" {
		t.Errorf("GET body = %q, want %q", getRec.Body.String(), "hi")
	}
}

func TestTransferEncodingRejected(t *testing.T) {
	srv := newTestServer(t, defaultTestConfig())

	req := httptest.NewRequest(http.MethodPut, "/some-bucket/key", strings.NewReader("x"))
	req.TransferEncoding = []string{"identity"}
	rec := testRequest(t, srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("identity Transfer-Encoding status = %d, want 400", rec.Code)
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Auth = config.AuthConfig{
		Enabled:   true,
		AccessKey: "basingate",
		SecretKey: "basingate-secret",
		Region:    "us-east-1",
	}
	srv := newTestServer(t, cfg)

	// Unauthenticated S3 request is denied; /health stays open.
	rec := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("unauthenticated GET / status = %d, want 403", rec.Code)
	}
	health := testRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Errorf("GET /health with auth enabled status = %d, want 200", health.Code)
	}
}

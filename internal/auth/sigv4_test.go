package auth

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"
)

// testCredential is the single pair every test verifier is configured with.
var testCredential = Credential{
	AccessKeyID: "basingate",
	SecretKey:   "basingate-secret",
	OwnerID:     "basingate",
	DisplayName: "basingate",
}

func newTestVerifier() *SigV4Verifier {
	return NewSigV4Verifier(testCredential, "us-east-1")
}

// signRequest signs an HTTP request using SigV4 header-based auth.
func signRequest(r *http.Request, accessKey, secretKey, region string, signTime time.Time) {
	amzDate := signTime.UTC().Format(amzDateFormat)
	dateStr := signTime.UTC().Format(amzDateShort)

	r.Header.Set("X-Amz-Date", amzDate)

	if r.Header.Get("X-Amz-Content-Sha256") == "" {
		r.Header.Set("X-Amz-Content-Sha256", unsignedPayload)
	}

	// Signed headers: host plus every x-amz-* header present.
	signedHeaderNames := []string{"host"}
	for key := range r.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-amz-") {
			signedHeaderNames = append(signedHeaderNames, lower)
		}
	}
	sort.Strings(signedHeaderNames)

	canonReq := buildCanonicalRequest(r, signedHeaderNames)
	scope := fmt.Sprintf("%s/%s/%s/%s", dateStr, region, service, scopeTerminator)
	strToSign := buildStringToSign(amzDate, scope, canonReq)

	signingKey := deriveSigningKey(secretKey, dateStr, region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, strToSign))

	credential := fmt.Sprintf("%s/%s/%s/%s/%s", accessKey, dateStr, region, service, scopeTerminator)
	r.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s, SignedHeaders=%s, Signature=%s",
		algorithm, credential, strings.Join(signedHeaderNames, ";"), signature))
}

func TestVerifyRequestValid(t *testing.T) {
	v := newTestVerifier()
	req := httptest.NewRequest(http.MethodGet, "/some-bucket/some-key", nil)
	signRequest(req, testCredential.AccessKeyID, testCredential.SecretKey, v.Region, time.Now())

	cred, err := v.VerifyRequest(req)
	if err != nil {
		t.Fatalf("VerifyRequest: %v", err)
	}
	if cred.AccessKeyID != testCredential.AccessKeyID {
		t.Errorf("AccessKeyID = %q, want %q", cred.AccessKeyID, testCredential.AccessKeyID)
	}
}

func TestVerifyRequestWrongSecret(t *testing.T) {
	v := newTestVerifier()
	req := httptest.NewRequest(http.MethodGet, "/some-bucket/some-key", nil)
	signRequest(req, testCredential.AccessKeyID, "not-the-secret", v.Region, time.Now())

	_, err := v.VerifyRequest(req)
	authErr, ok := err.(*AuthError)
	if !ok || authErr.Code != "SignatureDoesNotMatch" {
		t.Fatalf("VerifyRequest err = %v, want SignatureDoesNotMatch", err)
	}
}

func TestVerifyRequestUnknownAccessKey(t *testing.T) {
	v := newTestVerifier()
	req := httptest.NewRequest(http.MethodGet, "/some-bucket", nil)
	signRequest(req, "who-is-this", "whatever", v.Region, time.Now())

	_, err := v.VerifyRequest(req)
	authErr, ok := err.(*AuthError)
	if !ok || authErr.Code != "InvalidAccessKeyId" {
		t.Fatalf("VerifyRequest err = %v, want InvalidAccessKeyId", err)
	}
}

func TestVerifyRequestSkewedClock(t *testing.T) {
	v := newTestVerifier()
	req := httptest.NewRequest(http.MethodGet, "/some-bucket", nil)
	signRequest(req, testCredential.AccessKeyID, testCredential.SecretKey, v.Region, time.Now().Add(-time.Hour))

	_, err := v.VerifyRequest(req)
	authErr, ok := err.(*AuthError)
	if !ok || authErr.Code != "RequestTimeTooSkewed" {
		t.Fatalf("VerifyRequest err = %v, want RequestTimeTooSkewed", err)
	}
}

func TestDetectAuthMethod(t *testing.T) {
	header := httptest.NewRequest(http.MethodGet, "/b", nil)
	header.Header.Set("Authorization", algorithm+" Credential=...")
	if got := DetectAuthMethod(header); got != "header" {
		t.Errorf("DetectAuthMethod(header auth) = %q, want header", got)
	}

	presigned := httptest.NewRequest(http.MethodGet, "/b?X-Amz-Algorithm="+algorithm, nil)
	if got := DetectAuthMethod(presigned); got != "presigned" {
		t.Errorf("DetectAuthMethod(query auth) = %q, want presigned", got)
	}

	both := httptest.NewRequest(http.MethodGet, "/b?X-Amz-Algorithm="+algorithm, nil)
	both.Header.Set("Authorization", algorithm+" Credential=...")
	if got := DetectAuthMethod(both); got != "ambiguous" {
		t.Errorf("DetectAuthMethod(both) = %q, want ambiguous", got)
	}

	if got := DetectAuthMethod(httptest.NewRequest(http.MethodGet, "/b", nil)); got != "none" {
		t.Errorf("DetectAuthMethod(neither) = %q, want none", got)
	}
}

func TestPresignedRejectedByMiddleware(t *testing.T) {
	v := newTestVerifier()
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached for a presigned request")
	}))

	req := httptest.NewRequest(http.MethodGet, "/b/k?X-Amz-Algorithm="+algorithm, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("presigned request status = %d, want 501", rec.Code)
	}
}

func TestURIEncode(t *testing.T) {
	tests := []struct {
		in          string
		encodeSlash bool
		want        string
	}{
		{"simple", true, "simple"},
		{"with space", true, "with%20space"},
		{"a/b/c", false, "a/b/c"},
		{"a/b/c", true, "a%2Fb%2Fc"},
		{"unreserved-._~", true, "unreserved-._~"},
		{"你好", true, "%E4%BD%A0%E5%A5%BD"},
	}
	for _, tt := range tests {
		if got := URIEncode(tt.in, tt.encodeSlash); got != tt.want {
			t.Errorf("URIEncode(%q, %v) = %q, want %q", tt.in, tt.encodeSlash, got, tt.want)
		}
	}
}

// Package server implements the Basingate HTTP server and S3-compatible route multiplexer.
package server

import (
	"context"
	"net/http"

	"github.com/basingate/basingate/internal/auth"
	"github.com/basingate/basingate/internal/config"
	s3err "github.com/basingate/basingate/internal/errors"
	"github.com/basingate/basingate/internal/gateway"
	"github.com/basingate/basingate/internal/xmlutil"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Basingate HTTP server. It routes incoming requests to the
// gateway's S3 operation engine based on the request method and path.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	verifier   *auth.SigV4Verifier
	gw         *gateway.Gateway
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a new Server wired against gw, registering every S3-compatible
// route on a Chi router with Huma for auxiliary endpoints. If cfg.Auth is
// enabled, requests are required to carry a valid SigV4 signature checked
// against the single configured access/secret pair.
func New(cfg *config.Config, gw *gateway.Gateway) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("Basingate S3 Gateway", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
		gw:     gw,
	}

	if cfg.Auth.Enabled {
		cred := auth.Credential{
			AccessKeyID: cfg.Auth.AccessKey,
			SecretKey:   cfg.Auth.SecretKey,
			OwnerID:     cfg.Auth.AccessKey,
			DisplayName: cfg.Auth.AccessKey,
		}
		s.verifier = auth.NewSigV4Verifier(cred, cfg.Auth.Region)
	}

	s.registerRoutes()
	return s, nil
}

// handler assembles the full middleware chain around the router:
// metricsMiddleware -> commonHeaders -> transferEncodingCheck -> authMiddleware -> metadataHeaderMiddleware -> virtualHostRewrite -> router.
func (s *Server) handler() http.Handler {
	var handler http.Handler = s.router
	// Map virtual-hosted-style requests onto path-style ones. Must run after
	// auth so SigV4 verifies against the path the client actually signed.
	handler = virtualHostRewrite(s.cfg.Server.BaseDomain, handler)
	// Rewrite x-amz-meta-* headers to lowercase.
	handler = metadataHeaderMiddleware(handler)
	// Wrap with auth middleware if verifier is available.
	if s.verifier != nil {
		handler = auth.Middleware(s.verifier)(handler)
	}
	handler = transferEncodingCheck(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
// Huma routes (/health, /docs, /openapi.json) and /metrics are registered first.
// The S3 catch-all /* is registered last. Chi matches more specific routes first.
func (s *Server) registerRoutes() {
	// Register /health via Huma for auto-OpenAPI documentation.
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the Basingate gateway.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Register HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	// Register /metrics via promhttp.Handler().
	s.router.Handle("/metrics", promhttp.Handler())

	// S3 catch-all: all remaining requests go through the dispatch function.
	// Chi matches more specific routes (health, docs, metrics, openapi) first,
	// then falls through to the catch-all.
	s.router.HandleFunc("/*", s.dispatch)
}

// parsePath extracts bucket and object key from the request path.
// Returns ("", "") for root "/", ("bucket", "") for "/{bucket}",
// and ("bucket", "key/path") for "/{bucket}/{key...}".
func parsePath(path string) (bucket, key string) {
	// Trim leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	// Find first slash after bucket name
	idx := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// dispatch is the main request dispatcher. It parses the path to extract
// bucket and object key, then routes by HTTP method and query parameters.
// Unsupported operations (ACLs, ListParts, ListMultipartUploads,
// DeleteBucket) answer NotImplemented.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	bucket, key := parsePath(r.URL.Path)
	q := r.URL.Query()

	// Service-level operations (no bucket in path).
	if bucket == "" {
		switch r.Method {
		case http.MethodGet:
			s.gw.ListBuckets(w, r)
		default:
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		}
		return
	}

	// ACL subresources are not supported on buckets or objects.
	if q.Has("acl") {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		return
	}

	// Object-level operations (bucket + key in path).
	if key != "" {
		switch r.Method {
		case http.MethodPut:
			switch {
			case q.Has("partNumber") && q.Has("uploadId"):
				s.gw.UploadPart(w, r)
			case r.Header.Get("X-Amz-Copy-Source") != "":
				s.gw.CopyObject(w, r)
			default:
				s.gw.PutObject(w, r)
			}
		case http.MethodGet:
			if q.Has("uploadId") {
				// ListParts is not supported.
				xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
			} else {
				s.gw.GetObject(w, r)
			}
		case http.MethodHead:
			s.gw.HeadObject(w, r)
		case http.MethodDelete:
			if q.Has("uploadId") {
				s.gw.AbortMultipartUpload(w, r)
			} else {
				s.gw.DeleteObject(w, r)
			}
		case http.MethodPost:
			switch {
			case q.Has("uploadId"):
				s.gw.CompleteMultipartUpload(w, r)
			case q.Has("uploads"):
				s.gw.CreateMultipartUpload(w, r)
			default:
				xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
			}
		default:
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		}
		return
	}

	// Bucket-level operations (bucket in path, no key).
	switch r.Method {
	case http.MethodPut:
		s.gw.CreateBucket(w, r)
	case http.MethodGet:
		switch {
		case q.Has("location"):
			s.gw.GetBucketLocation(w, r)
		case q.Has("uploads"):
			// ListMultipartUploads is not supported.
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		case q.Has("list-type"):
			s.gw.ListObjectsV2(w, r)
		default:
			s.gw.ListObjects(w, r)
		}
	case http.MethodHead:
		s.gw.HeadBucket(w, r)
	case http.MethodPost:
		if q.Has("delete") {
			s.gw.DeleteObjects(w, r)
		} else {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
		}
	default:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNotImplemented)
	}
}

// Package gateway is the S3 operation engine: it turns each supported S3
// verb into a sequence of bucket-name resolution, staging I/O, and backend
// RPC calls, and renders the matching S3 XML response.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/bucketname"
	s3err "github.com/basingate/basingate/internal/errors"
	"github.com/basingate/basingate/internal/ledger"
	"github.com/basingate/basingate/internal/staging"
	"github.com/basingate/basingate/internal/walletaddr"
	"github.com/basingate/basingate/internal/xmlutil"
)

// Gateway holds the backend Provider, the optional wallet (its absence
// puts the gateway in read-only mode), the multipart staging root, and
// the upload ledger. Read-only-ness is fixed at construction and never
// changes.
type Gateway struct {
	provider backend.Provider
	wallet   walletaddr.Wallet
	staging  *staging.Root
	ledger   *ledger.Ledger
	network  walletaddr.Network
	maxSize  int64
}

// New constructs a Gateway. wallet may be nil, in which case every
// mutating verb responds NotImplemented.
func New(provider backend.Provider, wallet walletaddr.Wallet, root *staging.Root, led *ledger.Ledger, network walletaddr.Network, maxObjectSize int64) *Gateway {
	return &Gateway{
		provider: provider,
		wallet:   wallet,
		staging:  root,
		ledger:   led,
		network:  network,
		maxSize:  maxObjectSize,
	}
}

// ReadOnly reports whether the gateway was constructed without a wallet.
func (g *Gateway) ReadOnly() bool { return g.wallet == nil }

// requireWallet fails NotImplemented when the gateway is read-only; every
// mutating verb calls it first.
func (g *Gateway) requireWallet() *s3err.S3Error {
	if g.wallet == nil {
		return s3err.ErrNotImplemented
	}
	return nil
}

// resolveBucketName turns a raw S3 bucket string into an owner+alias
// pair: a prefix-form name is parsed directly; a bare name is only valid
// with a configured wallet, whose address is prepended before the same
// parse.
func (g *Gateway) resolveBucketName(raw string) (bucketname.Name, *s3err.S3Error) {
	if strings.Contains(raw, ".") {
		name, err := bucketname.Parse(raw)
		if err != nil {
			return bucketname.Name{}, s3err.ErrInvalidBucketName
		}
		return name, nil
	}

	if g.wallet == nil {
		return bucketname.Name{}, s3err.Custom("owner address prefix is missing")
	}

	name, err := bucketname.New(g.wallet.Address(), raw)
	if err != nil {
		return bucketname.Name{}, s3err.ErrInvalidBucketName
	}
	return name, nil
}

// resolveBucketAddress resolves a raw S3 bucket name all the way to its
// backend actor address via the alias index, failing NoSuchBucket when
// the owner has no bucket with that alias.
func (g *Gateway) resolveBucketAddress(ctx context.Context, raw string) (bucketname.Name, walletaddr.Address, *s3err.S3Error) {
	name, serr := g.resolveBucketName(raw)
	if serr != nil {
		return bucketname.Name{}, walletaddr.Address{}, serr
	}

	addr, found, err := g.provider.ResolveAlias(ctx, name.Owner(), name.Alias())
	if err != nil {
		return bucketname.Name{}, walletaddr.Address{}, s3err.Custom(err.Error())
	}
	if !found {
		return bucketname.Name{}, walletaddr.Address{}, s3err.ErrNoSuchBucket
	}
	return name, addr, nil
}

// backendErr maps an opaque error returned by the Provider to the S3Error
// the gateway surfaces: an InternalError carrying the backend's own message
// verbatim, never retried at this layer.
func backendErr(err error) *s3err.S3Error {
	return s3err.Custom(err.Error())
}

// writeErr renders serr as the request's XML error response.
func writeErr(w http.ResponseWriter, r *http.Request, serr *s3err.S3Error) {
	xmlutil.WriteErrorResponse(w, r, serr)
}

// extractBucketKey splits the request path into bucket and key.
func extractBucketKey(r *http.Request) (bucket, key string) {
	path := r.URL.Path
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return "", ""
	}
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// extractUserMetadata scans x-amz-meta-* request headers into a plain
// map, keyed by the suffix after the prefix, lowercased.
func extractUserMetadata(r *http.Request) map[string]string {
	const prefix = "X-Amz-Meta-"
	out := make(map[string]string)
	for key, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		if strings.HasPrefix(strings.ToLower(key), strings.ToLower(prefix)) {
			name := strings.ToLower(key[len(prefix):])
			out[name] = values[0]
		}
	}
	return out
}

// mergeMetadata merges user-supplied metadata into the gateway-maintained
// fields, with user values taking precedence only on key collision.
func mergeMetadata(gatewayMeta, userMeta map[string]string) map[string]string {
	out := make(map[string]string, len(gatewayMeta)+len(userMeta))
	for k, v := range gatewayMeta {
		out[k] = v
	}
	for k, v := range userMeta {
		out[k] = v
	}
	return out
}

func nowEpoch() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func parseEpoch(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// parseUploadID parses the uploadId query parameter, failing
// InvalidRequest on malformed UUIDs.
func parseUploadID(s string) (uuid.UUID, *s3err.S3Error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, s3err.ErrInvalidRequest
	}
	return id, nil
}

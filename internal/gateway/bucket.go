package gateway

import (
	"net/http"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/bucketname"
	s3err "github.com/basingate/basingate/internal/errors"
	"github.com/basingate/basingate/internal/metrics"
	"github.com/basingate/basingate/internal/xmlutil"
)

// CreateBucket creates a bucket actor for the caller's own wallet address;
// the path segment received is the alias alone, not a "<addr>.<alias>"
// name.
func (g *Gateway) CreateBucket(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("CreateBucket")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	alias, _ := extractBucketKey(r)
	if err := bucketname.CheckAlias(alias); err != nil {
		writeErr(w, r, s3err.ErrInvalidBucketName)
		return
	}

	ctx := r.Context()
	owner := g.wallet.Address()

	if _, found, err := g.provider.ResolveAlias(ctx, owner, alias); err != nil {
		writeErr(w, r, backendErr(err))
		return
	} else if found {
		writeErr(w, r, s3err.ErrBucketAlreadyExists)
		return
	}

	meta := map[string]string{
		backend.MetaCreationDate: nowEpoch(),
		backend.MetaAlias:        alias,
	}
	addr, err := g.provider.CreateBucket(ctx, g.wallet, meta)
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	w.Header().Set("Location", addr.String())
	w.WriteHeader(http.StatusOK)
	guard.Succeed()
}

// ListBuckets lists every bucket the wallet's address owns. It requires a
// wallet since the backend's bucket-list endpoint is queried by owner.
func (g *Gateway) ListBuckets(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("ListBuckets")
	defer guard.Release()

	if serr := g.requireWallet(); serr != nil {
		writeErr(w, r, serr)
		return
	}

	infos, err := g.provider.ListBuckets(r.Context(), g.wallet.Address())
	if err != nil {
		writeErr(w, r, backendErr(err))
		return
	}

	result := &xmlutil.ListAllMyBucketsResult{}
	for _, info := range infos {
		name := info.Metadata[backend.MetaAlias]
		if name == "" {
			name = info.Address.String()
		}
		result.Buckets = append(result.Buckets, xmlutil.Bucket{
			Name:         name,
			CreationDate: xmlutil.FormatTimeS3(parseEpoch(info.Metadata[backend.MetaCreationDate])),
		})
	}

	xmlutil.RenderListBuckets(w, result)
	guard.Succeed()
}

// HeadBucket resolves the bucket's alias, failing NoSuchBucket when the
// owner has no bucket by that name.
func (g *Gateway) HeadBucket(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("HeadBucket")
	defer guard.Release()

	bucket, _ := extractBucketKey(r)
	if _, _, serr := g.resolveBucketAddress(r.Context(), bucket); serr != nil {
		writeErr(w, r, serr)
		return
	}

	w.WriteHeader(http.StatusOK)
	guard.Succeed()
}

// GetBucketLocation answers with the empty default region: the gateway
// exposes a single logical location.
func (g *Gateway) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	guard := metrics.NewVerbGuard("GetBucketLocation")
	defer guard.Release()

	bucket, _ := extractBucketKey(r)
	if _, _, serr := g.resolveBucketAddress(r.Context(), bucket); serr != nil {
		writeErr(w, r, serr)
		return
	}

	xmlutil.RenderLocationConstraint(w, "")
	guard.Succeed()
}

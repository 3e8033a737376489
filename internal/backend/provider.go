// Package backend defines the gateway's view of the remote object store:
// a content-addressed, per-bucket key/value store hosted on an FVM
// subnet, reached through a Provider. The real subnet RPC client and
// wallet/signer are external collaborators; this package only states the
// interface the gateway drives them through, plus reference
// implementations under memprovider (used by every test in this
// repository) and rpcprovider (a minimal HTTP client for a real subnet).
package backend

import (
	"context"
	"io"

	"github.com/basingate/basingate/internal/walletaddr"
)

// Metadata key names the gateway itself reads and writes on backend
// buckets and objects.
const (
	MetaLastModified = "last_modified"
	MetaCreationDate = "creation_date"
	MetaETag         = "etag"
	MetaAlias        = "alias"
)

// BucketInfo describes one bucket actor as returned by ListBuckets.
type BucketInfo struct {
	Address  walletaddr.Address
	Metadata map[string]string
}

// ObjectState is the metadata the backend tracks for one object; Size is
// authoritative, Metadata carries at least MetaETag and MetaLastModified.
type ObjectState struct {
	Size     uint64
	Metadata map[string]string
}

// QueryOptions filters and paginates a bucket listing.
type QueryOptions struct {
	Prefix    string
	Delimiter string
	StartKey  []byte
	Limit     int
}

// QueryEntry is one (key, object state) pair from a Query call. State is
// always set; common-prefix groupings are reported in
// QueryResult.CommonPrefixes, not as entries.
type QueryEntry struct {
	Key   []byte
	State *ObjectState
}

// QueryResult is the result of a Query call: matching entries, the common
// prefixes produced by Delimiter grouping, and an opaque NextKey to resume
// from when the result was truncated.
type QueryResult struct {
	Entries        []QueryEntry
	CommonPrefixes [][]byte
	NextKey        []byte
}

// AddOptions carries the object metadata to attach to a newly stored
// object (merged by the backend into its per-key metadata map).
type AddOptions struct {
	Metadata map[string]string
}

// GetOptions configures a Get call; Range, when non-empty, is the
// client's range in the compact "<first>-<last?>" / "-<suffix>" form
// produced by rangespec.Spec.BackendParam, passed through unmodified.
type GetOptions struct {
	Range string
}

// Provider is the gateway's handle to the backend object store. Every
// mutating method additionally takes the Wallet whose address signs the
// underlying transaction; read-only gateways never call them.
type Provider interface {
	// ListBuckets lists every bucket owned by owner.
	ListBuckets(ctx context.Context, owner walletaddr.EVMAddress) ([]BucketInfo, error)

	// ResolveAlias scans the owner's bucket list for the bucket whose
	// alias metadata equals alias, or reports none found.
	ResolveAlias(ctx context.Context, owner walletaddr.EVMAddress, alias string) (walletaddr.Address, bool, error)

	// CreateBucket creates a new bucket actor owned by wallet's address
	// with the given metadata (at minimum MetaAlias and MetaCreationDate).
	CreateBucket(ctx context.Context, wallet walletaddr.Wallet, metadata map[string]string) (walletaddr.Address, error)

	// Query lists (or describes) objects in a bucket.
	Query(ctx context.Context, bucket walletaddr.Address, opts QueryOptions) (*QueryResult, error)

	// Get streams the object's bytes (optionally a sub-range) into w.
	Get(ctx context.Context, bucket walletaddr.Address, key string, w io.Writer, opts GetOptions) error

	// AddFromPath uploads the file at path as key's content.
	AddFromPath(ctx context.Context, wallet walletaddr.Wallet, bucket walletaddr.Address, key string, path string, opts AddOptions) error

	// AddReader uploads size bytes read from r as key's content.
	AddReader(ctx context.Context, wallet walletaddr.Wallet, bucket walletaddr.Address, key string, r io.Reader, size int64, opts AddOptions) error

	// Delete removes key from bucket. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, wallet walletaddr.Wallet, bucket walletaddr.Address, key string) error
}

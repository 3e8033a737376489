// Package memprovider is an in-process reference implementation of
// backend.Provider: an in-memory bucket/object map with the same
// metadata and pagination semantics as the subnet backend. It backs every
// test in this repository and the localnet/devnet presets.
package memprovider

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/rangespec"
	"github.com/basingate/basingate/internal/walletaddr"
)

type object struct {
	data     []byte
	metadata map[string]string
}

type bucket struct {
	owner    walletaddr.EVMAddress
	addr     walletaddr.Address
	metadata map[string]string
	objects  map[string]*object // keyed by object key
}

// Provider is an in-memory backend.Provider. The zero value is not usable;
// construct with New.
type Provider struct {
	mu      sync.RWMutex
	buckets map[string]*bucket // keyed by Address.String()
	network walletaddr.Network
}

// New returns an empty in-memory provider.
func New(network walletaddr.Network) *Provider {
	return &Provider{
		buckets: make(map[string]*bucket),
		network: network,
	}
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (p *Provider) ListBuckets(_ context.Context, owner walletaddr.EVMAddress) ([]backend.BucketInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []backend.BucketInfo
	for _, b := range p.buckets {
		if b.owner != owner {
			continue
		}
		out = append(out, backend.BucketInfo{Address: b.addr, Metadata: cloneMeta(b.metadata)})
	}
	return out, nil
}

func (p *Provider) ResolveAlias(_ context.Context, owner walletaddr.EVMAddress, alias string) (walletaddr.Address, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Linear scan, same as the real bucket-list endpoint: resolution is
	// O(bucket count), not an indexed lookup.
	for _, b := range p.buckets {
		if b.owner != owner {
			continue
		}
		if b.metadata[backend.MetaAlias] == alias {
			return b.addr, true, nil
		}
	}
	return walletaddr.Address{}, false, nil
}

func (p *Provider) CreateBucket(_ context.Context, wallet walletaddr.Wallet, metadata map[string]string) (walletaddr.Address, error) {
	// Every bucket actor gets its own address in the real backend (derived
	// from a creation sequence, not the owner), so the fixture mints a
	// fresh placeholder payload per bucket.
	addr := walletaddr.FromEVM(p.network, walletaddr.RandomPlaceholder())

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buckets[addr.String()] = &bucket{
		owner:    wallet.Address(),
		addr:     addr,
		metadata: cloneMeta(metadata),
		objects:  make(map[string]*object),
	}
	return addr, nil
}

func (p *Provider) Query(_ context.Context, addr walletaddr.Address, opts backend.QueryOptions) (*backend.QueryResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b, ok := p.buckets[addr.String()]
	if !ok {
		return &backend.QueryResult{}, nil
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &backend.QueryResult{}
	prefixSeen := make(map[string]bool)

	started := opts.StartKey == nil
	for _, k := range keys {
		if !started {
			if k < string(opts.StartKey) {
				continue
			}
			started = true
		}
		if opts.Prefix != "" && !strings.HasPrefix(k, opts.Prefix) {
			continue
		}

		rest := k
		if opts.Prefix != "" {
			rest = k[len(opts.Prefix):]
		}
		if opts.Delimiter != "" {
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				cp := k[:len(k)-len(rest)+idx+len(opts.Delimiter)]
				if !prefixSeen[cp] {
					prefixSeen[cp] = true
					result.CommonPrefixes = append(result.CommonPrefixes, []byte(cp))
				}
				continue
			}
		}

		if opts.Limit > 0 && len(result.Entries) >= opts.Limit {
			result.NextKey = []byte(k)
			break
		}

		obj := b.objects[k]
		result.Entries = append(result.Entries, backend.QueryEntry{
			Key: []byte(k),
			State: &backend.ObjectState{
				Size:     uint64(len(obj.data)),
				Metadata: cloneMeta(obj.metadata),
			},
		})
	}

	return result, nil
}

func (p *Provider) Get(_ context.Context, addr walletaddr.Address, key string, w io.Writer, opts backend.GetOptions) error {
	p.mu.RLock()
	b, ok := p.buckets[addr.String()]
	if !ok {
		p.mu.RUnlock()
		return fmt.Errorf("memprovider: bucket %s not found", addr)
	}
	obj, ok := b.objects[key]
	if !ok {
		p.mu.RUnlock()
		return fmt.Errorf("memprovider: key %q not found", key)
	}
	data := obj.data
	p.mu.RUnlock()

	if opts.Range == "" {
		_, err := w.Write(data)
		return err
	}

	offset, length, err := parseBackendRange(opts.Range, uint64(len(data)))
	if err != nil {
		return err
	}
	_, err = w.Write(data[offset : offset+length])
	return err
}

// parseBackendRange parses the compact "<first>-<last?>" / "-<suffix>"
// form produced by rangespec.Spec.BackendParam into an (offset, length)
// pair.
func parseBackendRange(s string, size uint64) (offset, length uint64, err error) {
	spec, err := rangespec.Parse("bytes=" + s)
	if err != nil {
		return 0, 0, err
	}
	return spec.Offsets(size)
}

func (p *Provider) AddFromPath(_ context.Context, _ walletaddr.Wallet, addr walletaddr.Address, key string, path string, opts backend.AddOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memprovider: read staged file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[addr.String()]
	if !ok {
		return fmt.Errorf("memprovider: bucket %s not found", addr)
	}
	b.objects[key] = &object{data: data, metadata: cloneMeta(opts.Metadata)}
	return nil
}

func (p *Provider) AddReader(_ context.Context, _ walletaddr.Wallet, addr walletaddr.Address, key string, r io.Reader, size int64, opts backend.AddOptions) error {
	data, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("memprovider: expected %d bytes, got %d", size, len(data))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[addr.String()]
	if !ok {
		return fmt.Errorf("memprovider: bucket %s not found", addr)
	}
	b.objects[key] = &object{data: data, metadata: cloneMeta(opts.Metadata)}
	return nil
}

func (p *Provider) Delete(_ context.Context, _ walletaddr.Wallet, addr walletaddr.Address, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[addr.String()]
	if !ok {
		return nil
	}
	delete(b.objects, key)
	return nil
}

// Package rpcprovider is a minimal HTTP+JSON backend.Provider client
// against a configured object-API base URL. It speaks a small
// self-consistent JSON protocol against "<base>/v1/..." covering exactly
// the method surface the gateway drives: list, query, get, add, delete.
package rpcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/walletaddr"
)

// Provider talks to a remote object-API endpoint over plain HTTP/JSON.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New returns a client for the object API rooted at baseURL.
func New(baseURL string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{baseURL: baseURL, client: client}
}

func (p *Provider) url(path string) string {
	return p.baseURL + path
}

func (p *Provider) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url(path), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpcprovider: %s %s: status %d: %s", method, path, resp.StatusCode, string(b))
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type listBucketsResponse struct {
	Buckets []struct {
		Address  string            `json:"address"`
		Metadata map[string]string `json:"metadata"`
	} `json:"buckets"`
}

func (p *Provider) ListBuckets(ctx context.Context, owner walletaddr.EVMAddress) ([]backend.BucketInfo, error) {
	var resp listBucketsResponse
	if err := p.doJSON(ctx, http.MethodGet, "/v1/buckets?owner="+owner.String(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]backend.BucketInfo, 0, len(resp.Buckets))
	for _, b := range resp.Buckets {
		addr, err := walletaddr.ParseAddress(b.Address)
		if err != nil {
			return nil, fmt.Errorf("rpcprovider: bucket list entry: %w", err)
		}
		out = append(out, backend.BucketInfo{Address: addr, Metadata: b.Metadata})
	}
	return out, nil
}

func (p *Provider) ResolveAlias(ctx context.Context, owner walletaddr.EVMAddress, alias string) (walletaddr.Address, bool, error) {
	buckets, err := p.ListBuckets(ctx, owner)
	if err != nil {
		return walletaddr.Address{}, false, err
	}
	for _, b := range buckets {
		if b.Metadata[backend.MetaAlias] == alias {
			return b.Address, true, nil
		}
	}
	return walletaddr.Address{}, false, nil
}

type createBucketRequest struct {
	Owner    string            `json:"owner"`
	Metadata map[string]string `json:"metadata"`
}

type createBucketResponse struct {
	Address string `json:"address"`
}

func (p *Provider) CreateBucket(ctx context.Context, wallet walletaddr.Wallet, metadata map[string]string) (walletaddr.Address, error) {
	var resp createBucketResponse
	req := createBucketRequest{Owner: wallet.Address().String(), Metadata: metadata}
	if err := p.doJSON(ctx, http.MethodPost, "/v1/buckets", req, &resp); err != nil {
		return walletaddr.Address{}, err
	}
	addr, err := walletaddr.ParseAddress(resp.Address)
	if err != nil {
		return walletaddr.Address{}, fmt.Errorf("rpcprovider: create bucket response: %w", err)
	}
	return addr, nil
}

type queryResponse struct {
	Entries []struct {
		Key      string            `json:"key"`
		Size     uint64            `json:"size"`
		Metadata map[string]string `json:"metadata"`
	} `json:"entries"`
	CommonPrefixes []string `json:"common_prefixes"`
	NextKey        string   `json:"next_key"`
}

func (p *Provider) Query(ctx context.Context, addr walletaddr.Address, opts backend.QueryOptions) (*backend.QueryResult, error) {
	q := url.Values{
		"bucket":    {addr.String()},
		"prefix":    {opts.Prefix},
		"delimiter": {opts.Delimiter},
		"limit":     {fmt.Sprint(opts.Limit)},
	}
	if len(opts.StartKey) > 0 {
		q.Set("start_key", string(opts.StartKey))
	}
	path := "/v1/objects?" + q.Encode()

	var resp queryResponse
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	result := &backend.QueryResult{}
	for _, e := range resp.Entries {
		result.Entries = append(result.Entries, backend.QueryEntry{
			Key:   []byte(e.Key),
			State: &backend.ObjectState{Size: e.Size, Metadata: e.Metadata},
		})
	}
	for _, cp := range resp.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, []byte(cp))
	}
	if resp.NextKey != "" {
		result.NextKey = []byte(resp.NextKey)
	}
	return result, nil
}

func (p *Provider) Get(ctx context.Context, addr walletaddr.Address, key string, w io.Writer, opts backend.GetOptions) error {
	q := url.Values{"bucket": {addr.String()}, "key": {key}}
	path := "/v1/objects/get?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(path), nil)
	if err != nil {
		return err
	}
	if opts.Range != "" {
		req.Header.Set("Range", "bytes="+opts.Range)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpcprovider: get %s/%s: status %d: %s", addr, key, resp.StatusCode, string(b))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (p *Provider) AddFromPath(ctx context.Context, wallet walletaddr.Wallet, addr walletaddr.Address, key string, path string, opts backend.AddOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.AddReader(ctx, wallet, addr, key, f, info.Size(), opts)
}

func (p *Provider) AddReader(ctx context.Context, wallet walletaddr.Wallet, addr walletaddr.Address, key string, r io.Reader, size int64, opts backend.AddOptions) error {
	q := url.Values{
		"bucket": {addr.String()},
		"key":    {key},
		"owner":  {wallet.Address().String()},
	}
	for mk, mv := range opts.Metadata {
		q.Set("meta."+mk, mv)
	}
	path := "/v1/objects/put?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url(path), r)
	if err != nil {
		return err
	}
	req.ContentLength = size

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpcprovider: put %s/%s: status %d: %s", addr, key, resp.StatusCode, string(b))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func (p *Provider) Delete(ctx context.Context, wallet walletaddr.Wallet, addr walletaddr.Address, key string) error {
	q := url.Values{
		"bucket": {addr.String()},
		"key":    {key},
		"owner":  {wallet.Address().String()},
	}
	return p.doJSON(ctx, http.MethodPost, "/v1/objects/delete?"+q.Encode(), nil, nil)
}

package remotekv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Endpoint is one RPC target advertised by the metadata endpoint, tagged
// with its consistency level.
type Endpoint struct {
	URL         string `json:"url"`
	Consistency string `json:"consistency"`
}

// Metadata is the refreshed connection info for a remote database: where
// to send RPCs, what token to present, and when that token expires.
type Metadata struct {
	DatabaseID string     `json:"databaseId"`
	Endpoints  []Endpoint `json:"endpoints"`
	Token      string     `json:"token"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

type versionInfo struct {
	Version uint64 `json:"version"`
}

// sourceBackoff reproduces the reference implementation's bespoke jittered
// schedule — base + 2<<min(attempt,12) milliseconds, plus uniform jitter
// up to half that — as a backoff.BackOff so it can drive backoff.Retry
// instead of a hand-rolled retry loop.
type sourceBackoff struct {
	base    time.Duration
	attempt uint64
}

func (b *sourceBackoff) NextBackOff() time.Duration {
	a := b.attempt
	if a > 12 {
		a = 12
	}
	delayMs := b.base.Milliseconds() + (2 << a)
	jitter := rand.Int63n(delayMs/2 + 1)
	b.attempt++
	return time.Duration(delayMs+jitter) * time.Millisecond
}

func (b *sourceBackoff) Reset() { b.attempt = 0 }

// metadataRefresher polls a metadata endpoint on a loop and republishes
// the latest result, scheduling the next refresh for 10 minutes before
// expiry (clamped to at least 60s), and retrying failures with
// sourceBackoff. It stands in for the source's tokio::watch channel using
// a mutex-guarded value plus a closed-and-replaced signal channel, the
// common Go idiom for a single-value broadcast.
type metadataRefresher struct {
	httpClient *http.Client
	url        string
	token      string

	mu      sync.Mutex
	current *Metadata
	err     error
	changed chan struct{}
}

func newMetadataRefresher(client *http.Client, url, token string) *metadataRefresher {
	return &metadataRefresher{
		httpClient: client,
		url:        url,
		token:      token,
		changed:    make(chan struct{}),
	}
}

// run drives the refresh loop until ctx is done.
func (r *metadataRefresher) run(ctx context.Context) {
	b := &sourceBackoff{base: 5 * time.Second}

	for ctx.Err() == nil {
		meta, err := fetchWithRetry(ctx, r.httpClient, r.url, r.token, b)
		if err != nil {
			r.publish(nil, err)
			return // ctx canceled while retrying, or a permanent error
		}
		b.Reset()
		r.publish(meta, nil)

		interval := refreshInterval(meta.ExpiresAt)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

func refreshInterval(expiresAt time.Time) time.Duration {
	untilExpiry := time.Until(expiresAt)
	interval := untilExpiry - 10*time.Minute
	if interval < 60*time.Second {
		interval = 60 * time.Second
	}
	return interval
}

func (r *metadataRefresher) publish(meta *Metadata, err error) {
	r.mu.Lock()
	r.current = meta
	r.err = err
	old := r.changed
	r.changed = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

// wait blocks until a Metadata is available (or a terminal error occurs,
// or ctx is done), mirroring the source's watch-channel poll loop.
func (r *metadataRefresher) wait(ctx context.Context) (*Metadata, error) {
	for {
		r.mu.Lock()
		meta, err, changed := r.current, r.err, r.changed
		r.mu.Unlock()

		if err != nil {
			return nil, err
		}
		if meta != nil {
			return meta, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func fetchWithRetry(ctx context.Context, client *http.Client, url, token string, b *sourceBackoff) (*Metadata, error) {
	var result *Metadata
	op := func() error {
		meta, err := fetchMetadata(ctx, client, url, token)
		if err != nil {
			return err
		}
		result = meta
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func fetchMetadata(ctx context.Context, client *http.Client, url, token string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err // network error: retryable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("metadata endpoint returned %d: %s", resp.StatusCode, body)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("metadata endpoint returned %d: %s", resp.StatusCode, body))
	}

	var v versionInfo
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode version info: %w", err))
	}
	if v.Version > 1 {
		return nil, backoff.Permanent(fmt.Errorf("unsupported metadata version %d", v.Version))
	}

	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode metadata: %w", err))
	}
	return &meta, nil
}

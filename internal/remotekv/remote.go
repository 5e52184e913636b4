// Package remotekv implements the thin HTTPS-forwarding variant of the
// store: same operation surface as internal/kvstore, but every
// snapshot_read and atomic_write is shipped as a length-prefixed frame to
// a hosted endpoint discovered via a background metadata refresher.
// Queue dequeue is not supported remotely.
package remotekv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvstore"
)

// ErrMissingToken is returned by Open when the configured environment
// variable is unset.
var ErrMissingToken = errors.New("missing access token environment variable")

// ErrDequeueUnsupported is returned by DequeueNextMessage: the remote
// variant has no local dispatcher to pull ready rows from.
var ErrDequeueUnsupported = errors.New("queue dequeue is not supported for remote databases")

// AccessTokenEnvVar is the environment variable Open reads the bearer
// token from.
const AccessTokenEnvVar = "LATTICEKV_ACCESS_TOKEN"

// Database is a handle to a remote database reachable over HTTPS.
type Database struct {
	httpClient *http.Client
	refresher  *metadataRefresher
	cancel     context.CancelFunc
}

// Open starts the metadata refresher against metadataURL, authenticating
// with the token read from AccessTokenEnvVar. The returned Database is
// usable once its first metadata fetch succeeds, which SnapshotRead and
// AtomicWrite wait on lazily.
func Open(metadataURL string) (*Database, error) {
	token := os.Getenv(AccessTokenEnvVar)
	if token == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingToken, AccessTokenEnvVar)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	refresher := newMetadataRefresher(client, metadataURL, token)

	ctx, cancel := context.WithCancel(context.Background())
	go refresher.run(ctx)

	return &Database{httpClient: client, refresher: refresher, cancel: cancel}, nil
}

// Close stops the metadata refresher. Matches the reference
// implementation's close, which is a no-op beyond dropping background
// work: there is no local connection to drop.
func (d *Database) Close() error {
	d.cancel()
	return nil
}

// DequeueNextMessage always fails: the remote variant exposes no queue
// dispatcher.
func (d *Database) DequeueNextMessage(ctx context.Context) error {
	return ErrDequeueUnsupported
}

// SnapshotRead forwards ranges to the strong-consistency endpoint.
func (d *Database) SnapshotRead(ctx context.Context, ranges []kvstore.ReadRange) ([][]kvstore.Entry, error) {
	req := snapshotReadRequest{Ranges: make([]wireReadRange, len(ranges))}
	for i, r := range ranges {
		start, end, err := r.Selector.Resume(r.Cursor, r.Reverse)
		if err != nil {
			return nil, err
		}
		req.Ranges[i] = wireReadRange{Start: start, End: end, Limit: r.Limit, Reverse: r.Reverse}
	}

	var resp snapshotReadResponse
	if err := d.call(ctx, "snapshot_read", req, &resp); err != nil {
		return nil, err
	}
	if resp.ReadDisabled {
		return nil, fmt.Errorf("reads are disabled for this database")
	}

	out := make([][]kvstore.Entry, len(resp.Ranges))
	for i, r := range resp.Ranges {
		entries := make([]kvstore.Entry, len(r.Entries))
		for j, e := range r.Entries {
			key, err := keycodec.Decode(e.Key)
			if err != nil {
				return nil, fmt.Errorf("decode entry key: %w", err)
			}
			value, err := e.Value.decode()
			if err != nil {
				return nil, fmt.Errorf("decode entry value: %w", err)
			}
			vs, err := decodeVersionstampBytes(e.Versionstamp)
			if err != nil {
				return nil, err
			}
			entries[j] = kvstore.Entry{Key: key, Value: value, Versionstamp: vs}
		}
		out[i] = entries
	}
	return out, nil
}

// AtomicWrite forwards checks and mutations to the strong-consistency
// endpoint. Enqueues are rejected locally: the reference protocol has no
// remote enqueue support.
func (d *Database) AtomicWrite(ctx context.Context, aw kvstore.AtomicWrite) (*kvstore.CommitResult, error) {
	if len(aw.Enqueues) > 0 {
		return nil, fmt.Errorf("%w: enqueue is not supported for remote databases", kvstore.ErrInvalidMutation)
	}

	req := atomicWriteRequest{
		Checks:    make([]wireCheck, len(aw.Checks)),
		Mutations: make([]wireMutation, len(aw.Mutations)),
	}
	for i, c := range aw.Checks {
		enc, err := keycodec.Encode(c.Key)
		if err != nil {
			return nil, err
		}
		wc := wireCheck{Key: enc}
		if c.Expected != nil {
			wc.Versionstamp = c.Expected[:]
		}
		req.Checks[i] = wc
	}
	nowMs := time.Now().UnixMilli()
	for i, m := range aw.Mutations {
		enc, err := keycodec.Encode(m.Key)
		if err != nil {
			return nil, err
		}
		wm, err := encodeMutation(enc, m, nowMs)
		if err != nil {
			return nil, err
		}
		req.Mutations[i] = wm
	}

	var resp atomicWriteResponse
	if err := d.call(ctx, "atomic_write", req, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case statusSuccess:
		vs, err := decodeVersionstampBytes(resp.Versionstamp)
		if err != nil {
			return nil, err
		}
		return &kvstore.CommitResult{Versionstamp: vs}, nil
	case statusCheckFailure:
		return nil, nil
	case statusUnsupportedWrite:
		return nil, fmt.Errorf("unsupported write")
	case statusUsageLimitExceeded:
		return nil, fmt.Errorf("the database usage limit has been exceeded")
	case statusWriteDisabled:
		return nil, fmt.Errorf("writes are disabled for this database")
	case statusQueueBacklogLimitExceeded:
		return nil, fmt.Errorf("queue backlog limit exceeded")
	default:
		return nil, fmt.Errorf("unspecified remote write error")
	}
}

func encodeMutation(key []byte, m kvstore.Mutation, nowMs int64) (wireMutation, error) {
	wm := wireMutation{Key: key, ExpireAtMs: expireAtMsOf(m.ExpireInMs, nowMs)}
	switch m.Kind {
	case kvstore.MutationSet:
		wv := toWireValue(m.Value)
		wm.Kind = "set"
		wm.Value = &wv
	case kvstore.MutationDelete:
		wm.Kind = "delete"
	case kvstore.MutationSum:
		wm.Kind = "sum"
		wm.Operand = &m.Operand
	case kvstore.MutationMin:
		wm.Kind = "min"
		wm.Operand = &m.Operand
	case kvstore.MutationMax:
		wm.Kind = "max"
		wm.Operand = &m.Operand
	default:
		return wireMutation{}, fmt.Errorf("%w: unknown mutation kind", kvstore.ErrInvalidMutation)
	}
	return wm, nil
}

func expireAtMsOf(expireInMs *int64, nowMs int64) int64 {
	if expireInMs == nil {
		return 0
	}
	return nowMs + *expireInMs
}

func decodeVersionstampBytes(b []byte) (kvstore.Versionstamp, error) {
	var vs kvstore.Versionstamp
	if len(b) == 0 {
		return vs, nil
	}
	if len(b) != len(vs) {
		return vs, fmt.Errorf("versionstamp must be %d bytes, got %d", len(vs), len(b))
	}
	copy(vs[:], b)
	return vs, nil
}

// call performs one RPC against the strong-consistency endpoint,
// retrying network errors with the reference implementation's jittered
// backoff (base 0ms) via backoff.Retry.
func (d *Database) call(ctx context.Context, method string, req, resp any) error {
	meta, err := d.refresher.wait(ctx)
	if err != nil {
		return fmt.Errorf("fetch database metadata: %w", err)
	}

	endpoint, err := strongConsistencyEndpoint(meta)
	if err != nil {
		return err
	}
	url := endpoint.URL + "/" + method

	var body bytes.Buffer
	if err := writeFrame(&body, req); err != nil {
		return err
	}

	b := &sourceBackoff{base: 0}
	var httpResp *http.Response
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("x-transaction-domain-id", meta.DatabaseID)
		httpReq.Header.Set("authorization", "Bearer "+meta.Token)
		httpReq.Header.Set("content-type", "application/octet-stream")

		r, err := d.httpClient.Do(httpReq)
		if err != nil {
			return err // network error: retryable
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("server error (status %d)", r.StatusCode)
		}
		if r.StatusCode >= 400 {
			defer r.Body.Close()
			return backoff.Permanent(fmt.Errorf("client error (status %d)", r.StatusCode))
		}
		httpResp = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return err
	}
	defer httpResp.Body.Close()

	return readFrame(httpResp.Body, resp)
}

func strongConsistencyEndpoint(meta *Metadata) (Endpoint, error) {
	for _, e := range meta.Endpoints {
		if e.Consistency == "strong" {
			return e, nil
		}
	}
	return Endpoint{}, fmt.Errorf("no strong consistency endpoint is available for this database")
}

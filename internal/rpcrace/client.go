// Package rpcrace implements the fan-out RPC client of §4.C: a JSON-RPC 2.0
// client that races an arbitrary request across several endpoints and
// returns the first success, discarding the rest.
//
// Grounded on the teacher's src/chainadapter/rpc/http.go (shared
// *http.Client, per-call JSON-RPC envelope, explicit status/parse/error
// checks) for the HTTP plumbing, and on
// original_source/src/http/race_client.rs's race() (futures_util::select_ok
// over one future per endpoint) for the racing semantics this package
// reproduces with golang.org/x/sync/errgroup plus a context cancellation
// that stops the losing requests as soon as a winner is chosen.
package rpcrace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaysol/mirror/internal/mirrorerr"
	"github.com/relaysol/mirror/internal/ratelimit"
)

const (
	connectTimeout  = 2 * time.Second
	requestTimeout  = 500 * time.Millisecond
	idlePoolTimeout = 90 * time.Second
	maxIdlePerHost  = 10
)

// Client fans an arbitrary JSON-RPC request out across a fixed list of
// endpoints, returning the first success.
type Client struct {
	endpoints []string
	http      *http.Client
	limiter   *ratelimit.Limiter
}

// New builds a Client over the given endpoints with the transport tuning
// named in §4.C: TCP_NODELAY on, HTTP/2 preferred, connect timeout 2s,
// request timeout 500ms, idle pool timeout 90s, 10 idle conns per host.
// limiterCapacity bounds concurrent outbound calls (default 50).
func New(endpoints []string, limiterCapacity int) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, mirrorerr.New(mirrorerr.Config, "at least one RPC endpoint is required")
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     idlePoolTimeout,
		MaxIdleConnsPerHost: maxIdlePerHost,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		endpoints: endpoints,
		http: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		limiter: ratelimit.New(limiterCapacity),
	}, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call races method/params across every configured endpoint and returns the
// first response that completes in time, is HTTP 2xx, parses as JSON, and
// carries no "error" field. If every endpoint fails it returns the most
// recent failure, classified RpcError.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	permit, err := c.limiter.Acquire(ctx)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Rpc, "rate limiter acquire failed", err)
	}
	defer permit.Release()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Rpc, "failed to marshal request", err)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}

	results := make(chan outcome, len(c.endpoints))
	g, gctx := errgroup.WithContext(raceCtx)

	for _, endpoint := range c.endpoints {
		endpoint := endpoint
		g.Go(func() error {
			result, callErr := c.callEndpoint(gctx, endpoint, body)
			select {
			case results <- outcome{result: result, err: callErr}:
			case <-raceCtx.Done():
			}
			return nil
		})
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		select {
		case o := <-results:
			if o.err == nil {
				cancel()
				_ = g.Wait()
				return o.result, nil
			}
			lastErr = o.err
		case <-ctx.Done():
			cancel()
			_ = g.Wait()
			return nil, mirrorerr.Wrap(mirrorerr.Rpc, "context done while racing endpoints", ctx.Err())
		}
	}

	cancel()
	_ = g.Wait()

	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints configured")
	}
	return nil, mirrorerr.Wrap(mirrorerr.Rpc, "all RPC endpoints failed", lastErr)
}

func (c *Client) callEndpoint(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", endpoint, err)
	}

	if parsed.Error != nil {
		return nil, fmt.Errorf("RPC error from %s: %s", endpoint, parsed.Error.Message)
	}

	return parsed.Result, nil
}

// SendTransaction submits a base64-encoded signed transaction via
// sendTransaction, skipping preflight and local retries per §4.C.
func (c *Client) SendTransaction(ctx context.Context, base64Tx string) (string, error) {
	params := []interface{}{
		base64Tx,
		map[string]interface{}{
			"encoding":       "base64",
			"skipPreflight":  true,
			"maxRetries":     0,
		},
	}

	result, err := c.Call(ctx, "sendTransaction", params)
	if err != nil {
		return "", err
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", mirrorerr.Wrap(mirrorerr.Parse, "sendTransaction result is not a string", err)
	}
	return sig, nil
}

// SendTransactionWithRetry attempts SendTransaction up to attempts times,
// sleeping 50ms*2^(n-1) between attempts per §4.C's send_with_retry.
func (c *Client) SendTransactionWithRetry(ctx context.Context, base64Tx string, attempts int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		sig, err := c.SendTransaction(ctx, base64Tx)
		if err == nil {
			return sig, nil
		}
		lastErr = err

		if attempt < attempts {
			backoff := time.Duration(50*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", mirrorerr.Wrap(mirrorerr.Rpc, "context done during send retry backoff", ctx.Err())
			}
		}
	}
	return "", lastErr
}

// GetTransaction fetches a transaction by signature via getTransaction. A
// JSON null result is a legal "not yet indexed" response and is returned as
// the raw JSON literal null with a nil error, not as an error.
func (c *Client) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}
	return c.Call(ctx, "getTransaction", params)
}

// GetAccountInfo fetches account info via getAccountInfo. The trading
// engine does not call it; it reads balances and mint decimals through
// GetTokenAccountsByOwner.
func (c *Client) GetAccountInfo(ctx context.Context, address string, encoding string) (json.RawMessage, error) {
	params := []interface{}{
		address,
		map[string]interface{}{
			"encoding": encoding,
		},
	}
	return c.Call(ctx, "getAccountInfo", params)
}

// GetTokenAccountsByOwner looks up owner's token account for a specific
// mint via getTokenAccountsByOwner with jsonParsed encoding, which returns
// the decoded balance and decimals directly and avoids deriving the
// associated token account address by hand.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) (json.RawMessage, error) {
	params := []interface{}{
		owner,
		map[string]interface{}{"mint": mint},
		map[string]interface{}{"encoding": "jsonParsed"},
	}
	return c.Call(ctx, "getTokenAccountsByOwner", params)
}

// Package jupiter implements the aggregator client of §4.J: it fetches a
// swap route from Jupiter's quote endpoint and turns it into an unsigned
// transaction via the swap endpoint. Neither the request/response schema
// nor the HTTP transport are SPI-fixed by spec.md beyond the interface the
// engine calls, so the shapes here follow original_source's actual fields.
//
// Ported from original_source/src/trading/jupiter.rs's JupiterClient:
// same query parameters on the quote GET, same
// prioritizationFeeLamports.priorityLevelWithMaxLamports object on the swap
// POST, same non-2xx-is-AggregatorError classification.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/relaysol/mirror/internal/mirrorerr"
)

// QuoteResponse is passed back to the caller largely opaque: the engine
// inspects none of its fields and only forwards the struct as a whole into
// GetSwapTx.
type QuoteResponse struct {
	InputMint          string          `json:"inputMint"`
	InAmount           string          `json:"inAmount"`
	OutputMint         string          `json:"outputMint"`
	OutAmount          string          `json:"outAmount"`
	OtherAmountThreshold string        `json:"otherAmountThreshold"`
	SwapMode           string          `json:"swapMode"`
	SlippageBps        int             `json:"slippageBps"`
	PriceImpactPct     string          `json:"priceImpactPct"`
	RoutePlan          json.RawMessage `json:"routePlan"`
}

// SwapResponse carries the unsigned transaction the signer countersigns.
type SwapResponse struct {
	SwapTransaction    string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type swapRequest struct {
	UserPublicKey           string          `json:"userPublicKey"`
	QuoteResponse           QuoteResponse   `json:"quoteResponse"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports json.RawMessage `json:"prioritizationFeeLamports,omitempty"`
}

// Config holds the two endpoints and the trade parameters that shape every
// request.
type Config struct {
	QuoteURL            string
	SwapURL             string
	SlippageBps         int
	PriorityLevel       string
	PriorityMaxLamports uint64
	Timeout             time.Duration
}

// Client talks to a single Jupiter-compatible aggregator. It never retries;
// retry policy belongs to the caller per §4.J.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client with the pool tuning named in §4.J: 60s idle timeout,
// 20 idle connections per host.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				IdleConnTimeout:     60 * time.Second,
				MaxIdleConnsPerHost: 20,
			},
		},
	}
}

// GetQuote fetches a route for swapping amountBase base units of
// inputMint into outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amountBase uint64) (*QuoteResponse, error) {
	u, err := url.Parse(c.cfg.QuoteURL)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Config, "invalid jupiter quote URL", err)
	}
	q := u.Query()
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amountBase, 10))
	q.Set("slippageBps", strconv.Itoa(c.cfg.SlippageBps))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Aggregator, "failed to build quote request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Transport, "jupiter quote request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Transport, "failed to read quote response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mirrorerr.New(mirrorerr.Aggregator, fmt.Sprintf("jupiter quote API error: %s", string(body)))
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Parse, "failed to decode quote response", err)
	}
	return &quote, nil
}

// GetSwapTx turns a quote into an unsigned transaction for userPubkey to
// sign and submit.
func (c *Client) GetSwapTx(ctx context.Context, quote *QuoteResponse, userPubkey string) (*SwapResponse, error) {
	priorityConfig, err := json.Marshal(map[string]interface{}{
		"priorityLevelWithMaxLamports": map[string]interface{}{
			"priorityLevel": c.cfg.PriorityLevel,
			"maxLamports":   c.cfg.PriorityMaxLamports,
		},
	})
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Aggregator, "failed to build priority fee config", err)
	}

	reqBody, err := json.Marshal(swapRequest{
		UserPublicKey:             userPubkey,
		QuoteResponse:             *quote,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: priorityConfig,
	})
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Aggregator, "failed to marshal swap request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SwapURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Aggregator, "failed to build swap request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Transport, "jupiter swap request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Transport, "failed to read swap response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mirrorerr.New(mirrorerr.Aggregator, fmt.Sprintf("jupiter swap API error: %s", string(body)))
	}

	var swap SwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Parse, "failed to decode swap response", err)
	}
	return &swap, nil
}

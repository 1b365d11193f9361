// Package processor implements the per-signature pipeline of §4.G: dedup,
// fetch-with-retry, parse, detect, and hand-off to the trading engine,
// bounded by a fixed worker concurrency.
//
// Grounded directly on original_source/src/processor/worker.rs's Worker:
// the 10-second background cache sweep, the semaphore-gated spawn per
// signature, the 10-attempt x 300ms fetch retry loop, and the structured
// fetch/processing/total-pipeline timing report are all ported unchanged.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaysol/mirror/internal/dedup"
	"github.com/relaysol/mirror/internal/mirrorlog"
	"github.com/relaysol/mirror/internal/ratelimit"
	"github.com/relaysol/mirror/internal/rpcrace"
	"github.com/relaysol/mirror/internal/stats"
	"github.com/relaysol/mirror/internal/swapdetect"
	"github.com/relaysol/mirror/internal/txparse"
)

const (
	dedupTTL         = 60 * time.Second
	cacheSweepPeriod = 10 * time.Second
	fetchMaxAttempts = 10
	fetchRetryDelay  = 300 * time.Millisecond
)

// Processor turns incoming signatures into swap events.
type Processor struct {
	client       *rpcrace.Client
	cache        *dedup.Cache
	workers      *ratelimit.Limiter
	targetWallet string
	stats        *stats.Stats
	logger       *mirrorlog.Logger
	swapCh       chan *swapdetect.Event
}

// New creates a Processor. maxWorkers bounds the number of signatures being
// fetched/parsed/detected concurrently.
func New(client *rpcrace.Client, targetWallet string, maxWorkers int, st *stats.Stats, logger *mirrorlog.Logger) *Processor {
	return &Processor{
		client:       client,
		cache:        dedup.New(dedupTTL),
		workers:      ratelimit.New(maxWorkers),
		targetWallet: targetWallet,
		stats:        st,
		logger:       logger,
		swapCh:       make(chan *swapdetect.Event, 100),
	}
}

// SwapEvents returns the channel swap events are published on for the
// trading engine to consume.
func (p *Processor) SwapEvents() <-chan *swapdetect.Event {
	return p.swapCh
}

// Run consumes signatures until signatures is closed or stop fires,
// spawning one bounded goroutine per signature. It blocks until every
// in-flight signature has finished processing.
func (p *Processor) Run(ctx context.Context, signatures <-chan string, stop <-chan struct{}) {
	sweepStop := make(chan struct{})
	go p.cache.Run(sweepStop, cacheSweepPeriod)
	defer close(sweepStop)

	done := make(chan struct{})
	active := 0

	for {
		select {
		case sig, ok := <-signatures:
			if !ok {
				p.logger.Info("signature channel closed")
				p.drain(active, done)
				return
			}

			permit, err := p.workers.Acquire(ctx)
			if err != nil {
				p.logger.Warn("worker semaphore closed, stopping processor")
				p.drain(active, done)
				return
			}

			active++
			go func(signature string) {
				defer func() {
					permit.Release()
					done <- struct{}{}
				}()
				p.processSignature(ctx, signature)
			}(sig)

		case <-done:
			active--

		case <-stop:
			p.logger.Info("processor shutting down")
			p.drain(active, done)
			return
		}
	}
}

func (p *Processor) drain(active int, done <-chan struct{}) {
	for active > 0 {
		<-done
		active--
	}
}

func (p *Processor) processSignature(ctx context.Context, signature string) {
	if !p.cache.CheckAndInsert(signature) {
		return
	}

	wsArrival := time.Now()

	fetchStart := time.Now()
	raw, blockTime, err := p.fetchWithRetry(ctx, signature)
	fetchEnd := time.Now()
	if err != nil {
		p.logger.Warn("failed to fetch transaction",
			mirrorlog.F("signature", signature),
			mirrorlog.F("error", err.Error()),
		)
		return
	}

	parsed, err := txparse.Parse(signature, raw)
	if err != nil {
		p.logger.Warn("failed to parse transaction",
			mirrorlog.F("signature", signature),
			mirrorlog.F("error", err.Error()),
		)
		return
	}
	parsed.BlockTime = blockTime

	event, ok := swapdetect.Detect(parsed, p.targetWallet)
	if !ok {
		p.stats.UpdateProcessingLatency(uint64(time.Since(wsArrival).Milliseconds()))
		return
	}

	processEnd := time.Now()
	p.stats.IncSwapsDetected()

	fetchLatencyMs := fetchEnd.Sub(fetchStart).Milliseconds()
	processingLatencyMs := processEnd.Sub(fetchEnd).Milliseconds()
	totalPipelineMs := processEnd.Sub(wsArrival).Milliseconds()

	blockLagSeconds := int64(-1)
	if blockTime > 0 {
		blockLagSeconds = time.Now().Unix() - blockTime
	}

	p.logger.Info("swap detected",
		mirrorlog.F("signature", signature),
		mirrorlog.F("direction", event.Direction.String()),
		mirrorlog.F("mint", event.Mint),
		mirrorlog.F("amount_in", event.AmountIn),
		mirrorlog.F("amount_out", event.AmountOut),
		mirrorlog.F("price", event.Price),
		mirrorlog.F("fetch_latency_ms", fetchLatencyMs),
		mirrorlog.F("processing_latency_ms", processingLatencyMs),
		mirrorlog.F("total_pipeline_ms", totalPipelineMs),
		mirrorlog.F("block_lag_s", blockLagSeconds),
	)

	p.stats.UpdateProcessingLatency(uint64(time.Since(wsArrival).Milliseconds()))

	select {
	case p.swapCh <- event:
	case <-ctx.Done():
	}
}

// fetchWithRetry polls getTransaction up to fetchMaxAttempts times, 300ms
// apart, since a signature can arrive over the log stream before the
// transaction is indexed for lookup.
func (p *Processor) fetchWithRetry(ctx context.Context, signature string) (json.RawMessage, int64, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchMaxAttempts; attempt++ {
		raw, err := p.client.GetTransaction(ctx, signature)
		if err == nil && !isNull(raw) {
			var envelope struct {
				BlockTime *int64 `json:"blockTime"`
			}
			_ = json.Unmarshal(raw, &envelope)
			blockTime := int64(0)
			if envelope.BlockTime != nil {
				blockTime = *envelope.BlockTime
			}
			return raw, blockTime, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errTransactionNotIndexed
		}

		if attempt < fetchMaxAttempts {
			select {
			case <-time.After(fetchRetryDelay):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}
	return nil, 0, lastErr
}

var errTransactionNotIndexed = errNotIndexed("transaction not found after retries")

type errNotIndexed string

func (e errNotIndexed) Error() string { return string(e) }

func isNull(raw json.RawMessage) bool {
	trimmed := bytesTrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpaceByte(b[start]) {
		start++
	}
	for end > start && isSpaceByte(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

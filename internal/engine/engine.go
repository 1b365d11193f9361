// Package engine implements the trading engine of §4.K: for every detected
// swap it mirrors the wallet's intent — buy the configured amount when the
// target bought, sell the entire held balance when the target sold — then
// routes the trade through risk checks, the aggregator, the signer, and
// finally fan-out broadcast.
//
// Ported from original_source/src/trading/engine.rs's TradingEngine and
// EngineContext: one spawned task per swap event, the Buy path using the
// configured buy amount (Config.BuyAmountSOL) as the "copy unit", the Sell path
// liquidating the full balance, and the same
// check_trade -> get_quote -> get_swap_tx -> sign -> send_with_retry(3)
// sequence. Balance and decimals lookups go through
// getTokenAccountsByOwner (internal/rpcrace) instead of deriving the
// associated token account and unpacking SPL account bytes by hand, since
// that derivation is explicitly out of scope for this package.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaysol/mirror/internal/jupiter"
	"github.com/relaysol/mirror/internal/mirrorerr"
	"github.com/relaysol/mirror/internal/mirrorlog"
	"github.com/relaysol/mirror/internal/risk"
	"github.com/relaysol/mirror/internal/rpcrace"
	"github.com/relaysol/mirror/internal/signer"
	"github.com/relaysol/mirror/internal/stats"
	"github.com/relaysol/mirror/internal/swapdetect"
)

const (
	solMint        = "So11111111111111111111111111111111111111112"
	lamportsPerSOL = 1_000_000_000.0
	sendAttempts   = 3
)

// Config holds the trade sizing parameters that are not already owned by
// risk.Manager.
type Config struct {
	BuyAmountSOL float64
}

// Engine consumes swap events and attempts to mirror each one.
type Engine struct {
	cfg    Config
	risk   *risk.Manager
	signer *signer.Signer
	jup    *jupiter.Client
	rpc    *rpcrace.Client
	stats  *stats.Stats
	logger *mirrorlog.Logger
}

// New creates an Engine.
func New(cfg Config, riskManager *risk.Manager, sign *signer.Signer, jup *jupiter.Client, rpc *rpcrace.Client, st *stats.Stats, logger *mirrorlog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		risk:   riskManager,
		signer: sign,
		jup:    jup,
		rpc:    rpc,
		stats:  st,
		logger: logger,
	}
}

// Run consumes events until the channel is closed or stop fires, spawning
// one goroutine per event so a slow trade never stalls newer ones. It
// blocks until every in-flight trade finishes.
func (e *Engine) Run(ctx context.Context, events <-chan *swapdetect.Event, stop <-chan struct{}) {
	done := make(chan struct{})
	active := 0

	for {
		select {
		case event, ok := <-events:
			if !ok {
				e.drain(active, done)
				return
			}
			active++
			go func(ev *swapdetect.Event) {
				defer func() { done <- struct{}{} }()
				if err := e.executeTrade(ctx, ev); err != nil {
					if mirrorerr.Is(err, mirrorerr.Trading) {
						e.logger.Info("trade rejected by risk check",
							mirrorlog.F("mint", ev.Mint),
							mirrorlog.F("reason", err.Error()),
						)
						return
					}
					e.stats.IncFailedTrades()
					e.logger.Warn("trade execution failed",
						mirrorlog.F("mint", ev.Mint),
						mirrorlog.F("error", err.Error()),
					)
				}
			}(event)

		case <-done:
			active--

		case <-stop:
			e.drain(active, done)
			return
		}
	}
}

func (e *Engine) drain(active int, done <-chan struct{}) {
	for active > 0 {
		<-done
		active--
	}
}

func (e *Engine) executeTrade(ctx context.Context, event *swapdetect.Event) error {
	startTime := time.Now()

	inputMint, outputMint, amountBase, err := e.resolveTradeLegs(ctx, event)
	if err != nil {
		return err
	}
	if amountBase == 0 {
		return nil
	}

	amountSOLRisk, err := e.riskAmount(ctx, inputMint, amountBase, event.Price)
	if err != nil {
		return err
	}

	if err := e.risk.CheckTrade(outputMint, amountSOLRisk); err != nil {
		return err
	}

	e.logger.Info("executing trade",
		mirrorlog.F("output_mint", outputMint),
		mirrorlog.F("approx_sol_value", amountSOLRisk),
	)

	quote, err := e.jup.GetQuote(ctx, inputMint, outputMint, amountBase)
	if err != nil {
		return err
	}

	swap, err := e.jup.GetSwapTx(ctx, quote, e.signer.PublicKey().String())
	if err != nil {
		return err
	}

	signedTx, err := e.signer.Sign(swap.SwapTransaction)
	if err != nil {
		return err
	}

	signature, err := e.rpc.SendTransactionWithRetry(ctx, signedTx, sendAttempts)
	if err != nil {
		return err
	}

	e.logger.Info("trade submitted", mirrorlog.F("signature", signature))

	e.risk.RecordTrade(event.Mint)
	e.stats.IncSuccessfulTrades()
	e.stats.UpdateTradeLatency(uint64(time.Since(startTime).Milliseconds()))

	return nil
}

// resolveTradeLegs decides which mint we spend and which we receive, and
// how much, mirroring the target's direction rather than its exact size:
// a Buy spends the configured copy-unit amount of SOL; a Sell liquidates
// the wallet's entire balance of the token.
func (e *Engine) resolveTradeLegs(ctx context.Context, event *swapdetect.Event) (inputMint, outputMint string, amountBase uint64, err error) {
	switch event.Direction {
	case swapdetect.Buy:
		amountLamports := uint64(e.cfg.BuyAmountSOL * lamportsPerSOL)
		return solMint, event.Mint, amountLamports, nil

	case swapdetect.Sell:
		balance, err := e.tokenBalance(ctx, event.Mint)
		if err != nil {
			return "", "", 0, err
		}
		if balance == 0 {
			e.logger.Warn("target sold but our balance is zero, skipping", mirrorlog.F("mint", event.Mint))
			return "", "", 0, nil
		}
		return event.Mint, solMint, balance, nil

	default:
		return "", "", 0, mirrorerr.New(mirrorerr.Trading, "unknown swap direction")
	}
}

// riskAmount expresses the trade size in SOL for the risk manager: direct
// for a SOL-denominated buy, converted via decimals and the observed price
// for a token-denominated sell.
func (e *Engine) riskAmount(ctx context.Context, inputMint string, amountBase uint64, price float64) (float64, error) {
	if inputMint == solMint {
		return float64(amountBase) / lamportsPerSOL, nil
	}

	decimals, err := e.mintDecimals(ctx, inputMint)
	if err != nil {
		return 0, err
	}
	tokenAmount := float64(amountBase) / pow10(decimals)
	return tokenAmount * price, nil
}

type parsedTokenAccountsResponse struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount   string `json:"amount"`
							Decimals uint8  `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

func (e *Engine) tokenBalance(ctx context.Context, mint string) (uint64, error) {
	raw, err := e.rpc.GetTokenAccountsByOwner(ctx, e.signer.PublicKey().String(), mint)
	if err != nil {
		return 0, err
	}

	var parsed parsedTokenAccountsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, mirrorerr.Wrap(mirrorerr.Parse, "failed to decode token account balance", err)
	}
	if len(parsed.Value) == 0 {
		return 0, nil
	}

	amountStr := parsed.Value[0].Account.Data.Parsed.Info.TokenAmount.Amount
	return parseUint(amountStr), nil
}

func (e *Engine) mintDecimals(ctx context.Context, mint string) (uint8, error) {
	raw, err := e.rpc.GetTokenAccountsByOwner(ctx, e.signer.PublicKey().String(), mint)
	if err != nil {
		return 0, err
	}

	var parsed parsedTokenAccountsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, mirrorerr.Wrap(mirrorerr.Parse, "failed to decode mint decimals", err)
	}
	if len(parsed.Value) == 0 {
		return 0, mirrorerr.New(mirrorerr.NotFound, "no token account found for mint "+mint)
	}
	return parsed.Value[0].Account.Data.Parsed.Info.TokenAmount.Decimals, nil
}

func pow10(decimals uint8) float64 {
	result := 1.0
	for i := uint8(0); i < decimals; i++ {
		result *= 10
	}
	return result
}

func parseUint(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}

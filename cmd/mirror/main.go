// Command mirror runs the copy-trading pipeline end to end: it watches a
// target wallet's transaction log stream, detects its swaps, and mirrors
// them through Jupiter with this wallet's own funds.
//
// Wiring follows original_source/src/main.rs's run_session: one shutdown
// signal shared by every component, a periodic stats logger, and a
// top-level select between a critical subscriber failure and SIGINT/SIGTERM.
// The source-selection menu ahead of it is interactive UI and out of scope
// per spec.md; this entry point runs the single session WS_URL names.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaysol/mirror/internal/config"
	"github.com/relaysol/mirror/internal/engine"
	"github.com/relaysol/mirror/internal/jupiter"
	"github.com/relaysol/mirror/internal/mirrorlog"
	"github.com/relaysol/mirror/internal/processor"
	"github.com/relaysol/mirror/internal/risk"
	"github.com/relaysol/mirror/internal/rpcrace"
	"github.com/relaysol/mirror/internal/signer"
	"github.com/relaysol/mirror/internal/stats"
	"github.com/relaysol/mirror/internal/subscriber"
)

const (
	statsLogInterval = 60 * time.Second
	shutdownGrace    = 5 * time.Second
	rpcRaceCapacity  = 50
)

func main() {
	logger := mirrorlog.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", mirrorlog.F("error", err.Error()))
		os.Exit(1)
	}

	level := mirrorlog.ParseLevel(cfg.LogLevel)
	logger = mirrorlog.New(os.Stderr, level)

	if err := run(cfg, logger); err != nil {
		logger.Error("session ended with error", mirrorlog.F("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *mirrorlog.Logger) error {
	logger.Info("starting session",
		mirrorlog.F("ws_url", cfg.WSURL),
		mirrorlog.F("wallet", cfg.WalletAddress),
	)

	st := stats.New()
	stop := make(chan struct{})
	var stopOnce closeOnce

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcClient, err := rpcrace.New(cfg.RPCEndpoints, rpcRaceCapacity)
	if err != nil {
		return err
	}

	sub := subscriber.New(subscriber.DefaultConfig(cfg.WSURL, cfg.WalletAddress), logger)
	signatures := sub.SignatureReceiver()

	proc := processor.New(rpcClient, cfg.WalletAddress, cfg.MaxWorkers, st, logger)

	riskManager := risk.New(cfg.MinTradeAmountSOL, cfg.MaxTradeAmountSOL, time.Duration(cfg.CooldownSeconds)*time.Second)

	signerInstance, err := signer.New(cfg.PrivateKeyBase58)
	if err != nil {
		return err
	}

	jupClient := jupiter.New(jupiter.Config{
		QuoteURL:            cfg.JupiterQuoteURL,
		SwapURL:             cfg.JupiterSwapURL,
		SlippageBps:         cfg.SlippageBps,
		PriorityLevel:       cfg.PriorityLevel,
		PriorityMaxLamports: cfg.PriorityMaxLamports,
		Timeout:             cfg.JupiterTimeout,
	})

	tradingEngine := engine.New(engine.Config{BuyAmountSOL: cfg.BuyAmountSOL}, riskManager, signerInstance, jupClient, rpcClient, st, logger)

	statsStop := make(chan struct{})
	go st.Run(statsStop, logger, statsLogInterval)
	defer close(statsStop)

	subDone := make(chan struct{})
	go func() {
		sub.Run(stop)
		close(subDone)
	}()
	logger.Info("subscriber running")

	procStop := make(chan struct{})
	procDone := make(chan struct{})
	go func() {
		proc.Run(ctx, signatures, procStop)
		close(procDone)
	}()
	logger.Info("processor running")

	engineStop := make(chan struct{})
	engineDone := make(chan struct{})
	go func() {
		tradingEngine.Run(ctx, proc.SwapEvents(), engineStop)
		close(engineDone)
	}()
	logger.Info("trading engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-subDone:
		logger.Warn("subscriber exited unexpectedly, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", mirrorlog.F("signal", sig.String()))
	}

	// Stop accepting new work, but leave ctx alone: already-spawned per-event
	// goroutines keep their in-flight fetch/quote/sign/broadcast calls alive
	// for up to shutdownGrace before they're forced to give up.
	stopOnce.Do(func() { close(stop) })
	close(procStop)
	close(engineStop)

	shutdownTimer := time.NewTimer(shutdownGrace)
	defer shutdownTimer.Stop()

	waitAll := make(chan struct{})
	go func() {
		<-procDone
		<-engineDone
		close(waitAll)
	}()

	select {
	case <-waitAll:
		logger.Info("shutdown complete")
	case <-shutdownTimer.C:
		logger.Warn("shutdown grace period elapsed, cancelling in-flight work")
	}

	cancel()

	return nil
}

// closeOnce guards the shared stop channel against a double close when
// both the subscriber-failure and signal paths race to shut things down.
type closeOnce struct {
	done bool
}

func (c *closeOnce) Do(f func()) {
	if c.done {
		return
	}
	c.done = true
	f()
}

package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysol/mirror/internal/jupiter"
	"github.com/relaysol/mirror/internal/mirrorlog"
	"github.com/relaysol/mirror/internal/risk"
	"github.com/relaysol/mirror/internal/rpcrace"
	"github.com/relaysol/mirror/internal/signer"
	"github.com/relaysol/mirror/internal/stats"
	"github.com/relaysol/mirror/internal/swapdetect"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	wallet := solana.NewWallet()
	s, err := signer.New(wallet.PrivateKey.String())
	require.NoError(t, err)
	return s
}

func newTestEngine(t *testing.T, rpcHandler http.HandlerFunc, jupHandler http.HandlerFunc, cfg Config) *Engine {
	t.Helper()

	rpcSrv := httptest.NewServer(rpcHandler)
	t.Cleanup(rpcSrv.Close)
	rpc, err := rpcrace.New([]string{rpcSrv.URL}, 10)
	require.NoError(t, err)

	jupSrv := httptest.NewServer(jupHandler)
	t.Cleanup(jupSrv.Close)
	jup := jupiter.New(jupiter.Config{
		QuoteURL:            jupSrv.URL + "/quote",
		SwapURL:             jupSrv.URL + "/swap",
		SlippageBps:         50,
		PriorityLevel:       "veryHigh",
		PriorityMaxLamports: 1_000_000,
		Timeout:             2 * time.Second,
	})

	riskManager := risk.New(0.0001, 10.0, time.Minute)
	st := stats.New()
	logger := mirrorlog.New(discard{}, mirrorlog.LevelInfo)

	return New(cfg, riskManager, newTestSigner(t), jup, rpc, st, logger)
}

func TestExecuteTradeBuyPath(t *testing.T) {
	rpcHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"sig-buy"}`))
	}
	jupHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if r.URL.Path == "/quote" {
			_ = json.NewEncoder(w).Encode(jupiter.QuoteResponse{OutAmount: "5000000"})
			return
		}
		_ = json.NewEncoder(w).Encode(jupiter.SwapResponse{SwapTransaction: buildUnsignedSwapTx(t)})
	}

	e := newTestEngine(t, rpcHandler, jupHandler, Config{BuyAmountSOL: 0.1})

	event := &swapdetect.Event{
		Signature: "sig1",
		Direction: swapdetect.Buy,
		Mint:      "MintUSDC1111111111111111111111111111111111",
		Price:     0.1,
	}

	err := e.executeTrade(context.Background(), event)
	require.NoError(t, err)
}

func TestExecuteTradeSellSkipsOnZeroBalance(t *testing.T) {
	rpcHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[]}}`))
	}
	jupHandler := func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("jupiter should not be called when balance is zero")
	}

	e := newTestEngine(t, rpcHandler, jupHandler, Config{BuyAmountSOL: 0.1})

	event := &swapdetect.Event{
		Signature: "sig2",
		Direction: swapdetect.Sell,
		Mint:      "MintUSDC1111111111111111111111111111111111",
		Price:     0.1,
	}

	err := e.executeTrade(context.Background(), event)
	assert.NoError(t, err)
}

func TestExecuteTradeRejectedByRiskManagerDoesNotCallAggregator(t *testing.T) {
	jupHandler := func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("jupiter should not be called when risk check fails")
	}
	rpcHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"unused"}`))
	}

	// BuyAmountSOL below the risk manager's minimum forces a rejection.
	e := newTestEngine(t, rpcHandler, jupHandler, Config{BuyAmountSOL: 0.1})
	e.risk = risk.New(1.0, 10.0, time.Minute)

	event := &swapdetect.Event{
		Signature: "sig3",
		Direction: swapdetect.Buy,
		Mint:      "MintUSDC1111111111111111111111111111111111",
		Price:     0.1,
	}

	err := e.executeTrade(context.Background(), event)
	assert.Error(t, err)
}

func buildUnsignedSwapTx(t *testing.T) string {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	instr := system.NewTransferInstruction(1, payer, recipient).Build()

	tx, err := solana.NewTransaction([]solana.Instruction{instr}, solana.Hash{}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

package swapdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysol/mirror/internal/txparse"
)

const wallet = "User111111111111111111111111111111111111111"

func TestDetectBuy(t *testing.T) {
	tx := &txparse.ParsedTransaction{
		Signature: "sig1",
		AccountChanges: []txparse.AccountChange{
			{Pubkey: wallet, Delta: -100_000_000},
		},
		TokenDeltas: []txparse.TokenDelta{
			{Account: wallet, Mint: "MintUSDC", Decimals: 6, Delta: 1_000_000},
		},
	}

	event, ok := Detect(tx, wallet)
	require.True(t, ok)
	assert.Equal(t, Buy, event.Direction)
	assert.Equal(t, "MintUSDC", event.Mint)
	assert.InDelta(t, 0.1, event.AmountIn, 1e-9)
	assert.InDelta(t, 1.0, event.AmountOut, 1e-9)
	assert.InDelta(t, 0.1, event.Price, 1e-9)
}

func TestDetectSell(t *testing.T) {
	tx := &txparse.ParsedTransaction{
		Signature: "sig2",
		AccountChanges: []txparse.AccountChange{
			{Pubkey: wallet, Delta: 50_000_000},
		},
		TokenDeltas: []txparse.TokenDelta{
			{Account: wallet, Mint: "MintUSDC", Decimals: 6, Delta: -500_000},
		},
	}

	event, ok := Detect(tx, wallet)
	require.True(t, ok)
	assert.Equal(t, Sell, event.Direction)
	assert.InDelta(t, 0.5, event.AmountIn, 1e-9)
	assert.InDelta(t, 0.05, event.AmountOut, 1e-9)
}

func TestDetectNoTokenDeltaReturnsFalse(t *testing.T) {
	tx := &txparse.ParsedTransaction{
		Signature:      "sig3",
		AccountChanges: []txparse.AccountChange{{Pubkey: wallet, Delta: -1000}},
	}

	_, ok := Detect(tx, wallet)
	assert.False(t, ok)
}

func TestDetectIgnoresOtherWallets(t *testing.T) {
	tx := &txparse.ParsedTransaction{
		Signature:      "sig4",
		AccountChanges: []txparse.AccountChange{{Pubkey: "SomeoneElse", Delta: -1000}},
	}

	_, ok := Detect(tx, wallet)
	assert.False(t, ok)
}

func TestDetectSameDirectionDeltasSkipped(t *testing.T) {
	// SOL and token both decreasing is neither a buy nor a sell.
	tx := &txparse.ParsedTransaction{
		Signature: "sig5",
		AccountChanges: []txparse.AccountChange{
			{Pubkey: wallet, Delta: -1000},
		},
		TokenDeltas: []txparse.TokenDelta{
			{Account: wallet, Mint: "MintUSDC", Decimals: 6, Delta: -500_000},
		},
	}

	_, ok := Detect(tx, wallet)
	assert.False(t, ok)
}

// Package swapdetect implements the swap classifier of §4.F: given a
// parsed transaction and the wallet being mirrored, it decides whether the
// transaction is a SOL-for-token buy or a token-for-SOL sell.
//
// Ported directly from original_source/src/processor/swap_detector.rs's
// detect_swap: only the target wallet's own balance changes are examined,
// a Buy is SOL decreasing while a token increases, a Sell is the reverse,
// and a zero-amount match is skipped rather than reported.
package swapdetect

import (
	"github.com/relaysol/mirror/internal/txparse"
)

// Direction is which side of the pair the target wallet gave up.
type Direction int

const (
	// Buy means the wallet spent SOL to receive the token.
	Buy Direction = iota
	// Sell means the wallet spent the token to receive SOL.
	Sell
)

func (d Direction) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

// Event is a detected swap, denominated in whole SOL and whole token units
// (already divided by the mint's decimals).
type Event struct {
	Signature string
	User      string
	Direction Direction
	Mint      string
	AmountIn  float64
	AmountOut float64
	Price     float64
}

const lamportsPerSol = 1e9

// Detect inspects tx for a balance change belonging to targetWallet that
// looks like a buy or sell, returning (nil, false) when none is found. Only
// the first qualifying token delta is reported; a transaction touching
// several mints at once is treated as out of scope for a single swap event,
// matching the original's "primary swap" comment.
func Detect(tx *txparse.ParsedTransaction, targetWallet string) (*Event, bool) {
	var solDelta int64
	found := false
	for _, change := range tx.AccountChanges {
		if change.Pubkey == targetWallet {
			solDelta = change.Delta
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	for _, token := range tx.TokenDeltas {
		if token.Account != targetWallet {
			continue
		}

		switch {
		case solDelta < 0 && token.Delta > 0:
			solSpent := absLamports(solDelta) / lamportsPerSol
			tokenReceived := float64(token.Delta) / pow10(token.Decimals)
			if tokenReceived == 0 {
				continue
			}
			return &Event{
				Signature: tx.Signature,
				User:      targetWallet,
				Direction: Buy,
				Mint:      token.Mint,
				AmountIn:  solSpent,
				AmountOut: tokenReceived,
				Price:     solSpent / tokenReceived,
			}, true

		case solDelta > 0 && token.Delta < 0:
			solReceived := float64(solDelta) / lamportsPerSol
			tokenSold := absLamports(token.Delta) / pow10(token.Decimals)
			if tokenSold == 0 {
				continue
			}
			return &Event{
				Signature: tx.Signature,
				User:      targetWallet,
				Direction: Sell,
				Mint:      token.Mint,
				AmountIn:  tokenSold,
				AmountOut: solReceived,
				Price:     solReceived / tokenSold,
			}, true
		}
	}

	return nil, false
}

func absLamports(v int64) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

func pow10(decimals uint8) float64 {
	result := 1.0
	for i := uint8(0); i < decimals; i++ {
		result *= 10
	}
	return result
}

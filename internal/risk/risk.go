// Package risk implements the pre-trade risk manager of §4.H: amount-bound
// checks plus a per-mint cooldown, keeping the pipeline from firing two
// trades on the same token in quick succession.
//
// Ported directly from original_source/src/trading/risk.rs's RiskManager.
// The cooldown map is a single map guarded by one sync.Mutex; unlike
// internal/dedup's cache it is not sharded.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/relaysol/mirror/internal/mirrorerr"
)

// Manager enforces minimum/maximum trade size and a per-mint cooldown.
type Manager struct {
	mu       sync.Mutex
	cooldowns map[string]time.Time

	minAmountSOL     float64
	maxAmountSOL     float64
	cooldownDuration time.Duration
}

// New creates a Manager with the given bounds and cooldown window.
func New(minAmountSOL, maxAmountSOL float64, cooldown time.Duration) *Manager {
	return &Manager{
		cooldowns:        make(map[string]time.Time),
		minAmountSOL:     minAmountSOL,
		maxAmountSOL:     maxAmountSOL,
		cooldownDuration: cooldown,
	}
}

// CheckTrade rejects amounts outside [min, max] and mints still inside
// their cooldown window, classifying every rejection as a TradingError.
func (m *Manager) CheckTrade(tokenMint string, amountSOL float64) error {
	if amountSOL < m.minAmountSOL {
		return mirrorerr.New(mirrorerr.Trading, fmt.Sprintf(
			"trade amount %.6f SOL is below minimum %.6f SOL", amountSOL, m.minAmountSOL))
	}
	if amountSOL > m.maxAmountSOL {
		return mirrorerr.New(mirrorerr.Trading, fmt.Sprintf(
			"trade amount %.6f SOL is above maximum %.6f SOL", amountSOL, m.maxAmountSOL))
	}

	m.mu.Lock()
	lastTrade, onCooldown := m.cooldowns[tokenMint]
	m.mu.Unlock()

	if onCooldown {
		elapsed := time.Since(lastTrade)
		if elapsed < m.cooldownDuration {
			remaining := m.cooldownDuration - elapsed
			return mirrorerr.New(mirrorerr.Trading, fmt.Sprintf(
				"token %s is in cooldown, %.0fs remaining", tokenMint, remaining.Seconds()))
		}
	}

	return nil
}

// RecordTrade marks tokenMint as just traded, starting its cooldown.
func (m *Manager) RecordTrade(tokenMint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[tokenMint] = time.Now()
}

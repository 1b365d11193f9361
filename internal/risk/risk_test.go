package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/relaysol/mirror/internal/mirrorerr"
)

func TestCheckTradeEnforcesLimits(t *testing.T) {
	r := New(0.1, 1.0, time.Minute)

	err := r.CheckTrade("MintA", 0.05)
	assert.Error(t, err)
	assert.True(t, mirrorerr.Is(err, mirrorerr.Trading))

	err = r.CheckTrade("MintA", 1.5)
	assert.Error(t, err)

	assert.NoError(t, r.CheckTrade("MintA", 0.5))
}

func TestCheckTradeEnforcesCooldown(t *testing.T) {
	r := New(0.1, 1.0, 100*time.Millisecond)

	assert.NoError(t, r.CheckTrade("MintA", 0.5))
	r.RecordTrade("MintA")

	err := r.CheckTrade("MintA", 0.5)
	assert.Error(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.NoError(t, r.CheckTrade("MintA", 0.5))
}

func TestCooldownIsPerMint(t *testing.T) {
	r := New(0.1, 1.0, time.Minute)

	assert.NoError(t, r.CheckTrade("MintA", 0.5))
	r.RecordTrade("MintA")

	assert.Error(t, r.CheckTrade("MintA", 0.5))
	assert.NoError(t, r.CheckTrade("MintB", 0.5))
}

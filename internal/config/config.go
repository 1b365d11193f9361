// Package config loads the pipeline's runtime configuration from the
// process environment. It fixes only the values §4 components need; env
// loading UI and interactive prompting are out of scope per spec.md §1.
//
// Grounded on original_source/src/config.rs's Config::load: plain
// environment variables, a comma-separated RPC_ENDPOINTS list, and the
// same defaults (log level "info", 4 workers, Jupiter v6 quote API) carried
// over into their Go equivalents.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relaysol/mirror/internal/mirrorerr"
)

// Config is every value the wired-up pipeline needs at startup.
type Config struct {
	LogLevel string

	WalletAddress    string
	PrivateKeyBase58 string

	WSURL         string
	FallbackWSURL string

	RPCEndpoints []string

	JupiterQuoteURL  string
	JupiterSwapURL   string
	JupiterTimeout   time.Duration
	SlippageBps      int
	PriorityLevel    string
	PriorityMaxLamports uint64

	MaxWorkers        int
	MinTradeAmountSOL float64
	MaxTradeAmountSOL float64
	BuyAmountSOL      float64
	CooldownSeconds   int
}

// Load reads every variable from the environment, applying the defaults
// named in §6, and validating that the required ones are present.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		WalletAddress:       os.Getenv("WALLET_ADDRESS"),
		PrivateKeyBase58:    os.Getenv("PRIVATE_KEY_BYTES"),
		WSURL:               getEnv("WS_URL", getEnv("FALLBACK_WS_URL", "wss://api.mainnet-beta.solana.com")),
		FallbackWSURL:       os.Getenv("FALLBACK_WS_URL"),
		JupiterQuoteURL:     getEnv("JUPITER_QUOTE_URL", "https://quote-api.jup.ag/v6/quote"),
		JupiterSwapURL:      getEnv("JUPITER_SWAP_URL", "https://quote-api.jup.ag/v6/swap"),
		SlippageBps:         getEnvInt("SLIPPAGE_BPS", 50),
		PriorityLevel:       getEnv("JUP_PRIORITY_LEVEL", "veryHigh"),
		PriorityMaxLamports: uint64(getEnvInt("JUP_PRIORITY_MAX_LAMPORTS", 10_000_000)),
		MaxWorkers:          getEnvInt("MAX_WORKERS", 4),
		MinTradeAmountSOL:   getEnvFloat("MIRROR_MIN_SOL", 0.001),
		MaxTradeAmountSOL:   getEnvFloat("MIRROR_MAX_SOL", 1.0),
		BuyAmountSOL:        getEnvFloat("BUY_AMOUNT_SOL", 0.01),
		CooldownSeconds:     getEnvInt("COOLDOWN_SECONDS", 60),
	}

	timeoutMs := getEnvInt("JUPITER_TIMEOUT_MS", 1000)
	cfg.JupiterTimeout = time.Duration(timeoutMs) * time.Millisecond

	rpcStr := os.Getenv("RPC_ENDPOINTS")
	for _, endpoint := range strings.Split(rpcStr, ",") {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" {
			cfg.RPCEndpoints = append(cfg.RPCEndpoints, endpoint)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WalletAddress == "" {
		return mirrorerr.New(mirrorerr.Config, "WALLET_ADDRESS is required")
	}
	if c.PrivateKeyBase58 == "" {
		return mirrorerr.New(mirrorerr.Config, "PRIVATE_KEY_BYTES is required")
	}
	if c.WSURL == "" {
		return mirrorerr.New(mirrorerr.Config, "WS_URL is required")
	}
	if len(c.RPCEndpoints) == 0 {
		return mirrorerr.New(mirrorerr.Config, "RPC_ENDPOINTS is required and must contain at least one endpoint")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultProgramID is the deployed creator profile program.
const DefaultProgramID = "2ZxirQjK8vJ5yvGWbX3XGEybE6wBiFFCBzPwJc9V3fhm"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration. Empty disables the tip ledger.
	DatabaseURL string

	// NATS configuration. Empty disables tip events.
	NATSURL string

	// Solana configuration
	SolanaRPCURLs      []string
	FeePayerPrivateKey string
	TokenMintAddress   string
	TokenDecimals      uint8
	ProgramID          string
	Commitment         rpc.CommitmentType

	// Relay funding
	MinRelayerReserveLamports uint64
	FundingCheckInterval      time.Duration
	ProfileCacheTTL           time.Duration

	// Confirmation watching
	WatchTimeout      time.Duration
	WatchPollInterval time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Tracing. Empty disables export.
	OTLPEndpoint string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaRPCURLs = splitList(os.Getenv("SOLANA_RPC_URL"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.FeePayerPrivateKey = os.Getenv("FEE_PAYER_PRIVATE_KEY")

	cfg.TokenMintAddress = os.Getenv("TOKEN_MINT_ADDRESS")
	if cfg.TokenMintAddress == "" {
		errs = append(errs, fmt.Errorf("TOKEN_MINT_ADDRESS is required"))
	} else if _, err := solana.PublicKeyFromBase58(cfg.TokenMintAddress); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_MINT_ADDRESS: invalid public key: %w", err))
	}

	decimals, err := parseInt("TOKEN_DECIMALS", 6)
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > 18 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 18"))
	} else {
		cfg.TokenDecimals = uint8(decimals)
	}

	cfg.ProgramID = getEnvOrDefault("FLOWTIP_PROGRAM_ID", DefaultProgramID)
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("FLOWTIP_PROGRAM_ID: invalid public key: %w", err))
	}

	cfg.Commitment = rpc.CommitmentType(getEnvOrDefault("COMMITMENT", string(rpc.CommitmentConfirmed)))
	switch cfg.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("COMMITMENT must be processed, confirmed or finalized, got %q", cfg.Commitment))
	}

	reserve, err := parseUint("MIN_RELAYER_RESERVE_LAMPORTS", 10_000_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinRelayerReserveLamports = reserve
	}

	if cfg.FundingCheckInterval, err = parseDuration("FUNDING_CHECK_INTERVAL", "1m"); err != nil {
		errs = append(errs, err)
	}
	if cfg.ProfileCacheTTL, err = parseDuration("PROFILE_CACHE_TTL", "10m"); err != nil {
		errs = append(errs, err)
	}
	if cfg.WatchTimeout, err = parseDuration("WATCH_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.WatchPollInterval, err = parseDuration("WATCH_POLL_INTERVAL", "2s"); err != nil {
		errs = append(errs, err)
	}

	if cfg.WatchPollInterval > 0 && cfg.WatchTimeout > 0 && cfg.WatchPollInterval > cfg.WatchTimeout {
		errs = append(errs, fmt.Errorf("WATCH_POLL_INTERVAL (%v) cannot be greater than WATCH_TIMEOUT (%v)",
			cfg.WatchPollInterval, cfg.WatchTimeout))
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "flowtip-confirmations")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	if c.TokenMintAddress == "" {
		errs = append(errs, fmt.Errorf("TokenMintAddress is required"))
	}

	if c.ProgramID == "" {
		errs = append(errs, fmt.Errorf("ProgramID is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.WatchPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("WatchPollInterval must be at least 100ms"))
	}

	if c.WatchPollInterval > c.WatchTimeout {
		errs = append(errs, fmt.Errorf("WatchPollInterval cannot be greater than WatchTimeout"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RequireRelayer checks the settings only the relay server needs.
func (c *Config) RequireRelayer() error {
	if c.FeePayerPrivateKey == "" {
		return fmt.Errorf("FEE_PAYER_PRIVATE_KEY is required")
	}
	return nil
}

// MintAddress returns the configured token mint.
func (c *Config) MintAddress() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.TokenMintAddress)
}

// ProgramAddress returns the configured profile program id.
func (c *Config) ProgramAddress() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %v", key, duration)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}

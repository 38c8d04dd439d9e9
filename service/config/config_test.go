package config

import (
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("TOKEN_MINT_ADDRESS", testMint)
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequired(t)
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, testMint, cfg.TokenMintAddress)
	assert.Equal(t, testMint, cfg.MintAddress().String())
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, uint8(6), cfg.TokenDecimals)
	assert.Equal(t, DefaultProgramID, cfg.ProgramAddress().String())
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.Commitment)
	assert.Equal(t, uint64(10_000_000), cfg.MinRelayerReserveLamports)
	assert.Equal(t, 60*time.Second, cfg.WatchTimeout)
	assert.Equal(t, 2*time.Second, cfg.WatchPollInterval)
	assert.Equal(t, time.Minute, cfg.FundingCheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.ProfileCacheTTL)
	assert.Equal(t, "flowtip-confirmations", cfg.TemporalTaskQueue)
	assert.Empty(t, cfg.DatabaseURL, "the ledger is optional")
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_MissingSolanaRPCURL(t *testing.T) {
	os.Setenv("TOKEN_MINT_ADDRESS", testMint)
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}

func TestLoad_MissingMint(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "TOKEN_MINT_ADDRESS is required")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad mint", "TOKEN_MINT_ADDRESS", "not-a-key", "TOKEN_MINT_ADDRESS: invalid public key"},
		{"bad program", "FLOWTIP_PROGRAM_ID", "0OIl", "FLOWTIP_PROGRAM_ID: invalid public key"},
		{"bad decimals", "TOKEN_DECIMALS", "nineteen", "invalid integer"},
		{"decimals out of range", "TOKEN_DECIMALS", "19", "between 0 and 18"},
		{"bad commitment", "COMMITMENT", "max", "COMMITMENT must be"},
		{"bad reserve", "MIN_RELAYER_RESERVE_LAMPORTS", "-1", "invalid unsigned integer"},
		{"bad duration", "WATCH_TIMEOUT", "invalid", "invalid duration"},
		{"zero duration", "WATCH_POLL_INTERVAL", "0s", "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			os.Setenv(tt.key, tt.value)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_PollIntervalGreaterThanTimeout(t *testing.T) {
	setRequired(t)
	os.Setenv("WATCH_TIMEOUT", "10s")
	os.Setenv("WATCH_POLL_INTERVAL", "30s")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "cannot be greater than")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	os.Setenv("SOLANA_RPC_URL", "https://a.example.com, https://b.example.com,")
	os.Setenv("FEE_PAYER_PRIVATE_KEY", "secret-key")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("TOKEN_DECIMALS", "9")
	os.Setenv("COMMITMENT", "finalized")
	os.Setenv("MIN_RELAYER_RESERVE_LAMPORTS", "5000000")
	os.Setenv("WATCH_TIMEOUT", "2m")
	os.Setenv("WATCH_POLL_INTERVAL", "500ms")
	os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, "secret-key", cfg.FeePayerPrivateKey)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, uint8(9), cfg.TokenDecimals)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, uint64(5_000_000), cfg.MinRelayerReserveLamports)
	assert.Equal(t, 2*time.Minute, cfg.WatchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchPollInterval)
	assert.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
	assert.NoError(t, cfg.RequireRelayer())
}

func TestRequireRelayer(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireRelayer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEE_PAYER_PRIVATE_KEY is required")
}

func validConfig() *Config {
	return &Config{
		SolanaRPCURLs:     []string{"https://api.mainnet-beta.solana.com"},
		TokenMintAddress:  testMint,
		ProgramID:         DefaultProgramID,
		TemporalHost:      "localhost:7233",
		TemporalNamespace: "default",
		TemporalTaskQueue: "flowtip-confirmations",
		WatchTimeout:      60 * time.Second,
		WatchPollInterval: 2 * time.Second,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingMint(t *testing.T) {
	cfg := validConfig()
	cfg.TokenMintAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TokenMintAddress is required")
}

func TestValidate_InvalidIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.WatchTimeout = 10 * time.Second
	cfg.WatchPollInterval = 30 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WatchPollInterval cannot be greater than WatchTimeout")
}

func TestValidate_TooShortInterval(t *testing.T) {
	cfg := validConfig()
	cfg.WatchPollInterval = 10 * time.Millisecond

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be at least 100ms")
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	setRequired(t)
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SOLANA_RPC_URL", "TOKEN_MINT_ADDRESS", "FEE_PAYER_PRIVATE_KEY", "TOKEN_DECIMALS",
		"FLOWTIP_PROGRAM_ID", "COMMITMENT", "MIN_RELAYER_RESERVE_LAMPORTS",
		"FUNDING_CHECK_INTERVAL", "PROFILE_CACHE_TTL", "WATCH_TIMEOUT", "WATCH_POLL_INTERVAL",
		"SERVER_ADDR", "METRICS_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		os.Unsetenv(key)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/localnet"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/relay"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), runErr
}

func TestJQFilterMatching(t *testing.T) {
	handle := "alice"
	event := &natspkg.TipEvent{
		Signature: "sig123",
		Recipient: "creator123",
		Sender:    "fan456",
		Handle:    &handle,
		Amount:    1_500_000,
		Status:    "confirmed",
	}

	tests := []struct {
		name        string
		filters     []string
		expectMatch bool
		expectErr   bool
	}{
		{
			name:        "no filters",
			expectMatch: true,
		},
		{
			name:        "status match",
			filters:     []string{`.status == "confirmed"`},
			expectMatch: true,
		},
		{
			name:        "status mismatch",
			filters:     []string{`.status == "failed"`},
			expectMatch: false,
		},
		{
			name:        "all filters must match",
			filters:     []string{`.amount > 1000000`, `.handle == "bob"`},
			expectMatch: false,
		},
		{
			name:        "json field names",
			filters:     []string{`.amount > 1000000`, `.handle == "alice"`},
			expectMatch: true,
		},
		{
			name:        "null is falsy",
			filters:     []string{`.slot`},
			expectMatch: false,
		},
		{
			name:      "invalid filter",
			filters:   []string{`.status ==`},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := matchesAll(tt.filters, event)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, ok)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	v := map[string]interface{}{"signature": "sig123", "amount": 25}

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, "", v))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "sig123", decoded["signature"])

	buf.Reset()
	require.NoError(t, writeJSON(&buf, ".signature", v))
	assert.Equal(t, "sig123\n", buf.String(), "strings print raw")

	buf.Reset()
	require.NoError(t, writeJSON(&buf, ".amount", v))
	assert.Equal(t, "25\n", buf.String())

	assert.Error(t, writeJSON(&buf, ".[", v))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"25", 25, false},
		{"18446744073709551615", 18446744073709551615, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"1.5", 0, true},
		{"18446744073709551616", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribeFailure(t *testing.T) {
	err := describeFailure("failed to send tip", failure.New(failure.InsufficientFunds, "insufficient funds"))
	assert.Contains(t, err.Error(), "check the request")
	assert.ErrorIs(t, err, failure.ErrInsufficientFunds)

	err = describeFailure("failed to send tip", failure.New(failure.StaleCheckpoint, "blockhash expired"))
	assert.Contains(t, err.Error(), "try again")

	err = describeFailure("failed to send tip", failure.New(failure.RelayerUnderfunded, "relay cannot pay"))
	assert.Contains(t, err.Error(), "contact support")
}

func TestDeriveProfile(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("2ZxirQjK8vJ5yvGWbX3XGEybE6wBiFFCBzPwJc9V3fhm")
	mint := solana.NewWallet().PublicKey()

	d, err := deriveProfile(programID, &mint, "alice")
	require.NoError(t, err)

	addr, bump, err := flowsolana.DeriveProfileAddress(programID, "alice")
	require.NoError(t, err)
	ata, err := flowsolana.DeriveTokenAccount(addr, mint)
	require.NoError(t, err)
	assert.Equal(t, addr.String(), d.Address)
	assert.Equal(t, bump, d.Bump)
	assert.Equal(t, ata.String(), d.TokenAccount)

	d, err = deriveProfile(programID, nil, "alice")
	require.NoError(t, err)
	assert.Empty(t, d.TokenAccount)

	_, err = deriveProfile(programID, nil, "")
	assert.Error(t, err)
}

func TestProfileDeriveCommand(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	out, err := captureStdout(t, func() error {
		return newApp().Run([]string{"flowtip", "--mint", mint.String(), "--jq", ".address", "profile", "derive", "alice"})
	})
	require.NoError(t, err)

	addr, _, err := flowsolana.DeriveProfileAddress(solana.MustPublicKeyFromBase58("2ZxirQjK8vJ5yvGWbX3XGEybE6wBiFFCBzPwJc9V3fhm"), "alice")
	require.NoError(t, err)
	assert.Equal(t, addr.String(), strings.TrimSpace(out))
}

func TestInitProfileAndInspect(t *testing.T) {
	ctx := context.Background()
	l := localnet.New()
	mint := l.CreateMint(6)
	creator := solana.NewWallet().PrivateKey
	l.Airdrop(creator.PublicKey(), 100_000_000)

	_, err := initProfile(ctx, l, l.ProgramID(), mint, creator, "alice")
	require.NoError(t, err)

	addr, _, err := flowsolana.DeriveProfileAddress(l.ProgramID(), "alice")
	require.NoError(t, err)
	profile, err := l.Profile(addr)
	require.NoError(t, err)
	assert.Equal(t, creator.PublicKey(), profile.Owner)

	_, err = initProfile(ctx, l, l.ProgramID(), mint, creator, "alice")
	assert.Error(t, err, "handles are claimed once")

	// a relay-built tip through the new profile decodes with its program label
	relayer := solana.NewWallet().PrivateKey
	l.Airdrop(relayer.PublicKey(), 1_000_000_000)
	sender := solana.NewWallet().PrivateKey
	senderATA, err := l.CreateTokenAccount(sender.PublicKey(), mint)
	require.NoError(t, err)
	require.NoError(t, l.MintTo(senderATA, 100))

	builder := relay.NewBuilder(l,
		relay.NewRPCBalanceChecker(l, relayer.PublicKey(), rpc.CommitmentConfirmed),
		relayer,
		relay.Config{ProgramID: l.ProgramID(), Mint: mint, Decimals: 6, MinReserveLamports: 10_000_000},
		nil, nil)
	built, err := builder.Build(ctx, relay.TipTransferIntent{
		Sender:    sender.PublicKey().String(),
		Recipient: creator.PublicKey().String(),
		Amount:    25,
		Handle:    "alice",
	})
	require.NoError(t, err)

	insp, err := inspectTransaction(built.SerializedTransaction, l.ProgramID())
	require.NoError(t, err)
	assert.True(t, insp.RelaySignatureValid)
	assert.Equal(t, relayer.PublicKey().String(), insp.FeePayer)
	assert.Equal(t, []string{sender.PublicKey().String()}, insp.MissingSigners)

	last := insp.Instructions[len(insp.Instructions)-1]
	assert.Equal(t, "flowtip", last.Program)
	require.NotNil(t, last.Amount)
	assert.Equal(t, uint64(25), *last.Amount)

	_, err = inspectTransaction("not-a-transaction", l.ProgramID())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestTipStatusCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tips/sig123/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"signature": "sig123",
			"status":    "failed",
			"reason":    "instruction 1 failed: InsufficientFunds",
			"kind":      "insufficient_funds",
		})
	}))
	defer server.Close()

	out, err := captureStdout(t, func() error {
		return newApp().Run([]string{"flowtip", "--server-url", server.URL, "tip", "status", "sig123"})
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    failed")
	assert.Contains(t, out, "InsufficientFunds")

	out, err = captureStdout(t, func() error {
		return newApp().Run([]string{"flowtip", "--server-url", server.URL, "--jq", ".kind", "tip", "status", "sig123"})
	})
	require.NoError(t, err)
	assert.Equal(t, "insufficient_funds\n", out)
}

func TestHealthCommand(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer healthy.Close()

	_, err := captureStdout(t, func() error {
		return newApp().Run([]string{"flowtip", "--server-url", healthy.URL, "server", "health"})
	})
	require.NoError(t, err)

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()

	err = newApp().Run([]string{"flowtip", "--server-url", unhealthy.URL, "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"recipient":"creator123"}`,
		"",
		": keepalive",
		"",
		"event: tip",
		`data: {"signature":"sig1","recipient":"creator123","sender":"fan","amount":25,"status":"confirmed"}`,
		"",
		"event: tip",
		`data: {"signature":"sig2","recipient":"creator123","sender":"fan","amount":5,"status":"failed"}`,
		"",
	}, "\n")

	var events []string
	var buf bytes.Buffer
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		events = append(events, event)
		return handleSSEEvent(&buf, event, data, true)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"connected", "tip", "tip"}, events)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"sig1"`)
	assert.Contains(t, lines[1], `"sig2"`)
}

func TestReadSSE_ServerError(t *testing.T) {
	stream := "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\nevent: tip\ndata: {}\n\n"
	var buf bytes.Buffer
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		return handleSSEEvent(&buf, event, data, false)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
	assert.Empty(t, buf.String())
}

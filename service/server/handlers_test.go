package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/flowtip/service/config"
	"github.com/brojonat/flowtip/service/db"
	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/localnet"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/program"
	"github.com/brojonat/flowtip/service/relay"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/brojonat/flowtip/service/temporal"
	"github.com/brojonat/flowtip/service/watcher"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

// memTipStore is an in-memory tip ledger.
type memTipStore struct {
	mu   sync.Mutex
	tips map[string]*db.Tip
	err  error
}

func newMemTipStore() *memTipStore {
	return &memTipStore{tips: make(map[string]*db.Tip)}
}

func (s *memTipStore) CreateTip(ctx context.Context, params db.CreateTipParams) (*db.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.tips[params.Signature]; ok {
		return nil, failure.New(failure.AlreadyExists, "tip %s already recorded", params.Signature)
	}
	now := time.Now().UTC()
	tip := &db.Tip{
		ID:         uuid.New(),
		Signature:  params.Signature,
		Sender:     params.Sender,
		Recipient:  params.Recipient,
		Handle:     params.Handle,
		Amount:     params.Amount,
		Status:     db.StatusPending,
		Message:    params.Message,
		WorkflowID: params.WorkflowID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tips[params.Signature] = tip
	out := *tip
	return &out, nil
}

func (s *memTipStore) GetTipBySignature(ctx context.Context, signature string) (*db.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tip, ok := s.tips[signature]
	if !ok {
		return nil, failure.New(failure.NotFound, "tip %s not found", signature)
	}
	out := *tip
	return &out, nil
}

func (s *memTipStore) SetWorkflowID(ctx context.Context, signature, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tip, ok := s.tips[signature]
	if !ok {
		return failure.New(failure.NotFound, "tip %s not found", signature)
	}
	tip.WorkflowID = &workflowID
	return nil
}

func (s *memTipStore) list(match func(*db.Tip) bool) []*db.Tip {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Tip
	for _, tip := range s.tips {
		if match(tip) {
			cp := *tip
			out = append(out, &cp)
		}
	}
	return out
}

func (s *memTipStore) ListTipsByRecipient(ctx context.Context, params db.ListTipsParams) ([]*db.Tip, error) {
	return s.list(func(t *db.Tip) bool { return t.Recipient == params.Address }), nil
}

func (s *memTipStore) ListTipsBySender(ctx context.Context, params db.ListTipsParams) ([]*db.Tip, error) {
	return s.list(func(t *db.Tip) bool { return t.Sender == params.Address }), nil
}

func (s *memTipStore) GetRecipientStats(ctx context.Context, recipient string) (*db.RecipientStats, error) {
	stats := &db.RecipientStats{Recipient: recipient}
	for _, tip := range s.list(func(t *db.Tip) bool { return t.Recipient == recipient }) {
		switch tip.Status {
		case db.StatusConfirmed:
			stats.TotalReceived += tip.Amount
			stats.TipCount++
		case db.StatusPending:
			stats.PendingCount++
		}
	}
	if stats.TipCount > 0 {
		stats.AverageTip = stats.TotalReceived / stats.TipCount
	}
	return stats, nil
}

func (s *memTipStore) GetSenderTotal(ctx context.Context, sender string) (int64, error) {
	var total int64
	for _, tip := range s.list(func(t *db.Tip) bool { return t.Sender == sender && t.Status == db.StatusConfirmed }) {
		total += tip.Amount
	}
	return total, nil
}

// fixture is a relay over an in-process ledger with an initialized "alice"
// profile.
type fixture struct {
	ledger    *localnet.Ledger
	mint      solana.PublicKey
	relayer   solana.PrivateKey
	sender    solana.PrivateKey
	creator   solana.PrivateKey
	builder   *relay.Builder
	watcher   *watcher.Watcher
	store     *memTipStore
	starter   *temporal.MockWatchStarter
	publisher *natspkg.MockPublisher
	server    *Server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := localnet.New()
	f := &fixture{
		ledger:    l,
		mint:      l.CreateMint(6),
		relayer:   solana.NewWallet().PrivateKey,
		sender:    solana.NewWallet().PrivateKey,
		creator:   solana.NewWallet().PrivateKey,
		store:     newMemTipStore(),
		starter:   temporal.NewMockWatchStarter(),
		publisher: natspkg.NewMockPublisher(),
	}
	l.Airdrop(f.relayer.PublicKey(), 1_000_000_000)
	l.Airdrop(f.creator.PublicKey(), 100_000_000)
	senderATA, err := l.CreateTokenAccount(f.sender.PublicKey(), f.mint)
	require.NoError(t, err)
	require.NoError(t, l.MintTo(senderATA, 100))

	logger := discardLogger()
	f.builder = relay.NewBuilder(l,
		relay.NewRPCBalanceChecker(l, f.relayer.PublicKey(), rpc.CommitmentConfirmed),
		f.relayer,
		relay.Config{
			ProgramID:          l.ProgramID(),
			Mint:               f.mint,
			Decimals:           6,
			MinReserveLamports: 10_000_000,
		}, nil, logger)
	f.watcher = watcher.New(l, watcher.Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, nil, logger)

	f.initProfile(t, "alice")

	cfg := &config.Config{
		ProgramID:        l.ProgramID().String(),
		TokenMintAddress: f.mint.String(),
		TokenDecimals:    6,
		WatchTimeout:     time.Minute,
	}
	f.server = New(":0", cfg, Dependencies{
		Builder:    f.builder,
		Profiles:   f.builder,
		Prober:     f.watcher,
		Store:      f.store,
		Starter:    f.starter,
		Subscriber: f.publisher,
	}, nil, logger)
	require.NoError(t, f.server.WithTemplates())
	return f
}

func (f *fixture) initProfile(t *testing.T, handle string) {
	t.Helper()
	ctx := context.Background()
	inst, err := program.NewInitializeProfileInstruction(f.ledger.ProgramID(), f.creator.PublicKey(), f.mint, handle)
	require.NoError(t, err)
	bh, err := f.ledger.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	tx, err := solana.NewTransaction([]solana.Instruction{inst}, bh.Blockhash, solana.TransactionPayer(f.creator.PublicKey()))
	require.NoError(t, err)
	creator := f.creator
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &creator })
	require.NoError(t, err)
	_, err = f.ledger.SendTransaction(ctx, tx, rpc.TransactionOpts{})
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSendGaslessTx(t *testing.T) {
	f := newFixture(t)
	body := `{"senderAddress":"` + f.sender.PublicKey().String() + `","recipientAddress":"` + f.creator.PublicKey().String() + `","amount":25,"handle":"alice"}`

	for _, path := range []string{"/api/v1/send-gasless-tx", "/api/send-gasless-tx"} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(t, "POST", path, body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			resp := decode(t, rec)
			assert.Equal(t, true, resp["success"])
			assert.NotEmpty(t, resp["serializedTransaction"])
			assert.NotEmpty(t, resp["blockhash"])
			assert.NotZero(t, resp["lastValidBlockHeight"])
			assert.Equal(t, false, resp["createsRecipientAccount"])
		})
	}
}

func TestSendGaslessTx_Failures(t *testing.T) {
	f := newFixture(t)
	sender := f.sender.PublicKey().String()
	recipient := solana.NewWallet().PublicKey().String()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedKind   failure.Kind
		expectedClass  failure.Class
		messagePart    string
	}{
		{
			name:           "extremely large request body",
			body:           `{"senderAddress":"` + strings.Repeat("A", 2*1024*1024) + `"}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidInput,
			expectedClass:  failure.ClassFixInput,
			messagePart:    "request body too large",
		},
		{
			name:           "malformed JSON",
			body:           `{"senderAddress":`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidInput,
			messagePart:    "invalid request body",
		},
		{
			name:           "zero amount",
			body:           `{"senderAddress":"` + sender + `","recipientAddress":"` + recipient + `","amount":0}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidAmount,
			expectedClass:  failure.ClassFixInput,
		},
		{
			name:           "negative amount",
			body:           `{"senderAddress":"` + sender + `","recipientAddress":"` + recipient + `","amount":-5}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidAmount,
		},
		{
			name:           "fractional amount",
			body:           `{"senderAddress":"` + sender + `","recipientAddress":"` + recipient + `","amount":1.5}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidAmount,
		},
		{
			name:           "invalid sender",
			body:           `{"senderAddress":"0OIl","recipientAddress":"` + recipient + `","amount":5}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   failure.InvalidInput,
		},
		{
			name:           "unknown handle",
			body:           `{"senderAddress":"` + sender + `","recipientAddress":"` + recipient + `","amount":5,"handle":"ghost"}`,
			expectedStatus: http.StatusNotFound,
			expectedKind:   failure.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", "/api/v1/send-gasless-tx", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			resp := decode(t, rec)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, string(tt.expectedKind), resp["kind"])
			if tt.expectedClass != "" {
				assert.Equal(t, string(tt.expectedClass), resp["class"])
			}
			if tt.messagePart != "" {
				assert.Contains(t, resp["message"], tt.messagePart)
			}
		})
	}
}

func TestSendGaslessTx_Underfunded(t *testing.T) {
	f := newFixture(t)
	drained := solana.NewWallet().PrivateKey
	f.ledger.Airdrop(drained.PublicKey(), 1_000)
	builder := relay.NewBuilder(f.ledger,
		relay.NewRPCBalanceChecker(f.ledger, drained.PublicKey(), rpc.CommitmentConfirmed),
		drained,
		relay.Config{ProgramID: f.ledger.ProgramID(), Mint: f.mint, Decimals: 6, MinReserveLamports: 10_000_000},
		nil, discardLogger())

	handler := handleSendGaslessTx(builder, discardLogger())
	req := httptest.NewRequest("POST", "/api/v1/send-gasless-tx", strings.NewReader(
		`{"senderAddress":"`+f.sender.PublicKey().String()+`","recipientAddress":"`+solana.NewWallet().PublicKey().String()+`","amount":5}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, string(failure.RelayerUnderfunded), resp["kind"])
	assert.Equal(t, string(failure.ClassContactSupport), resp["class"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "OPTIONS", "/api/send-gasless-tx", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/v1/profiles/alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	addr, bump, err := flowsolana.DeriveProfileAddress(f.ledger.ProgramID(), "alice")
	require.NoError(t, err)
	assert.Equal(t, addr.String(), resp["address"])
	assert.Equal(t, float64(bump), resp["bump"])
	assert.Equal(t, true, resp["initialized"])
	assert.Equal(t, f.creator.PublicKey().String(), resp["owner"])

	rec = f.do(t, "GET", "/api/v1/profiles/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, false, resp["initialized"])
	assert.NotEmpty(t, resp["token_account"])

	rec = f.do(t, "GET", "/api/v1/profiles/Not-Valid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTipLink(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/v1/profiles/alice/tip-link?amount=2500000", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var link TipLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	assert.Equal(t, "2.5", link.UIAmount)
	assert.Equal(t, f.creator.PublicKey().String(), link.Recipient)
	assert.True(t, strings.HasPrefix(link.PaymentURL, "solana:"+f.creator.PublicKey().String()+"?"))
	assert.Contains(t, link.PaymentURL, "spl-token="+f.mint.String())
	assert.NotEmpty(t, link.QRCodeData)

	rec = f.do(t, "GET", "/api/v1/profiles/alice/tip-link", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(failure.InvalidAmount), decode(t, rec)["kind"])

	rec = f.do(t, "GET", "/api/v1/profiles/ghost/tip-link?amount=5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTipPage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/tip/alice?amount=1000000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Tip @alice")
	assert.Contains(t, body, "data:image/png;base64,")
	assert.Contains(t, body, `href="solana:`)
}

func TestTipStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/v1/tips/"+validSignature+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", decode(t, rec)["status"])

	rec = f.do(t, "GET", "/api/v1/tips/not-a-signature/status", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordTip(t *testing.T) {
	f := newFixture(t)
	sender := f.sender.PublicKey().String()
	recipient := f.creator.PublicKey().String()
	body := `{"signature":"` + validSignature + `","sender":"` + sender + `","recipient":"` + recipient + `","handle":"alice","amount":25,"message":"thanks!"}`

	rec := f.do(t, "POST", "/api/v1/tips", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, temporal.WatchTipWorkflowID(validSignature), resp["workflow_id"])

	watches := f.starter.Watches()
	require.Len(t, watches, 1)
	watch := watches[temporal.WatchTipWorkflowID(validSignature)]
	assert.Equal(t, recipient, watch.Recipient)
	assert.Equal(t, int64(25), watch.Amount)
	assert.Equal(t, time.Minute, watch.WatchTimeout)

	// recording again is idempotent
	rec = f.do(t, "POST", "/api/v1/tips", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp["id"], decode(t, rec)["id"])
	assert.Len(t, f.starter.Watches(), 1)
}

func TestRecordTip_Validation(t *testing.T) {
	f := newFixture(t)
	sender := f.sender.PublicKey().String()
	recipient := f.creator.PublicKey().String()

	tests := []struct {
		name         string
		body         string
		expectedKind failure.Kind
	}{
		{"bad signature", `{"signature":"abc","sender":"` + sender + `","recipient":"` + recipient + `","amount":1}`, failure.InvalidInput},
		{"missing sender", `{"signature":"` + validSignature + `","recipient":"` + recipient + `","amount":1}`, failure.InvalidInput},
		{"bad handle", `{"signature":"` + validSignature + `","sender":"` + sender + `","recipient":"` + recipient + `","handle":"A B","amount":1}`, failure.InvalidInput},
		{"zero amount", `{"signature":"` + validSignature + `","sender":"` + sender + `","recipient":"` + recipient + `","amount":0}`, failure.InvalidAmount},
		{"long message", `{"signature":"` + validSignature + `","sender":"` + sender + `","recipient":"` + recipient + `","amount":1,"message":"` + strings.Repeat("x", 300) + `"}`, failure.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", "/api/v1/tips", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.expectedKind), decode(t, rec)["kind"])
		})
	}
	assert.Empty(t, f.starter.Watches())
}

func TestRecordTip_WatchStartFailureKeepsTip(t *testing.T) {
	f := newFixture(t)
	f.starter.SetStartError(assert.AnError)

	body := `{"signature":"` + validSignature + `","sender":"` + f.sender.PublicKey().String() + `","recipient":"` + f.creator.PublicKey().String() + `","amount":5}`
	rec := f.do(t, "POST", "/api/v1/tips", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, hasWorkflow := decode(t, rec)["workflow_id"]
	assert.False(t, hasWorkflow)

	tip, err := f.store.GetTipBySignature(context.Background(), validSignature)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, tip.Status)
}

func TestListTipsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.sender.PublicKey().String()
	recipient := f.creator.PublicKey().String()

	for i, amount := range []int64{100, 50} {
		sig := solana.Signature{byte(i + 1)}.String()
		_, err := f.store.CreateTip(ctx, db.CreateTipParams{Signature: sig, Sender: sender, Recipient: recipient, Amount: amount})
		require.NoError(t, err)
		f.store.tips[sig].Status = db.StatusConfirmed
	}

	rec := f.do(t, "GET", "/api/v1/tips?recipient="+recipient+"&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Tips  []*db.Tip `json:"tips"`
		Limit int32     `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tips, 2)
	assert.Equal(t, int32(10), list.Limit)

	rec = f.do(t, "GET", "/api/v1/tips?sender="+sender, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/v1/tips", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, "GET", "/api/v1/tips?recipient="+recipient+"&sender="+sender, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, "GET", "/api/v1/tips?recipient="+recipient+"&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/api/v1/stats/"+recipient, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.Equal(t, float64(150), stats["total_received"])
	assert.Equal(t, float64(2), stats["tip_count"])
	assert.Equal(t, float64(75), stats["average_tip"])
	assert.Equal(t, float64(0), stats["sent_total"])
}

func TestLedgerDisabled(t *testing.T) {
	f := newFixture(t)
	f.server.deps.Store = nil

	rec := f.do(t, "GET", "/api/v1/tips?recipient="+f.creator.PublicKey().String(), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(failure.ServiceUnavailable), decode(t, rec)["kind"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStreamTips(t *testing.T) {
	f := newFixture(t)
	recipient := f.creator.PublicKey().String()

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/stream/tips/"+recipient, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "" && event != "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, data := readEvent()
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, recipient)

	require.Eventually(t, func() bool { return f.publisher.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	// events for other recipients are filtered out
	require.NoError(t, f.publisher.PublishTipEvent(ctx, &natspkg.TipEvent{Signature: "other", Recipient: "someone-else", Status: "confirmed"}))
	require.NoError(t, f.publisher.PublishTipEvent(ctx, &natspkg.TipEvent{Signature: "sig1", Recipient: recipient, Amount: 25, Status: "confirmed"}))

	event, data = readEvent()
	assert.Equal(t, "tip", event)
	var tip natspkg.TipEvent
	require.NoError(t, json.Unmarshal([]byte(data), &tip))
	assert.Equal(t, "sig1", tip.Signature)
	assert.Equal(t, int64(25), tip.Amount)
}

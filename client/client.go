// Package client talks to the FlowTip relay and completes gasless tips on
// behalf of a sender: it co-signs the relay's partially signed transaction
// with the sender's wallet and submits it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/flowtip/service/failure"
)

// BuildRequest asks the relay for a partially signed tip transaction.
type BuildRequest struct {
	SenderAddress    string `json:"senderAddress"`
	RecipientAddress string `json:"recipientAddress"`
	Amount           uint64 `json:"amount"`
	Handle           string `json:"handle,omitempty"`
	Memo             string `json:"memo,omitempty"`
}

// BuildResponse is the relay's answer to BuildRequest.
type BuildResponse struct {
	Success                 bool   `json:"success"`
	SerializedTransaction   string `json:"serializedTransaction"`
	Message                 string `json:"message"`
	Blockhash               string `json:"blockhash"`
	LastValidBlockHeight    uint64 `json:"lastValidBlockHeight"`
	InstructionCount        int    `json:"instructionCount"`
	CreatesRecipientAccount bool   `json:"createsRecipientAccount"`
	EstimatedFee            uint64 `json:"estimatedFee"`
}

// TipStatus is the confirmation state of a submitted tip.
type TipStatus struct {
	Signature          string `json:"signature"`
	Status             string `json:"status"` // pending, confirmed, failed
	Reason             string `json:"reason,omitempty"`
	Kind               string `json:"kind,omitempty"`
	GaveUp             bool   `json:"gave_up,omitempty"`
	Slot               uint64 `json:"slot,omitempty"`
	ConfirmationStatus string `json:"confirmation_status,omitempty"`
}

// Profile is a creator profile as reported by the relay.
type Profile struct {
	Handle        string `json:"handle"`
	Address       string `json:"address"`
	Bump          uint8  `json:"bump"`
	TokenAccount  string `json:"token_account"`
	Initialized   bool   `json:"initialized"`
	Owner         string `json:"owner,omitempty"`
	TotalReceived uint64 `json:"total_received"`
	TipCount      uint64 `json:"tip_count"`
}

// Tip is a tip ledger record.
type Tip struct {
	ID         string    `json:"id"`
	Signature  string    `json:"signature"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	Handle     *string   `json:"handle,omitempty"`
	Amount     uint64    `json:"amount"`
	Status     string    `json:"status"`
	Reason     *string   `json:"reason,omitempty"`
	Message    *string   `json:"message,omitempty"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordTipRequest registers a submitted tip with the relay ledger.
type RecordTipRequest struct {
	Signature string `json:"signature"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Handle    string `json:"handle,omitempty"`
	Amount    uint64 `json:"amount"`
	Message   string `json:"message,omitempty"`
}

// ListTipsOptions filters ListTips. Exactly one of Recipient or Sender is
// required.
type ListTipsOptions struct {
	Recipient string
	Sender    string
	Limit     int
	Offset    int
}

// Client is the HTTP client for the FlowTip relay.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// pollInterval is used by WatchTip between status probes.
	pollInterval time.Duration
}

// NewClient creates a new relay client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
}

// BuildGaslessTx asks the relay to build and fee-payer-sign a tip transfer.
func (c *Client) BuildGaslessTx(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	var out BuildResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/send-gasless-tx", req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("built gasless transaction",
		"recipient", req.RecipientAddress,
		"amount", req.Amount,
		"instructions", out.InstructionCount,
	)
	return &out, nil
}

// TipStatus probes the confirmation state of a signature once.
func (c *Client) TipStatus(ctx context.Context, signature string) (*TipStatus, error) {
	var out TipStatus
	path := fmt.Sprintf("/api/v1/tips/%s/status", url.PathEscape(signature))
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchTip polls TipStatus until the tip is confirmed or failed, or ctx is
// done. On cancellation the last observed status is returned together with
// ctx.Err().
func (c *Client) WatchTip(ctx context.Context, signature string) (*TipStatus, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	last := &TipStatus{Signature: signature, Status: "pending"}
	for {
		status, err := c.TipStatus(ctx, signature)
		if err == nil {
			last = status
			if status.Status != "pending" {
				return status, nil
			}
		} else {
			c.logger.Debug("tip status probe failed", "signature", signature, "error", err)
		}

		select {
		case <-ctx.Done():
			last.GaveUp = true
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetProfile returns the derived and, when initialized, on-chain profile
// for handle.
func (c *Client) GetProfile(ctx context.Context, handle string) (*Profile, error) {
	var out Profile
	path := fmt.Sprintf("/api/v1/profiles/%s", url.PathEscape(handle))
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordTip registers a submitted tip so the relay tracks its confirmation.
func (c *Client) RecordTip(ctx context.Context, req RecordTipRequest) (*Tip, error) {
	var out Tip
	if err := c.do(ctx, http.MethodPost, "/api/v1/tips", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTips lists ledger records for a recipient or sender.
func (c *Client) ListTips(ctx context.Context, opts ListTipsOptions) ([]*Tip, error) {
	q := url.Values{}
	if opts.Recipient != "" {
		q.Set("recipient", opts.Recipient)
	}
	if opts.Sender != "" {
		q.Set("sender", opts.Sender)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out struct {
		Tips []*Tip `json:"tips"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tips?"+q.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Tips, nil
}

// Health returns nil when the relay reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure.Wrap(err, failure.ServiceUnavailable, "relay request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse turns a relay failure body into a classified error.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return failure.New(kindForStatus(resp.StatusCode), "request failed with status %d: %s", resp.StatusCode, string(body))
	}
	kind := failure.Kind(errResp.Kind)
	if kind == "" {
		kind = kindForStatus(resp.StatusCode)
	}
	return failure.New(kind, "%s", errResp.Message)
}

func kindForStatus(code int) failure.Kind {
	switch {
	case code == http.StatusNotFound:
		return failure.NotFound
	case code == http.StatusConflict:
		return failure.AlreadyExists
	case code == http.StatusGatewayTimeout:
		return failure.Timeout
	case code == http.StatusInternalServerError:
		return failure.Internal
	case code >= 500:
		return failure.ServiceUnavailable
	case code >= 400:
		return failure.InvalidInput
	}
	return failure.Internal
}

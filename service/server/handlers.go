package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/program"
	"github.com/brojonat/flowtip/service/relay"
	"github.com/brojonat/flowtip/service/watcher"
	"github.com/gagliardetto/solana-go"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	defaultListLimit   = 50
	maxListLimit       = 500
)

// TxBuilder builds relay-signed tip transactions. *relay.Builder implements it.
type TxBuilder interface {
	Build(ctx context.Context, intent relay.TipTransferIntent) (*relay.BuildResult, error)
}

// ProfileLookup reads creator profiles. *relay.Builder implements it.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, handle string) (*program.CreatorProfile, solana.PublicKey, error)
}

// StatusProber reports the current status of a transaction.
// *watcher.Watcher implements it.
type StatusProber interface {
	Status(ctx context.Context, sig solana.Signature) (watcher.Result, error)
}

// sendGaslessTxRequest is the relay request body. Amount is decoded as a
// json.Number so negative and fractional values become amount errors rather
// than decode errors.
type sendGaslessTxRequest struct {
	SenderAddress    string      `json:"senderAddress"`
	RecipientAddress string      `json:"recipientAddress"`
	Amount           json.Number `json:"amount"`
	Handle           string      `json:"handle,omitempty"`
	Memo             string      `json:"memo,omitempty"`
}

type sendGaslessTxResponse struct {
	Success bool `json:"success"`
	*relay.BuildResult
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Class   string `json:"class"`
}

// handleSendGaslessTx returns a handler that builds a relay-signed tip
// transaction for the sender to co-sign.
// POST /api/v1/send-gasless-tx
func handleSendGaslessTx(builder TxBuilder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendGaslessTxRequest
		if err := decodeBody(w, r, &req); err != nil {
			logger.DebugContext(r.Context(), "failed to decode send-gasless-tx request", "error", err)
			writeFailure(w, r, err, logger)
			return
		}

		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		result, err := builder.Build(r.Context(), relay.TipTransferIntent{
			Sender:    req.SenderAddress,
			Recipient: req.RecipientAddress,
			Amount:    amount,
			Handle:    req.Handle,
			Memo:      req.Memo,
		})
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		logger.InfoContext(r.Context(), "built gasless transaction",
			"sender", req.SenderAddress,
			"recipient", req.RecipientAddress,
			"amount", amount,
			"handle", req.Handle,
			"instruction_count", result.InstructionCount,
			"creates_recipient_account", result.CreatesRecipientAccount,
		)
		writeJSON(w, sendGaslessTxResponse{Success: true, BuildResult: result}, http.StatusOK)
	})
}

// handleTipStatus returns a handler that probes a transaction once.
// GET /api/v1/tips/{signature}/status
func handleTipStatus(prober StatusProber, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig, err := parseSignature(r.PathValue("signature"))
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		res, err := prober.Status(r.Context(), sig)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		writeJSON(w, res, http.StatusOK)
	})
}

// decodeBody decodes a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return failure.New(failure.InvalidInput, "request body too large: maximum size is 1MB")
		}
		return failure.New(failure.InvalidInput, "invalid request body: must be valid JSON")
	}
	return nil
}

func parseAmount(n json.Number) (uint64, error) {
	if n == "" {
		return 0, failure.New(failure.InvalidAmount, "amount is required")
	}
	amount, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, failure.New(failure.InvalidAmount, "amount must be a positive integer number of smallest token units")
	}
	return amount, nil
}

func parseSignature(s string) (solana.Signature, error) {
	if s == "" {
		return solana.Signature{}, failure.New(failure.InvalidInput, "signature is required")
	}
	sig, err := solana.SignatureFromBase58(s)
	if err != nil {
		return solana.Signature{}, failure.New(failure.InvalidInput, "invalid signature: must be a base58 transaction signature")
	}
	return sig, nil
}

func parseLimit(r *http.Request) (int32, int32, error) {
	limit := int64(defaultListLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return 0, 0, failure.New(failure.InvalidInput, "invalid limit: must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}
	var offset int64
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return 0, 0, failure.New(failure.InvalidInput, "invalid offset: must be a non-negative integer")
		}
		offset = n
	}
	return int32(limit), int32(offset), nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeFailure classifies err and writes it in the relay's failure shape.
// Internal errors are logged and reported without detail.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	fe := failure.From(err)
	status := fe.HTTPStatus()
	message := fe.Message
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"kind", fe.Kind,
			"error", err,
		)
		if fe.Kind == failure.Internal {
			message = "internal server error"
		}
	}
	if message == "" {
		message = strings.ReplaceAll(string(fe.Kind), "_", " ")
	}
	writeJSON(w, errorResponse{
		Success: false,
		Message: message,
		Kind:    string(fe.Kind),
		Class:   string(fe.Class()),
	}, status)
}

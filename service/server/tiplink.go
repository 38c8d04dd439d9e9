package server

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/program"
)

// TipLink is a Solana Pay transfer request for tipping a creator, ready to
// be shown as a link or QR code.
type TipLink struct {
	Handle     string `json:"handle"`
	Recipient  string `json:"recipient"`              // Profile owner
	Amount     uint64 `json:"amount"`                 // Smallest token units
	UIAmount   string `json:"ui_amount"`              // Decimal token amount
	TokenMint  string `json:"token_mint"`             // Configured mint
	Memo       string `json:"memo"`                   // Identifies the tip in wallets
	PaymentURL string `json:"payment_url"`            // Solana Pay URL for wallet apps
	QRCodeData string `json:"qr_code_data,omitempty"` // Base64 encoded QR code image
}

// memoPrefix marks memos of tips made through a tip link.
const memoPrefix = "flowtip:"

// generateTipLink builds a tip link for a creator that owns an initialized
// profile.
func generateTipLink(handle, owner string, amount uint64, chain ChainInfo) TipLink {
	uiAmount := formatAmount(amount, chain.Decimals)
	memo := memoPrefix + handle
	paymentURL := buildSolanaPayURL(owner, uiAmount, chain.Mint.String(), handle, memo)

	// QR code is optional
	qrCodeData, err := generateQRCode(paymentURL)
	if err != nil {
		qrCodeData = ""
	}

	return TipLink{
		Handle:     handle,
		Recipient:  owner,
		Amount:     amount,
		UIAmount:   uiAmount,
		TokenMint:  chain.Mint.String(),
		Memo:       memo,
		PaymentURL: paymentURL,
		QRCodeData: qrCodeData,
	}
}

// buildSolanaPayURL creates a Solana Pay-compatible URL for a token transfer.
// Format: solana:{recipient}?amount={amount}&spl-token={mint}&memo={memo}&label={label}&message={message}
func buildSolanaPayURL(recipient, uiAmount, tokenMint, handle, memo string) string {
	params := url.Values{}
	params.Set("amount", uiAmount)
	params.Set("spl-token", tokenMint)
	params.Set("memo", memo)
	params.Set("label", "FlowTip")
	params.Set("message", fmt.Sprintf("Tip for %s", handle))

	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// formatAmount renders smallest units as a decimal string without trailing zeros.
func formatAmount(amount uint64, decimals uint8) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// generateQRCode creates a QR code image from a payment URL and returns it as base64-encoded PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	// 256x256 pixels
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}

// handleTipLink returns a handler that creates a tip link for a creator.
// GET /api/v1/profiles/{handle}/tip-link?amount={amount}
func handleTipLink(lookup ProfileLookup, chain ChainInfo, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		link, _, err := resolveTipLink(r, lookup, chain)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		logger.DebugContext(r.Context(), "tip link generated", "handle", link.Handle, "amount", link.Amount)
		writeJSON(w, link, http.StatusOK)
	})
}

func resolveTipLink(r *http.Request, lookup ProfileLookup, chain ChainInfo) (*TipLink, *program.CreatorProfile, error) {
	handle := r.PathValue("handle")
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		return nil, nil, failure.New(failure.InvalidAmount, "amount is required")
	}
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || amount == 0 {
		return nil, nil, failure.New(failure.InvalidAmount, "amount must be a positive integer number of smallest token units")
	}

	profile, _, err := lookup.LookupProfile(r.Context(), handle)
	if err != nil {
		return nil, nil, err
	}
	link := generateTipLink(handle, profile.Owner.String(), amount, chain)
	return &link, profile, nil
}

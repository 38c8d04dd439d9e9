package server

import (
	"log/slog"
	"net/http"

	"github.com/brojonat/flowtip/service/failure"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
)

// ChainInfo holds the chain constants the read endpoints derive addresses from.
type ChainInfo struct {
	ProgramID solana.PublicKey
	Mint      solana.PublicKey
	Decimals  uint8
}

type profileResponse struct {
	Handle        string `json:"handle"`
	Address       string `json:"address"`
	Bump          uint8  `json:"bump"`
	TokenAccount  string `json:"token_account"`
	Initialized   bool   `json:"initialized"`
	Owner         string `json:"owner,omitempty"`
	TotalReceived uint64 `json:"total_received"`
	TipCount      uint64 `json:"tip_count"`
}

// handleGetProfile returns a handler that derives a creator profile's
// addresses and, when the profile exists on chain, its current totals.
// GET /api/v1/profiles/{handle}
func handleGetProfile(lookup ProfileLookup, chain ChainInfo, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := r.PathValue("handle")

		addr, bump, err := flowsolana.DeriveProfileAddress(chain.ProgramID, handle)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		tokenAccount, err := flowsolana.DeriveTokenAccount(addr, chain.Mint)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		resp := profileResponse{
			Handle:       handle,
			Address:      addr.String(),
			Bump:         bump,
			TokenAccount: tokenAccount.String(),
		}

		profile, _, err := lookup.LookupProfile(r.Context(), handle)
		switch {
		case err == nil:
			resp.Initialized = true
			resp.Owner = profile.Owner.String()
			resp.TokenAccount = profile.TokenAccount.String()
			resp.TotalReceived = profile.TotalReceived
			resp.TipCount = profile.TipCount
		case failure.KindOf(err) == failure.NotFound:
			logger.DebugContext(r.Context(), "profile not initialized", "handle", handle)
		default:
			writeFailure(w, r, err, logger)
			return
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

package relay

import (
	"context"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/patrickmn/go-cache"
)

// ProfileRoute is the immutable part of a creator profile needed to route a
// tip. Handles are permanent, so it can be cached for as long as we like.
type ProfileRoute struct {
	Handle       string
	Address      solana.PublicKey
	Owner        solana.PublicKey
	TokenAccount solana.PublicKey
}

// LookupProfile resolves the profile for handle. It returns the full on-chain
// profile, bypassing the cache, so totals are current.
func (b *Builder) LookupProfile(ctx context.Context, handle string) (*program.CreatorProfile, solana.PublicKey, error) {
	if err := flowsolana.ValidateHandle(handle); err != nil {
		return nil, solana.PublicKey{}, err
	}
	addr, _, err := flowsolana.DeriveProfileAddress(b.cfg.ProgramID, handle)
	if err != nil {
		return nil, solana.PublicKey{}, failure.Wrap(err, failure.Internal, "failed to derive profile address")
	}
	profile, err := b.fetchProfile(ctx, handle, addr)
	if err != nil {
		return nil, addr, err
	}
	return profile, addr, nil
}

func (b *Builder) lookupProfile(ctx context.Context, handle string) (*ProfileRoute, error) {
	if cached, ok := b.profiles.Get(handle); ok {
		if b.metrics != nil {
			b.metrics.RecordProfileCacheLookup(true)
		}
		return cached.(*ProfileRoute), nil
	}
	if b.metrics != nil {
		b.metrics.RecordProfileCacheLookup(false)
	}

	profile, addr, err := b.LookupProfile(ctx, handle)
	if err != nil {
		return nil, err
	}
	route := &ProfileRoute{
		Handle:       profile.Handle,
		Address:      addr,
		Owner:        profile.Owner,
		TokenAccount: profile.TokenAccount,
	}
	b.profiles.Set(handle, route, cache.DefaultExpiration)
	return route, nil
}

func (b *Builder) fetchProfile(ctx context.Context, handle string, addr solana.PublicKey) (*program.CreatorProfile, error) {
	acct, err := b.rpc.GetAccountInfo(ctx, addr, b.cfg.Commitment)
	if err != nil {
		if flowsolana.IsNotFound(err) {
			return nil, failure.New(failure.NotFound, "creator profile %q not found", handle)
		}
		return nil, failure.Wrap(err, failure.ServiceUnavailable, "failed to fetch creator profile")
	}
	if acct == nil || acct.Data == nil || !acct.Owner.Equals(b.cfg.ProgramID) {
		return nil, failure.New(failure.NotFound, "creator profile %q not found", handle)
	}
	profile, err := program.DecodeProfile(acct.Data.GetBinary())
	if err != nil {
		return nil, failure.Wrap(err, failure.Internal, "failed to decode creator profile")
	}
	return profile, nil
}

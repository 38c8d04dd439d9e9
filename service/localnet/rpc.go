package localnet

import (
	"context"
	"encoding/base64"
	"fmt"

	flowsolana "github.com/brojonat/flowtip/service/solana"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var _ flowsolana.RPCClient = (*Ledger)(nil)

func (l *Ledger) checkAvailable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.unavailable
}

func (l *Ledger) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.LatestBlockhashResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return nil, err
	}
	return &rpc.LatestBlockhashResult{
		Blockhash:            l.latest,
		LastValidBlockHeight: l.blockhashes[l.latest],
	}, nil
}

func (l *Ledger) GetAccountInfo(ctx context.Context, addr solana.PublicKey, _ rpc.CommitmentType) (*rpc.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return nil, err
	}
	a := l.state.get(addr)
	if a == nil {
		return nil, rpc.ErrNotFound
	}
	return &rpc.Account{
		Lamports: a.lamports,
		Owner:    a.owner,
		Data:     rpc.DataBytesOrJSONFromBytes(a.encodedData()),
	}, nil
}

func (l *Ledger) GetBalance(ctx context.Context, addr solana.PublicKey, _ rpc.CommitmentType) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return 0, err
	}
	if a := l.state.get(addr); a != nil {
		return a.lamports, nil
	}
	return 0, nil
}

func (l *Ledger) GetFeeForMessage(ctx context.Context, message string, _ rpc.CommitmentType) (*uint64, error) {
	raw, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 message: %w", err)
	}
	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(raw)); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return nil, err
	}
	if !l.blockhashValidLocked(msg.RecentBlockhash) {
		return nil, nil
	}
	fee := l.feePerSignature * uint64(msg.Header.NumRequiredSignatures)
	return &fee, nil
}

func (l *Ledger) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64, _ rpc.CommitmentType) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return RentExemptMinimum(size), nil
}

func (l *Ledger) GetTokenAccountBalance(ctx context.Context, addr solana.PublicKey, _ rpc.CommitmentType) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return 0, err
	}
	a := l.state.get(addr)
	if a == nil || a.token == nil {
		return 0, fmt.Errorf("could not find account %s: %w", addr, rpc.ErrNotFound)
	}
	return a.token.Amount, nil
}

func (l *Ledger) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return solana.Signature{}, err
	}
	l.state.getOrCreate(addr).lamports += lamports
	sig := randomSignature()
	l.txs[sig] = &txRecord{slot: l.slot, status: l.landedStatusLocked()}
	return sig, nil
}

func (l *Ledger) GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return nil, err
	}
	out := make([]*rpc.SignatureStatusesResult, len(sigs))
	for i, sig := range sigs {
		rec, ok := l.txs[sig]
		if !ok {
			continue
		}
		res := &rpc.SignatureStatusesResult{
			Slot:               rec.slot,
			Err:                rec.err,
			ConfirmationStatus: rec.status,
		}
		if rec.status != rpc.ConfirmationStatusFinalized {
			confirmations := l.slot - rec.slot
			res.Confirmations = &confirmations
		}
		out[i] = res
	}
	return out, nil
}

// SendTransaction verifies signatures and the blockhash, charges the fee and
// executes every instruction atomically. Unless opts.SkipPreflight is set a
// failing transaction is rejected without landing, like a failed simulation.
// With SkipPreflight it lands as failed: the fee is charged and the error is
// visible through GetSignatureStatuses.
func (l *Ledger) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if tx == nil {
		return solana.Signature{}, fmt.Errorf("transaction is nil")
	}
	msg := &tx.Message
	content, err := msg.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize message: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAvailable(ctx); err != nil {
		return solana.Signature{}, err
	}

	numSigned := int(msg.Header.NumRequiredSignatures)
	if numSigned == 0 || len(tx.Signatures) != numSigned || len(msg.AccountKeys) < numSigned {
		return solana.Signature{}, fmt.Errorf("invalid transaction: expected %d signatures, got %d", numSigned, len(tx.Signatures))
	}
	for i := range numSigned {
		if !tx.Signatures[i].Verify(msg.AccountKeys[i], content) {
			return solana.Signature{}, fmt.Errorf("Transaction signature verification failure")
		}
	}
	sig := tx.Signatures[0]

	if !l.blockhashValidLocked(msg.RecentBlockhash) {
		return solana.Signature{}, fmt.Errorf("Transaction simulation failed: Blockhash not found")
	}
	if _, seen := l.txs[sig]; seen {
		return solana.Signature{}, fmt.Errorf("Transaction simulation failed: This transaction has already been processed")
	}

	feePayer := msg.AccountKeys[0]
	fee := l.feePerSignature * uint64(numSigned)
	charged := l.state.clone()
	if err := charged.debit(feePayer, fee); err != nil {
		return solana.Signature{}, fmt.Errorf("Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.")
	}

	if l.dropSubmissions {
		l.logger.Debug("dropping submitted transaction", "signature", sig.String())
		return sig, nil
	}

	work := charged.clone()
	events, failed := l.execute(work, msg)
	if failed != nil {
		if !opts.SkipPreflight {
			l.logger.Debug("transaction rejected in preflight",
				"signature", sig.String(),
				"instruction", failed.index,
				"error", failed.err,
			)
			return solana.Signature{}, failed.preflightError()
		}
		l.state = charged
		l.txs[sig] = &txRecord{slot: l.slot, err: failed.statusErr(), status: l.landedStatusLocked()}
		l.logger.Debug("transaction landed as failed",
			"signature", sig.String(),
			"instruction", failed.index,
			"error", failed.err,
		)
		return sig, nil
	}

	l.state = work
	l.txs[sig] = &txRecord{slot: l.slot, status: l.landedStatusLocked(), events: events}
	l.logger.Debug("transaction landed",
		"signature", sig.String(),
		"fee", fee,
		"instructions", len(msg.Instructions),
	)
	return sig, nil
}

func (l *Ledger) blockhashValidLocked(hash solana.Hash) bool {
	lastValid, ok := l.blockhashes[hash]
	return ok && l.blockHeight <= lastValid
}

func (l *Ledger) landedStatusLocked() rpc.ConfirmationStatusType {
	if l.autoConfirm {
		return rpc.ConfirmationStatusConfirmed
	}
	return rpc.ConfirmationStatusProcessed
}

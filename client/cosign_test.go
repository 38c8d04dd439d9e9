package client

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWallet counts submissions and returns a canned result.
type recordingWallet struct {
	calls int
	txs   []*solana.Transaction
	err   error
}

func (w *recordingWallet) SignAndSend(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	w.calls++
	w.txs = append(w.txs, tx)
	if w.err != nil {
		return solana.Signature{}, w.err
	}
	return tx.Signatures[0], nil
}

func serialize(t *testing.T, tx *solana.Transaction) string {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base58.Encode(raw)
}

func TestCoSign_AcceptsRelaySignedTransaction(t *testing.T) {
	e := newEnv(t, 100)
	built := e.build(t, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})

	wallet := &recordingWallet{}
	sig, err := NewCoSigner(wallet, e.relayer.PublicKey(), nil, nil).CoSignAndSend(context.Background(), built.SerializedTransaction)
	require.NoError(t, err)
	assert.Equal(t, 1, wallet.calls)
	assert.Equal(t, wallet.txs[0].Signatures[0], sig)
}

func TestCoSign_DetectsTampering(t *testing.T) {
	e := newEnv(t, 100)
	built := e.build(t, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})

	tests := []struct {
		name   string
		tamper func(tx *solana.Transaction)
	}{
		{"amount", func(tx *solana.Transaction) {
			data := tx.Message.Instructions[len(tx.Message.Instructions)-1].Data
			binary.LittleEndian.PutUint64(data[1:9], 1_000_000)
		}},
		{"recipient", func(tx *solana.Transaction) {
			tx.Message.AccountKeys[len(tx.Message.AccountKeys)-1] = solana.NewWallet().PublicKey()
		}},
		{"blockhash", func(tx *solana.Transaction) {
			tx.Message.RecentBlockhash = solana.Hash{1, 2, 3}
		}},
		{"relay signature", func(tx *solana.Transaction) {
			tx.Signatures[0][0] ^= 0xff
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := DecodeTransaction(built.SerializedTransaction)
			require.NoError(t, err)
			tt.tamper(tx)

			wallet := &recordingWallet{}
			_, err = NewCoSigner(wallet, solana.PublicKey{}, nil, nil).CoSignAndSend(context.Background(), serialize(t, tx))
			require.Error(t, err)
			assert.ErrorIs(t, err, failure.ErrInvalidInput)
			assert.Contains(t, err.Error(), "relay signature does not match transaction")
			assert.Zero(t, wallet.calls, "nothing may be submitted")
		})
	}
}

func TestCoSign_Malformed(t *testing.T) {
	wallet := &recordingWallet{}
	cs := NewCoSigner(wallet, solana.PublicKey{}, nil, nil)

	for _, input := range []string{"", "0OIl", "3yZe7d"} {
		_, err := cs.CoSignAndSend(context.Background(), input)
		assert.ErrorIs(t, err, failure.ErrInvalidInput, "input %q", input)
	}
	assert.Zero(t, wallet.calls)
}

func TestCoSign_UnexpectedFeePayer(t *testing.T) {
	e := newEnv(t, 100)
	built := e.build(t, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})

	wallet := &recordingWallet{}
	_, err := NewCoSigner(wallet, solana.NewWallet().PublicKey(), nil, nil).CoSignAndSend(context.Background(), built.SerializedTransaction)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
	assert.Zero(t, wallet.calls)
}

func TestCoSign_ClassifiesWalletErrors(t *testing.T) {
	e := newEnv(t, 100)
	built := e.build(t, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})

	tests := []struct {
		name string
		err  error
		kind failure.Kind
	}{
		{"stale", errors.New("Transaction simulation failed: Blockhash not found"), failure.StaleCheckpoint},
		{"transport", errors.New("dial tcp: i/o timeout"), failure.ServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoSigner(&recordingWallet{err: tt.err}, solana.PublicKey{}, nil, nil).CoSignAndSend(context.Background(), built.SerializedTransaction)
			assert.Equal(t, tt.kind, failure.KindOf(err))
		})
	}
}

func TestKeypairWallet_NotASigner(t *testing.T) {
	e := newEnv(t, 100)
	built := e.build(t, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})
	tx, err := DecodeTransaction(built.SerializedTransaction)
	require.NoError(t, err)

	stranger := NewKeypairWallet(solana.NewWallet().PrivateKey, e.ledger, rpc.TransactionOpts{})
	_, err = stranger.SignAndSend(context.Background(), tx)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

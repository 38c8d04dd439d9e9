package solana

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"github.com/brojonat/flowtip/service/metrics"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the solana-go RPC client to our RPCClient interface.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

// SelectRandomEndpoint picks one of the configured RPC endpoints so load is
// spread across providers.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

// Dial picks one of endpoints and returns an instrumented client for it
// along with the endpoint's metrics label. If m is nil, no metrics are
// recorded.
func Dial(endpoints []string, m *metrics.Metrics, logger *slog.Logger) (RPCClient, string, error) {
	endpoint, err := SelectRandomEndpoint(endpoints)
	if err != nil {
		return nil, "", err
	}
	if logger == nil {
		logger = slog.Default()
	}
	label := EndpointLabel(endpoint)
	return NewInstrumentedClient(NewRPCClient(endpoint), label, m, logger), label, nil
}

// EndpointLabel extracts a short identifier from an RPC URL for metrics
// labeling and logs, so API keys in the URL never leave the process.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
//   - "http://127.0.0.1:8899" -> "127.0.0.1"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "quicknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			if provider == "quicknode" {
				return "quiknode"
			}
			return provider
		}
	}
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func (r *realRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.LatestBlockhashResult, error) {
	out, err := r.client.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("empty blockhash response")
	}
	return out.Value, nil
}

func (r *realRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.Account, error) {
	out, err := r.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: commitment,
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, rpc.ErrNotFound
	}
	return out.Value, nil
}

func (r *realRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	out, err := r.client.GetBalance(ctx, account, commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (r *realRPCClient) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*uint64, error) {
	out, err := r.client.GetFeeForMessage(ctx, message, commitment)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (r *realRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return r.client.GetMinimumBalanceForRentExemption(ctx, dataSize, commitment)
}

func (r *realRPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	out, err := r.client.GetTokenAccountBalance(ctx, account, commitment)
	if err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, rpc.ErrNotFound
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

func (r *realRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return r.client.SendTransactionWithOpts(ctx, tx, opts)
}

func (r *realRPCClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	out, err := r.client.GetSignatureStatuses(ctx, true, signatures...)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (r *realRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	return r.client.RequestAirdrop(ctx, account, lamports, commitment)
}

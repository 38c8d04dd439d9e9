package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/flowtip/client"
	"github.com/brojonat/flowtip/service/config"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// wantJSON reports whether the command should print JSON.
func wantJSON(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// outputJSON prints v as indented JSON, or the results of the --jq
// expression applied to it.
func outputJSON(c *cli.Context, v interface{}) error {
	return writeJSON(os.Stdout, c.String("jq"), v)
}

func writeJSON(w io.Writer, expr string, v interface{}) error {
	if expr == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	results, err := applyJQ(expr, v)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// applyJQ runs expr against v after a JSON round trip, so struct tags
// decide the field names the expression sees.
func applyJQ(expr string, v interface{}) ([]interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter: %w", err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}

	var results []interface{}
	iter := code.RunWithContext(context.Background(), input)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := r.(error); isErr {
			return nil, fmt.Errorf("jq filter failed: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// cliLogger only surfaces errors so command output stays readable.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func relayClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger())
}

func rpcClient(c *cli.Context) flowsolana.RPCClient {
	return flowsolana.NewRPCClient(c.String("rpc-url"))
}

func programID(c *cli.Context) (solana.PublicKey, error) {
	id := c.String("program-id")
	if id == "" {
		id = config.DefaultProgramID
	}
	pk, err := solana.PublicKeyFromBase58(id)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid program id %q: %w", id, err)
	}
	return pk, nil
}

func mintAddress(c *cli.Context) (solana.PublicKey, error) {
	mint := c.String("mint")
	if mint == "" {
		return solana.PublicKey{}, fmt.Errorf("mint is required (set TOKEN_MINT_ADDRESS env var or use --mint)")
	}
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	return pk, nil
}

// loadKeypair accepts a solana-keygen file path or a base58 secret key.
func loadKeypair(value string) (solana.PrivateKey, error) {
	if value == "" {
		return nil, fmt.Errorf("keypair is required (use --keypair or FLOWTIP_KEYPAIR)")
	}
	key, err := flowsolana.LoadPrivateKey(value)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}
	return key, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brojonat/flowtip/client"
	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

func txCommands() *cli.Command {
	return &cli.Command{
		Name:  "tx",
		Usage: "Transaction utilities",
		Subcommands: []*cli.Command{
			txInspectCommand(),
		},
	}
}

// inspection is a decoded relay transaction plus its signature check.
type inspection struct {
	*flowsolana.TransactionSummary
	RelaySignatureValid bool   `json:"relay_signature_valid"`
	RelaySignatureError string `json:"relay_signature_error,omitempty"`
}

func inspectTransaction(serialized string, programID solana.PublicKey) (*inspection, error) {
	tx, err := client.DecodeTransaction(serialized)
	if err != nil {
		return nil, err
	}
	summary, err := flowsolana.DescribeTransaction(tx,
		flowsolana.WithProgram(programID, "flowtip", program.DescribeInstruction),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe transaction: %w", err)
	}
	out := &inspection{TransactionSummary: summary, RelaySignatureValid: true}
	if err := client.VerifyRelaySignature(tx); err != nil {
		out.RelaySignatureValid = false
		out.RelaySignatureError = err.Error()
	}
	return out, nil
}

func txInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a serialized relay transaction without signing it",
		ArgsUsage: "SERIALIZED_TX (or - for stdin)",
		Description: `Shows the fee payer, the signers still missing and every instruction,
and checks that the relay signature covers the message.

Example:
  flowtip tip send ... | jq -r .serializedTransaction | flowtip tx inspect -`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: serialized transaction")
			}
			serialized := c.Args().First()
			if serialized == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				serialized = string(data)
			}
			pid, err := programID(c)
			if err != nil {
				return err
			}

			out, err := inspectTransaction(strings.TrimSpace(serialized), pid)
			if err != nil {
				return fmt.Errorf("failed to inspect transaction: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, out)
			}

			fmt.Printf("Fee Payer:        %s\n", out.FeePayer)
			fmt.Printf("Blockhash:        %s\n", out.RecentBlockhash)
			fmt.Printf("Signers:          %s\n", strings.Join(out.Signers, ", "))
			fmt.Printf("Missing Signers:  %s\n", strings.Join(out.MissingSigners, ", "))
			if out.RelaySignatureValid {
				fmt.Printf("Relay Signature:  valid\n")
			} else {
				fmt.Printf("Relay Signature:  INVALID (%s)\n", out.RelaySignatureError)
			}
			fmt.Println()
			for i, inst := range out.Instructions {
				fmt.Printf("#%d %s.%s\n", i, inst.Program, inst.Type)
				if inst.Amount != nil {
					fmt.Printf("   Amount:      %d\n", *inst.Amount)
				}
				if inst.Source != nil {
					fmt.Printf("   Source:      %s\n", *inst.Source)
				}
				if inst.Destination != nil {
					fmt.Printf("   Destination: %s\n", *inst.Destination)
				}
				if inst.Mint != nil {
					fmt.Printf("   Mint:        %s\n", *inst.Mint)
				}
				if inst.Memo != nil {
					fmt.Printf("   Memo:        %s\n", *inst.Memo)
				}
			}
			return nil
		},
	}
}

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request devnet SOL, e.g. to fund the relay fee payer",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "lamports",
				Usage: "Lamports to request",
				Value: solana.LAMPORTS_PER_SOL,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}
			addr, err := solana.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			sig, err := rpcClient(c).RequestAirdrop(c.Context, addr, c.Uint64("lamports"), rpc.CommitmentConfirmed)
			if err != nil {
				return fmt.Errorf("failed to request airdrop: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"address":   addr.String(),
					"lamports":  c.Uint64("lamports"),
					"signature": sig.String(),
				})
			}
			fmt.Printf("✓ Airdrop requested\n")
			fmt.Printf("  Address:   %s\n", addr)
			fmt.Printf("  Lamports:  %d\n", c.Uint64("lamports"))
			fmt.Printf("  Signature: %s\n", sig)
			return nil
		},
	}
}

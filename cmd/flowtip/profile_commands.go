package main

import (
	"context"
	"fmt"

	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

func profileCommands() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Creator profile commands",
		Subcommands: []*cli.Command{
			profileDeriveCommand(),
			profileShowCommand(),
			profileInitCommand(),
		},
	}
}

// derivedProfile is the offline view of a handle's accounts.
type derivedProfile struct {
	Handle       string `json:"handle"`
	ProgramID    string `json:"program_id"`
	Address      string `json:"address"`
	Bump         uint8  `json:"bump"`
	TokenAccount string `json:"token_account,omitempty"`
}

func deriveProfile(programID solana.PublicKey, mint *solana.PublicKey, handle string) (*derivedProfile, error) {
	addr, bump, err := flowsolana.DeriveProfileAddress(programID, handle)
	if err != nil {
		return nil, err
	}
	d := &derivedProfile{
		Handle:    handle,
		ProgramID: programID.String(),
		Address:   addr.String(),
		Bump:      bump,
	}
	if mint != nil {
		ata, err := flowsolana.DeriveTokenAccount(addr, *mint)
		if err != nil {
			return nil, err
		}
		d.TokenAccount = ata.String()
	}
	return d, nil
}

func profileDeriveCommand() *cli.Command {
	return &cli.Command{
		Name:      "derive",
		Usage:     "Derive a handle's profile address offline",
		ArgsUsage: "HANDLE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: handle")
			}
			pid, err := programID(c)
			if err != nil {
				return err
			}
			var mint *solana.PublicKey
			if c.String("mint") != "" {
				m, err := mintAddress(c)
				if err != nil {
					return err
				}
				mint = &m
			}

			d, err := deriveProfile(pid, mint, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to derive profile: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, d)
			}
			fmt.Printf("Handle:        %s\n", d.Handle)
			fmt.Printf("Program:       %s\n", d.ProgramID)
			fmt.Printf("Profile:       %s\n", d.Address)
			fmt.Printf("Bump:          %d\n", d.Bump)
			if d.TokenAccount != "" {
				fmt.Printf("Token Account: %s\n", d.TokenAccount)
			}
			return nil
		},
	}
}

func profileShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"get"},
		Usage:     "Show a creator profile as the relay sees it",
		ArgsUsage: "HANDLE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: handle")
			}
			p, err := relayClient(c).GetProfile(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get profile: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, p)
			}
			fmt.Printf("Handle:         %s\n", p.Handle)
			fmt.Printf("Profile:        %s\n", p.Address)
			fmt.Printf("Token Account:  %s\n", p.TokenAccount)
			if !p.Initialized {
				fmt.Printf("Initialized:    no\n")
				return nil
			}
			fmt.Printf("Owner:          %s\n", p.Owner)
			fmt.Printf("Total Received: %d\n", p.TotalReceived)
			fmt.Printf("Tip Count:      %d\n", p.TipCount)
			return nil
		},
	}
}

func profileInitCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Claim a handle by creating its profile on chain",
		ArgsUsage: "HANDLE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Creator keypair file or base58 secret; pays for the accounts",
				EnvVars: []string{"FLOWTIP_KEYPAIR"},
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: handle")
			}
			handle := c.Args().First()
			creator, err := loadKeypair(c.String("keypair"))
			if err != nil {
				return err
			}
			pid, err := programID(c)
			if err != nil {
				return err
			}
			mint, err := mintAddress(c)
			if err != nil {
				return err
			}

			sig, err := initProfile(c.Context, rpcClient(c), pid, mint, creator, handle)
			if err != nil {
				return fmt.Errorf("failed to initialize profile: %w", err)
			}
			d, err := deriveProfile(pid, &mint, handle)
			if err != nil {
				return err
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"signature": sig.String(),
					"profile":   d,
				})
			}
			fmt.Printf("✓ Profile submitted\n")
			fmt.Printf("  Handle:    %s\n", handle)
			fmt.Printf("  Profile:   %s\n", d.Address)
			fmt.Printf("  Signature: %s\n", sig)
			return nil
		},
	}
}

func initProfile(ctx context.Context, rpcClient flowsolana.RPCClient, programID, mint solana.PublicKey, creator solana.PrivateKey, handle string) (solana.Signature, error) {
	inst, err := program.NewInitializeProfileInstruction(programID, creator.PublicKey(), mint, handle)
	if err != nil {
		return solana.Signature{}, err
	}
	bh, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get blockhash: %w", err)
	}
	tx, err := solana.NewTransaction([]solana.Instruction{inst}, bh.Blockhash, solana.TransactionPayer(creator.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(creator.PublicKey()) {
			return &creator
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	sig, err := rpcClient.SendTransaction(ctx, tx, rpc.TransactionOpts{})
	if err != nil {
		return solana.Signature{}, program.ClassifySendError(err)
	}
	return sig, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/brojonat/flowtip/client"
	"github.com/brojonat/flowtip/service/failure"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

func tipCommands() *cli.Command {
	return &cli.Command{
		Name:  "tip",
		Usage: "Send and track tips through the relay",
		Subcommands: []*cli.Command{
			tipSendCommand(),
			tipStatusCommand(),
			tipWatchCommand(),
			tipRecordCommand(),
			tipListCommand(),
		},
	}
}

func tipSendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a gasless tip; the relay pays the network fee",
		Description: `Asks the relay for a partially signed transaction, verifies the relay
signature, signs with the sender key and submits it.

Example:
  flowtip tip send --keypair ~/.config/solana/id.json --to CREATOR_WALLET --handle alice --amount 1000000 --watch`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Sender keypair file or base58 secret",
				EnvVars: []string{"FLOWTIP_KEYPAIR"},
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient wallet address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Amount in the token's smallest unit",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "handle",
				Usage: "Creator handle; routes the tip through the creator's profile",
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Memo attached to plain transfers",
			},
			&cli.StringFlag{
				Name:    "fee-payer",
				Usage:   "Expected relay fee payer; other payers are rejected",
				EnvVars: []string{"FLOWTIP_FEE_PAYER"},
			},
			&cli.BoolFlag{
				Name:  "skip-preflight",
				Usage: "Submit without simulation; failures then surface on chain",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Rebuilds allowed after an expired blockhash",
				Value: client.DefaultMaxAttempts,
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Record the tip in the relay ledger after submission",
			},
			&cli.StringFlag{
				Name:  "message",
				Usage: "Message stored with the ledger record",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Wait for confirmation after submission",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long --watch waits",
				Value: time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			sender, err := loadKeypair(c.String("keypair"))
			if err != nil {
				return err
			}
			amount, err := parseAmount(c.String("amount"))
			if err != nil {
				return err
			}
			var feePayer solana.PublicKey
			if fp := c.String("fee-payer"); fp != "" {
				if feePayer, err = solana.PublicKeyFromBase58(fp); err != nil {
					return fmt.Errorf("invalid fee payer: %w", err)
				}
			}

			relay := relayClient(c)
			wallet := client.NewKeypairWallet(sender, rpcClient(c), rpc.TransactionOpts{
				SkipPreflight: c.Bool("skip-preflight"),
			})
			tipper := client.NewTipper(relay, client.NewCoSigner(wallet, feePayer, nil, cliLogger()), c.Int("max-attempts"), cliLogger())

			req := client.BuildRequest{
				SenderAddress:    sender.PublicKey().String(),
				RecipientAddress: c.String("to"),
				Amount:           amount,
				Handle:           c.String("handle"),
				Memo:             c.String("memo"),
			}
			sig, err := tipper.Tip(c.Context, req)
			if err != nil {
				return describeFailure("failed to send tip", err)
			}

			out := map[string]interface{}{
				"signature": sig.String(),
				"sender":    req.SenderAddress,
				"recipient": req.RecipientAddress,
				"amount":    amount,
			}
			if !wantJSON(c) {
				fmt.Printf("✓ Tip submitted\n")
				fmt.Printf("  Signature: %s\n", sig)
			}

			if c.Bool("record") {
				tip, err := relay.RecordTip(c.Context, client.RecordTipRequest{
					Signature: sig.String(),
					Sender:    req.SenderAddress,
					Recipient: req.RecipientAddress,
					Handle:    req.Handle,
					Amount:    amount,
					Message:   c.String("message"),
				})
				if err != nil {
					// The tip is already on its way; losing the ledger entry is not fatal.
					fmt.Fprintf(os.Stderr, "warning: failed to record tip: %v\n", err)
				} else {
					out["tip_id"] = tip.ID
					out["workflow_id"] = tip.WorkflowID
					if !wantJSON(c) {
						fmt.Printf("  Recorded:  %s\n", tip.ID)
					}
				}
			}

			if c.Bool("watch") {
				ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
				defer cancel()
				status, err := relay.WatchTip(ctx, sig.String())
				out["status"] = status
				if !wantJSON(c) {
					printTipStatus(status)
				}
				if err != nil && !status.GaveUp {
					return fmt.Errorf("failed to watch tip: %w", err)
				}
			}

			if wantJSON(c) {
				return outputJSON(c, out)
			}
			return nil
		},
	}
}

func tipStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Probe a tip's confirmation status once",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			status, err := relayClient(c).TipStatus(c.Context, c.Args().First())
			if err != nil {
				return describeFailure("failed to get tip status", err)
			}
			if wantJSON(c) {
				return outputJSON(c, status)
			}
			printTipStatus(status)
			return nil
		},
	}
}

func tipWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Block until a tip is confirmed or failed",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   time.Minute,
				Usage:   "How long to wait before giving up",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			status, err := relayClient(c).WatchTip(ctx, c.Args().First())
			if wantJSON(c) {
				if jerr := outputJSON(c, status); jerr != nil {
					return jerr
				}
			} else {
				printTipStatus(status)
			}
			if err != nil {
				return fmt.Errorf("gave up waiting for confirmation: %w", err)
			}
			if status.Status == "failed" {
				return fmt.Errorf("tip failed: %s", status.Reason)
			}
			return nil
		},
	}
}

func tipRecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record a submitted tip in the relay ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "signature", Required: true, Usage: "Transaction signature"},
			&cli.StringFlag{Name: "sender", Required: true, Usage: "Sender wallet address"},
			&cli.StringFlag{Name: "recipient", Required: true, Usage: "Recipient wallet address"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "Amount in the token's smallest unit"},
			&cli.StringFlag{Name: "handle", Usage: "Creator handle"},
			&cli.StringFlag{Name: "message", Usage: "Message stored with the tip"},
		},
		Action: func(c *cli.Context) error {
			amount, err := parseAmount(c.String("amount"))
			if err != nil {
				return err
			}
			tip, err := relayClient(c).RecordTip(c.Context, client.RecordTipRequest{
				Signature: c.String("signature"),
				Sender:    c.String("sender"),
				Recipient: c.String("recipient"),
				Handle:    c.String("handle"),
				Amount:    amount,
				Message:   c.String("message"),
			})
			if err != nil {
				return describeFailure("failed to record tip", err)
			}
			if wantJSON(c) {
				return outputJSON(c, tip)
			}
			fmt.Printf("✓ Tip recorded\n")
			fmt.Printf("  ID:       %s\n", tip.ID)
			fmt.Printf("  Status:   %s\n", tip.Status)
			if tip.WorkflowID != "" {
				fmt.Printf("  Workflow: %s\n", tip.WorkflowID)
			}
			return nil
		},
	}
}

func tipListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List ledger tips for a recipient or sender via the relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "Recipient wallet address"},
			&cli.StringFlag{Name: "sender", Usage: "Sender wallet address"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Maximum tips to return"},
			&cli.IntFlag{Name: "offset", Usage: "Tips to skip"},
		},
		Action: func(c *cli.Context) error {
			tips, err := relayClient(c).ListTips(c.Context, client.ListTipsOptions{
				Recipient: c.String("recipient"),
				Sender:    c.String("sender"),
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			})
			if err != nil {
				return describeFailure("failed to list tips", err)
			}
			if wantJSON(c) {
				return outputJSON(c, tips)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tSENDER\tRECIPIENT\tAMOUNT\tSTATUS\tCREATED")
			for _, tip := range tips {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					tip.Signature,
					tip.Sender,
					tip.Recipient,
					tip.Amount,
					tip.Status,
					tip.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()
			fmt.Fprintf(os.Stderr, "\nTotal: %d tips\n", len(tips))
			return nil
		},
	}
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: must be a whole number of base units", s)
	}
	if amount == 0 {
		return 0, fmt.Errorf("invalid amount: must be greater than zero")
	}
	return amount, nil
}

// describeFailure adds the failure class so the user knows whether to fix
// the input, retry or escalate.
func describeFailure(msg string, err error) error {
	fe := failure.From(err)
	switch fe.Class() {
	case failure.ClassFixInput:
		return fmt.Errorf("%s: %w (check the request)", msg, err)
	case failure.ClassTryAgain:
		return fmt.Errorf("%s: %w (try again)", msg, err)
	default:
		return fmt.Errorf("%s: %w (contact support)", msg, err)
	}
}

func printTipStatus(status *client.TipStatus) {
	if status == nil {
		return
	}
	fmt.Printf("Signature: %s\n", status.Signature)
	fmt.Printf("Status:    %s\n", status.Status)
	if status.Reason != "" {
		fmt.Printf("Reason:    %s\n", status.Reason)
	}
	if status.Kind != "" {
		fmt.Printf("Kind:      %s\n", status.Kind)
	}
	if status.Slot > 0 {
		fmt.Printf("Slot:      %d\n", status.Slot)
	}
	if status.GaveUp {
		fmt.Printf("Gave Up:   yes (still pending)\n")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/flowtip/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listTipsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-tips",
		Usage:   "List ledger tips for a recipient or sender",
		Aliases: []string{"tips"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "recipient",
				Aliases: []string{"r"},
				Usage:   "Filter by recipient wallet address",
			},
			&cli.StringFlag{
				Name:  "sender",
				Usage: "Filter by sender wallet address",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (pending, confirmed, failed)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of tips",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			recipient, sender := c.String("recipient"), c.String("sender")
			if (recipient == "") == (sender == "") {
				return fmt.Errorf("please specify exactly one of --recipient or --sender")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var tips []*db.Tip
			if recipient != "" {
				tips, err = store.ListTipsByRecipient(context.Background(), db.ListTipsParams{
					Address: recipient,
					Limit:   int32(c.Int("limit")),
				})
			} else {
				tips, err = store.ListTipsBySender(context.Background(), db.ListTipsParams{
					Address: sender,
					Limit:   int32(c.Int("limit")),
				})
			}
			if err != nil {
				return fmt.Errorf("failed to list tips: %w", err)
			}

			// Filter by status if specified
			if statusFilter := c.String("status"); statusFilter != "" {
				filtered := make([]*db.Tip, 0)
				for _, t := range tips {
					if t.Status == statusFilter {
						filtered = append(filtered, t)
					}
				}
				tips = filtered
			}

			if wantJSON(c) {
				return outputJSON(c, tips)
			}
			printTipTable(tips)
			return nil
		},
	}
}

func tipStatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show tip totals for an address",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}
			address := c.Args().First()

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.GetRecipientStats(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			sent, err := store.GetSenderTotal(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get sender total: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"recipient":      stats.Recipient,
					"total_received": stats.TotalReceived,
					"tip_count":      stats.TipCount,
					"average_tip":    stats.AverageTip,
					"pending_count":  stats.PendingCount,
					"sent_total":     sent,
				})
			}

			fmt.Printf("Address:        %s\n", address)
			fmt.Printf("Total Received: %d\n", stats.TotalReceived)
			fmt.Printf("Tip Count:      %d\n", stats.TipCount)
			fmt.Printf("Average Tip:    %d\n", stats.AverageTip)
			fmt.Printf("Pending:        %d\n", stats.PendingCount)
			fmt.Printf("Total Sent:     %d\n", sent)
			return nil
		},
	}
}

func pendingTipsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List tips still waiting for confirmation",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Only tips recorded at least this long ago",
				Value: time.Minute,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   100,
				Usage:   "Limit number of tips",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tips, err := store.ListPendingTips(context.Background(), time.Now().Add(-c.Duration("older-than")), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list pending tips: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, tips)
			}
			printTipTable(tips)
			return nil
		},
	}
}

func printTipTable(tips []*db.Tip) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNATURE\tSENDER\tRECIPIENT\tHANDLE\tAMOUNT\tSTATUS\tCREATED")
	for _, tip := range tips {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			tip.Signature,
			tip.Sender,
			tip.Recipient,
			formatOptional(tip.Handle),
			tip.Amount,
			tip.Status,
			tip.CreatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d tips\n", len(tips))
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func formatOptional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

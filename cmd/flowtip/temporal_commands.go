package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/flowtip/service/temporal"
	"github.com/urfave/cli/v2"
)

func watchStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch-status",
		Usage:     "Query the confirmation workflow of a tip",
		Aliases:   []string{"status"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			signature := c.Args().First()

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			workflowID := temporal.WatchTipWorkflowID(signature)
			state, err := tc.GetWatchStatus(context.Background(), workflowID)
			if err != nil {
				return fmt.Errorf("failed to get watch status: %w", err)
			}

			desc, err := tc.SDKClient().DescribeWorkflowExecution(context.Background(), workflowID, "")
			if err != nil {
				return fmt.Errorf("failed to describe workflow: %w", err)
			}
			execution := desc.GetWorkflowExecutionInfo().GetStatus().String()

			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"workflow_id": workflowID,
					"execution":   execution,
					"state":       state,
				})
			}

			fmt.Printf("Workflow:   %s\n", workflowID)
			fmt.Printf("Execution:  %s\n", execution)
			fmt.Printf("Status:     %s\n", state.Status)
			if state.Reason != "" {
				fmt.Printf("Reason:     %s\n", state.Reason)
			}
			fmt.Printf("Rounds:     %d\n", state.Rounds)
			fmt.Printf("Recorded:   %v\n", state.Recorded)
			fmt.Printf("Published:  %v\n", state.Published)
			fmt.Printf("Started:    %s\n", state.StartedAt.Format(time.RFC3339))
			if !state.FinishedAt.IsZero() {
				fmt.Printf("Finished:   %s\n", state.FinishedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func startWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "start-watch",
		Usage: "Start (or attach to) the confirmation workflow for a signature",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "signature", Required: true, Usage: "Transaction signature"},
			&cli.StringFlag{Name: "recipient", Required: true, Usage: "Recipient wallet address"},
			&cli.StringFlag{Name: "sender", Usage: "Sender wallet address"},
			&cli.StringFlag{Name: "handle", Usage: "Creator handle"},
			&cli.Int64Flag{Name: "amount", Usage: "Amount in the token's smallest unit"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "Confirmation wait per round"},
		},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			input := temporal.WatchTipInput{
				Signature:    c.String("signature"),
				Sender:       c.String("sender"),
				Recipient:    c.String("recipient"),
				Amount:       c.Int64("amount"),
				WatchTimeout: c.Duration("timeout"),
			}
			if h := c.String("handle"); h != "" {
				input.Handle = &h
			}

			workflowID, err := tc.StartWatch(context.Background(), input)
			if err != nil {
				return fmt.Errorf("failed to start watch: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, map[string]string{"workflow_id": workflowID})
			}
			fmt.Printf("✓ Watch started\n")
			fmt.Printf("  Workflow: %s\n", workflowID)
			return nil
		},
	}
}

func resumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Start watches for ledger tips that are still pending",
		Description: `Finds pending tips in the ledger and starts a confirmation workflow for
each. Watches that are still running are left alone, so this is safe to
run repeatedly.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Only tips recorded at least this long ago",
				Value: time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			n, err := temporal.ResumePending(context.Background(), tc, store, time.Now().Add(-c.Duration("older-than")), cliLogger())
			if err != nil {
				return fmt.Errorf("failed to resume pending tips: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, map[string]int{"resumed": n})
			}
			fmt.Printf("✓ Resumed %d watch(es)\n", n)
			return nil
		},
	}
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = "localhost:7233" // Default value
	}
	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default" // Default value
	}
	return temporal.NewClient(host, namespace, c.String("temporal-task-queue"), cliLogger())
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams tip events for a recipient.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to tip events for a recipient",
		ArgsUsage: "[recipient_address]",
		Description: `Subscribe to tip status events published to NATS JetStream.

Events are published to the subject: tips.{recipient_address}. Without an
address every recipient's events are shown.

Example:
  flowtip nats subscribe CREATOR_WALLET --must-jq '.status == "confirmed"' --json`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Stop after this many matching events (0 is unlimited)",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			filters := c.StringSlice("must-jq")

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			sub, err := natspkg.NewPublisher(c.String("nats-url"), "flowtip-cli", nil, cliLogger())
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer sub.Close()

			if !wantJSON(c) {
				fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n\n", natspkg.SubjectFor(address))
			}

			received := 0
			limit := c.Int("count")
			err = sub.Subscribe(ctx, address, func(event *natspkg.TipEvent) {
				ok, err := matchesAll(filters, event)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error applying filter: %v\n", err)
					return
				}
				if !ok {
					return
				}
				received++
				if wantJSON(c) {
					data, _ := json.Marshal(event)
					fmt.Println(string(data))
				} else {
					printTipEvent(event)
				}
				if limit > 0 && received >= limit {
					cancel()
				}
			})
			if err != nil {
				return fmt.Errorf("subscription failed: %w", err)
			}
			if !wantJSON(c) {
				fmt.Fprintf(os.Stderr, "Received %d event(s)\n", received)
			}
			return nil
		},
	}
}

// matchesAll reports whether every jq filter is truthy for event.
func matchesAll(filters []string, event *natspkg.TipEvent) (bool, error) {
	for _, f := range filters {
		results, err := applyJQ(f, event)
		if err != nil {
			return false, err
		}
		if len(results) == 0 || !isTruthy(results[0]) {
			return false, nil
		}
	}
	return true, nil
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the TIPS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage

Example:
  flowtip nats inspect-stream`,
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, info)
			}
			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("─────────────────────────────────────────────────────\n")
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			fmt.Printf("Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}

func printTipEvent(event *natspkg.TipEvent) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Signature:  %s\n", event.Signature)
	fmt.Printf("Recipient:  %s\n", event.Recipient)
	if event.Handle != nil {
		fmt.Printf("Handle:     %s\n", *event.Handle)
	}
	fmt.Printf("Sender:     %s\n", event.Sender)
	fmt.Printf("Amount:     %d\n", event.Amount)
	fmt.Printf("Status:     %s\n", event.Status)
	if event.Reason != "" {
		fmt.Printf("Reason:     %s\n", event.Reason)
	}
	if event.Slot > 0 {
		fmt.Printf("Slot:       %d\n", event.Slot)
	}
	fmt.Printf("Published:  %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Println()
}

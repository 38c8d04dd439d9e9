package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/urfave/cli/v2"
)

func sseCommands() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamCommand(),
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream tip events via SSE (HTTP)",
		ArgsUsage: "[recipient_address]",
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			address := c.Args().First()
			jsonOutput := wantJSON(c)

			// Build SSE endpoint URL
			url := fmt.Sprintf("%s/api/v1/stream/tips", serverURL)
			if address != "" {
				url = fmt.Sprintf("%s/api/v1/stream/tips/%s", serverURL, address)
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			client := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming tips... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(os.Stdout, event, data, jsonOutput)
			})
			if err != nil && ctx.Err() != nil {
				// Context cancelled (user interrupt)
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "\nDisconnected\n")
				}
				return nil
			}
			return err
		},
	}
}

// readSSE calls fn for every complete event in r. Comment lines such as
// keepalives are skipped. An error from fn for an "error" event ends the
// stream; other handler errors are reported and reading continues.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := fn(currentEvent, currentData); err != nil {
					if currentEvent == "error" {
						return err
					}
					fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func handleSSEEvent(w io.Writer, eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info map[string]interface{}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Subscribed to recipient: %v\n\n", info["recipient"])
		}
		return nil

	case "tip":
		var event natspkg.TipEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}
		if jsonOutput {
			fmt.Fprintln(w, data)
			return nil
		}
		fmt.Fprintf(w, "%s  %-9s  %d  %s -> %s\n",
			event.Signature,
			event.Status,
			event.Amount,
			event.Sender,
			event.Recipient,
		)
		return nil

	case "error":
		var errInfo map[string]interface{}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		// Unknown event type, ignore
		return nil
	}
}

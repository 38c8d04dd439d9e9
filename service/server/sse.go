package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/flowtip/service/metrics"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/relay"
)

const sseKeepaliveInterval = 10 * time.Second

// handleStreamTips handles SSE streaming of tip status events.
// If the address path parameter is empty, streams tips for every recipient.
// Otherwise, streams tips received by that address.
func handleStreamTips(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		recipientDesc := "all recipients"
		if address != "" {
			if _, err := relay.ParseAddress("address", address); err != nil {
				writeFailure(w, r, err, logger)
				return
			}
			recipientDesc = address
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"recipient", recipientDesc,
			"remote_addr", r.RemoteAddr,
		)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := make(chan *natspkg.TipEvent, 10)
		subErr := make(chan error, 1)
		go func() {
			subErr <- subscriber.Subscribe(ctx, address, func(event *natspkg.TipEvent) {
				select {
				case events <- event:
				case <-ctx.Done():
				}
			})
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"recipient\":%q}\n\n", recipientDesc)
		flusher.Flush()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: tip\ndata: %s\n\n", data)
				flusher.Flush()
				if m != nil {
					m.RecordSSEEventSent("tip")
				}
				logger.DebugContext(ctx, "sent tip event",
					"recipient", event.Recipient,
					"signature", event.Signature,
					"status", event.Status,
				)

			case err := <-subErr:
				if err != nil && ctx.Err() == nil {
					logger.ErrorContext(ctx, "tip subscription failed",
						"recipient", recipientDesc,
						"error", err,
					)
					fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
					flusher.Flush()
				}
				return

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"recipient", recipientDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

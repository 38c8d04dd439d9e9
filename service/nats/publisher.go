package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing tip events to NATS.
type Publisher interface {
	// PublishTipEvent publishes a single tip event to JetStream.
	// The event is published to the subject "tips.{recipient}".
	PublishTipEvent(ctx context.Context, event *TipEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// Subscriber delivers tip events matching a subject filter until ctx is
// done. fn is called from a single goroutine.
type Subscriber interface {
	Subscribe(ctx context.Context, address string, fn func(*TipEvent)) error
}

// JetStreamPublisher publishes tip events to NATS JetStream and serves
// ephemeral subscriptions for streaming clients.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ Publisher = (*JetStreamPublisher)(nil)
var _ Subscriber = (*JetStreamPublisher)(nil)

const (
	// StreamName is the name of the JetStream stream for tip events.
	StreamName = "TIPS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "tips.*"

	// StreamRetention is how long messages are retained (7 days by default).
	StreamRetention = 7 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. If m is nil no publish
// metrics are recorded.
func NewPublisher(natsURL, name string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Tip confirmation status events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishTipEvent publishes a single tip event.
func (p *JetStreamPublisher) PublishTipEvent(ctx context.Context, event *TipEvent) (err error) {
	subject := event.Subject()
	if p.metrics != nil {
		start := time.Now()
		defer func() {
			status := "success"
			if err != nil {
				status = "error"
			}
			p.metrics.RecordNATSPublish(StreamSubjects, status, time.Since(start).Seconds())
		}()
	}

	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tip event: %w", err)
	}

	// Deduplicate redelivered status updates within the stream's window.
	msgID := fmt.Sprintf("%s:%s", event.Signature, event.Status)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish tip event: %w", err)
	}

	p.logger.DebugContext(ctx, "published tip event",
		"subject", subject,
		"signature", event.Signature,
		"status", event.Status,
	)
	return nil
}

// Subscribe creates an ephemeral consumer that delivers only events
// published after the call.
func (p *JetStreamPublisher) Subscribe(ctx context.Context, address string, fn func(*TipEvent)) error {
	cons, err := p.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SubjectFor(address)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event TipEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			p.logger.WarnContext(ctx, "failed to unmarshal tip event", "error", err)
			return
		}
		fn(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Client is a production implementation of WatchStarter that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartWatch starts WatchTipWorkflow for a submitted tip and returns its
// workflow id. Starting a watch for a signature that is already being
// watched returns the running workflow's id.
func (c *Client) StartWatch(ctx context.Context, input WatchTipInput) (string, error) {
	id := WatchTipWorkflowID(input.Signature)

	c.logger.Debug("starting tip watch",
		"signature", input.Signature,
		"recipient", input.Recipient,
		"workflow_id", id,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"recipient":  input.Recipient,
			"sender":     input.Sender,
			"created_by": "flowtip",
		},
	}, WorkflowName, input)
	if err != nil {
		if temporalsdk.IsWorkflowExecutionAlreadyStartedError(err) {
			c.logger.Debug("tip watch already running", "workflow_id", id)
			return id, nil
		}
		c.logger.Error("failed to start tip watch",
			"signature", input.Signature,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.Info("tip watch started",
		"signature", input.Signature,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// GetWatchStatus queries a watch workflow for its current state. Completed
// workflows still answer the query from their history.
func (c *Client) GetWatchStatus(ctx context.Context, workflowID string) (*WatchTipState, error) {
	value, err := c.client.QueryWorkflow(ctx, workflowID, "", StatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow %q: %w", workflowID, err)
	}
	var state WatchTipState
	if err := value.Get(&state); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %q status: %w", workflowID, err)
	}
	return &state, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}

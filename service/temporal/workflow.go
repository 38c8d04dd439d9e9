package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const (
	// WorkflowName is the registered name of WatchTipWorkflow.
	WorkflowName = "WatchTipWorkflow"

	// StatusQuery returns the workflow's current WatchTipState.
	StatusQuery = "status"

	// DefaultMaxRounds bounds how many watch rounds run before the tip is
	// left pending.
	DefaultMaxRounds = 3
)

// WatchTipWorkflowID is the deterministic workflow id for a signature, so
// starting a watch twice attaches to the running one.
func WatchTipWorkflowID(signature string) string {
	return "watch-tip-" + signature
}

// WatchTipWorkflow watches a submitted tip until the network reports an
// outcome, records it in the tip ledger and publishes a status event.
//
// The workflow performs these steps:
// 1. Await confirmation (AwaitConfirmation activity), repeated while the
// watch gives up without an outcome, at most MaxRounds times
// 2. Record the outcome in the ledger (RecordTipStatus activity)
// 3. Publish a tip event (PublishTipEvent activity)
//
// Ledger and publish failures are logged and do not fail the workflow: the
// on-chain outcome is already final.
func WatchTipWorkflow(ctx workflow.Context, input WatchTipInput) (*WatchTipResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("WatchTipWorkflow started", "signature", input.Signature)

	state := &WatchTipState{
		Signature: input.Signature,
		Status:    StatusPending,
		StartedAt: workflow.Now(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, StatusQuery, func() (WatchTipState, error) {
		return *state, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register status query: %w", err)
	}

	maxRounds := input.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	watchTimeout := input.WatchTimeout
	if watchTimeout <= 0 {
		watchTimeout = time.Minute
	}

	awaitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: watchTimeout + 30*time.Second,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidSignature},
		},
	})

	var confirmation *AwaitConfirmationResult
	for round := 1; round <= maxRounds; round++ {
		state.Rounds = round
		err := workflow.ExecuteActivity(awaitCtx, a.AwaitConfirmation, AwaitConfirmationInput{
			Signature: input.Signature,
			Timeout:   watchTimeout,
		}).Get(ctx, &confirmation)
		if err != nil {
			errMsg := fmt.Sprintf("failed to await confirmation: %v", err)
			state.Error = &errMsg
			return state.result(), fmt.Errorf("failed to await confirmation: %w", err)
		}

		state.Status = confirmation.Status
		state.Reason = confirmation.Reason
		state.Kind = confirmation.Kind
		state.Slot = confirmation.Slot
		if !confirmation.GaveUp {
			break
		}
		logger.Info("watch round ended without an outcome",
			"signature", input.Signature,
			"round", round,
			"max_rounds", maxRounds,
		)
	}

	sideEffectCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	if state.Status != StatusPending {
		var recorded *RecordTipStatusResult
		err := workflow.ExecuteActivity(sideEffectCtx, a.RecordTipStatus, RecordTipStatusInput{
			Signature: input.Signature,
			Status:    state.Status,
			Reason:    state.Reason,
		}).Get(ctx, &recorded)
		if err != nil {
			logger.Warn("failed to record tip status", "signature", input.Signature, "error", err)
		} else {
			state.Recorded = recorded.Recorded
		}
	}

	err := workflow.ExecuteActivity(sideEffectCtx, a.PublishTipEvent, PublishTipEventInput{
		Signature: input.Signature,
		TipID:     input.TipID,
		Sender:    input.Sender,
		Recipient: input.Recipient,
		Handle:    input.Handle,
		Amount:    input.Amount,
		Status:    state.Status,
		Reason:    state.Reason,
		Kind:      state.Kind,
		Slot:      state.Slot,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish tip event", "signature", input.Signature, "error", err)
	} else {
		state.Published = true
	}

	state.FinishedAt = workflow.Now(ctx)
	logger.Info("WatchTipWorkflow completed",
		"signature", input.Signature,
		"status", state.Status,
		"rounds", state.Rounds,
	)
	return state.result(), nil
}

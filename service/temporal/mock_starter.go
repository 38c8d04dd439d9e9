package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockWatchStarter is an in-memory WatchStarter for testing.
type MockWatchStarter struct {
	mu       sync.Mutex
	watches  map[string]WatchTipInput
	states   map[string]*WatchTipState
	startErr error
}

// NewMockWatchStarter creates a new mock watch starter.
func NewMockWatchStarter() *MockWatchStarter {
	return &MockWatchStarter{
		watches: make(map[string]WatchTipInput),
		states:  make(map[string]*WatchTipState),
	}
}

// StartWatch records the watch and returns its deterministic workflow id.
func (m *MockWatchStarter) StartWatch(ctx context.Context, input WatchTipInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return "", m.startErr
	}
	id := WatchTipWorkflowID(input.Signature)
	if _, exists := m.watches[id]; !exists {
		m.watches[id] = input
		m.states[id] = &WatchTipState{Signature: input.Signature, Status: StatusPending}
	}
	return id, nil
}

// GetWatchStatus returns the state set with SetState, or pending for a
// started watch.
func (m *MockWatchStarter) GetWatchStatus(ctx context.Context, workflowID string) (*WatchTipState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %q not found", workflowID)
	}
	out := *state
	return &out, nil
}

// SetState overrides the state reported for a workflow.
func (m *MockWatchStarter) SetState(workflowID string, state WatchTipState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[workflowID] = &state
}

// SetStartError makes subsequent StartWatch calls fail with err.
func (m *MockWatchStarter) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Watches returns a copy of all started watches keyed by workflow id.
func (m *MockWatchStarter) Watches() map[string]WatchTipInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]WatchTipInput, len(m.watches))
	for k, v := range m.watches {
		out[k] = v
	}
	return out
}

// Reset clears all recorded watches.
func (m *MockWatchStarter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = make(map[string]WatchTipInput)
	m.states = make(map[string]*WatchTipState)
	m.startErr = nil
}

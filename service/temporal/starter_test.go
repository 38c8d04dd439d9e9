package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/flowtip/service/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePendingLister struct {
	tips []*db.Tip
	err  error
}

func (f *fakePendingLister) ListPendingTips(ctx context.Context, olderThan time.Time, limit int32) ([]*db.Tip, error) {
	return f.tips, f.err
}

func TestResumePending(t *testing.T) {
	handle := "alice"
	lister := &fakePendingLister{tips: []*db.Tip{
		{ID: uuid.New(), Signature: "sig1", Sender: "s", Recipient: "r1", Amount: 10, Handle: &handle},
		{ID: uuid.New(), Signature: "sig2", Sender: "s", Recipient: "r2", Amount: 20},
	}}
	starter := NewMockWatchStarter()

	n, err := ResumePending(context.Background(), starter, lister, time.Now(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	watches := starter.Watches()
	require.Len(t, watches, 2)
	first := watches[WatchTipWorkflowID("sig1")]
	assert.Equal(t, "r1", first.Recipient)
	require.NotNil(t, first.Handle)
	assert.Equal(t, "alice", *first.Handle)
	assert.Equal(t, lister.tips[0].ID.String(), first.TipID)

	// a second pass attaches to the same watches
	n, err = ResumePending(context.Background(), starter, lister, time.Now(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, starter.Watches(), 2)
}

func TestResumePending_Errors(t *testing.T) {
	_, err := ResumePending(context.Background(), NewMockWatchStarter(), &fakePendingLister{err: errors.New("db down")}, time.Now(), discardLogger())
	assert.Error(t, err)

	starter := NewMockWatchStarter()
	starter.SetStartError(errors.New("temporal unavailable"))
	n, err := ResumePending(context.Background(), starter, &fakePendingLister{tips: []*db.Tip{{Signature: "sig1"}}}, time.Now(), discardLogger())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMockWatchStarter_Status(t *testing.T) {
	starter := NewMockWatchStarter()
	id, err := starter.StartWatch(context.Background(), WatchTipInput{Signature: "sig1"})
	require.NoError(t, err)

	state, err := starter.GetWatchStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, state.Status)

	starter.SetState(id, WatchTipState{Signature: "sig1", Status: StatusConfirmed})
	state, err = starter.GetWatchStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, state.Status)

	_, err = starter.GetWatchStatus(context.Background(), "missing")
	assert.Error(t, err)
}

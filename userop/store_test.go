package userop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := db.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return NewStore(backend)
}

func TestProcessNewWitnessedOpIsPersisted(t *testing.T) {
	s := newTestStore(t)
	op := sampleOp()
	op.State = StateWitnessed
	op.BridgeSide = sentineltypes.SideNative
	op.WitnessedTimestamp = 111

	toCancel, err := s.Process(op)
	require.NoError(t, err)
	require.Nil(t, toCancel)

	uid, err := op.UID()
	require.NoError(t, err)
	stored, err := s.Get(uid)
	require.NoError(t, err)
	require.Equal(t, StateWitnessed, stored.State)

	list, err := s.List()
	require.NoError(t, err)
	entry := list.find(uid)
	require.NotNil(t, entry)
	require.True(t, entry.Flag.IsSet(StateWitnessed))
	require.Equal(t, uint64(111), entry.FirstWitnessedTimestamp)
}

func TestProcessEnqueuedWithoutPriorWitnessReturnsForCancellation(t *testing.T) {
	s := newTestStore(t)
	op := sampleOp()
	op.State = StateEnqueued
	op.StateSide = sentineltypes.SideHost

	toCancel, err := s.Process(op)
	require.NoError(t, err)
	require.NotNil(t, toCancel)
	require.Equal(t, StateEnqueued, toCancel.State)
}

func TestProcessWitnessedThenEnqueuedAdvancesStateAndDoesNotFlagForCancellation(t *testing.T) {
	s := newTestStore(t)
	witnessed := sampleOp()
	witnessed.State = StateWitnessed
	witnessed.WitnessedTimestamp = 111
	_, err := s.Process(witnessed)
	require.NoError(t, err)

	enqueued := sampleOp()
	enqueued.State = StateEnqueued
	toCancel, err := s.Process(enqueued)
	require.NoError(t, err)
	require.Nil(t, toCancel)

	uid, err := witnessed.UID()
	require.NoError(t, err)
	stored, err := s.Get(uid)
	require.NoError(t, err)
	require.Equal(t, StateEnqueued, stored.State)
	require.Equal(t, uint64(111), stored.WitnessedTimestamp)
}

func TestProcessIgnoresRegressionToLowerState(t *testing.T) {
	s := newTestStore(t)
	executed := sampleOp()
	executed.State = StateExecuted
	_, err := s.Process(executed)
	require.NoError(t, err)

	enqueuedAgain := sampleOp()
	enqueuedAgain.State = StateEnqueued
	toCancel, err := s.Process(enqueuedAgain)
	require.NoError(t, err)
	require.Nil(t, toCancel)

	uid, err := executed.UID()
	require.NoError(t, err)
	stored, err := s.Get(uid)
	require.NoError(t, err)
	require.Equal(t, StateExecuted, stored.State)
}

func TestProcessTreatsExecutedAndCancelledAsIncomparable(t *testing.T) {
	s := newTestStore(t)
	executed := sampleOp()
	executed.State = StateExecuted
	_, err := s.Process(executed)
	require.NoError(t, err)

	cancelled := sampleOp()
	cancelled.State = StateCancelled
	_, err = s.Process(cancelled)
	require.NoError(t, err)

	uid, err := executed.UID()
	require.NoError(t, err)
	stored, err := s.Get(uid)
	require.NoError(t, err)
	require.Equal(t, StateExecuted, stored.State, "neither terminal state dominates the other")

	list, err := s.List()
	require.NoError(t, err)
	entry := list.find(uid)
	require.True(t, entry.Flag.IsSet(StateExecuted))
	require.True(t, entry.Flag.IsSet(StateCancelled))
}

func TestProcessBatchCollectsOnlyEnqueuedWithoutWitness(t *testing.T) {
	s := newTestStore(t)
	witnessed := sampleOp()
	witnessed.State = StateWitnessed

	other := sampleOp()
	other.Nonce = other.Nonce
	other.DestinationAccount = "0xcc"
	other.State = StateEnqueued

	toCancel, err := s.ProcessBatch([]*Op{witnessed, other})
	require.NoError(t, err)
	require.Len(t, toCancel, 1)
	uidOther, err := other.UID()
	require.NoError(t, err)
	uidCancel, err := toCancel[0].UID()
	require.NoError(t, err)
	require.Equal(t, uidOther, uidCancel)
}

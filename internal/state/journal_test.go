package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durablehq/sdk-go/internal/wire"
)

func TestNewJournalEmptyStartsFresh(t *testing.T) {
	j := NewJournal(nil)
	assert.False(t, j.Replaying())
	assert.Equal(t, uint32(1), j.NextIndex())
	assert.Equal(t, uint32(1), j.Size())
}

func TestNewJournalWithReplayedEntriesIsReplaying(t *testing.T) {
	replayed := []wire.Message{
		&wire.GetStateEntryMessage{Key: "a"},
		&wire.SleepEntryMessage{WakeUpTime: 1},
	}
	j := NewJournal(replayed)
	assert.True(t, j.Replaying())
	assert.Equal(t, uint32(3), j.Size())
}

func TestReplayedAdvancesCursorAndStopsAtKnown(t *testing.T) {
	replayed := []wire.Message{&wire.GetStateEntryMessage{Key: "a"}}
	j := NewJournal(replayed)

	msg, idx := j.Replayed()
	assert.Equal(t, uint32(1), idx)
	assert.IsType(t, &wire.GetStateEntryMessage{}, msg)
	assert.False(t, j.Replaying())
}

func TestAppendAssignsContiguousIndices(t *testing.T) {
	j := NewJournal(nil)

	idx1 := j.Append(&wire.GetStateEntryMessage{Key: "a"})
	idx2 := j.Append(&wire.SleepEntryMessage{WakeUpTime: 1})

	assert.Equal(t, uint32(1), idx1)
	assert.Equal(t, uint32(2), idx2)
	assert.Equal(t, uint32(3), j.NextIndex())
}

func TestGetRoundTripsAppendedEntry(t *testing.T) {
	j := NewJournal(nil)
	entry := &wire.GetStateEntryMessage{Key: "a"}
	idx := j.Append(entry)

	got, ok := j.Get(idx)
	require.True(t, ok)
	assert.Same(t, entry, got)
}

func TestGetUnknownIndex(t *testing.T) {
	j := NewJournal(nil)
	_, ok := j.Get(0)
	assert.False(t, ok)
	_, ok = j.Get(99)
	assert.False(t, ok)
}

func TestCompleteAppliesResultToCompleteableEntry(t *testing.T) {
	j := NewJournal(nil)
	entry := &wire.GetStateEntryMessage{Key: "a"}
	idx := j.Append(entry)

	require.NoError(t, j.Complete(idx, wire.EntryResult{Value: []byte("v")}))
	assert.Equal(t, []byte("v"), entry.Result.Value)
}

func TestCompleteIdempotentDuplicateIsTolerated(t *testing.T) {
	j := NewJournal(nil)
	entry := &wire.GetStateEntryMessage{Key: "a"}
	idx := j.Append(entry)

	require.NoError(t, j.Complete(idx, wire.EntryResult{Value: []byte("v")}))
	require.NoError(t, j.Complete(idx, wire.EntryResult{Value: []byte("v")}))
}

func TestCompleteConflictingDuplicateIsRejected(t *testing.T) {
	j := NewJournal(nil)
	entry := &wire.GetStateEntryMessage{Key: "a"}
	idx := j.Append(entry)

	require.NoError(t, j.Complete(idx, wire.EntryResult{Value: []byte("v")}))
	err := j.Complete(idx, wire.EntryResult{Value: []byte("different")})
	assert.ErrorIs(t, err, wire.ErrDuplicateCompletion)
}

func TestCompleteUnknownIndexErrors(t *testing.T) {
	j := NewJournal(nil)
	err := j.Complete(42, wire.EntryResult{Value: []byte("v")})
	assert.Error(t, err)
}

func TestCompleteNonCompleteableEntryErrors(t *testing.T) {
	j := NewJournal(nil)
	idx := j.Append(&wire.SetStateEntryMessage{Key: "a", Value: []byte("v")})
	err := j.Complete(idx, wire.EntryResult{Value: []byte("v")})
	assert.Error(t, err)
}

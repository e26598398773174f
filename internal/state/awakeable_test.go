package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/wire"
)

func TestAwakeableIdIsDeterministicForGivenIndex(t *testing.T) {
	conn := newTestConn()
	m := newBareMachine(conn, nil)

	aw := m.awakeable()
	_ = conn.outbound(t)

	conn2 := newTestConn()
	m2 := newBareMachine(conn2, nil)
	aw2 := m2.awakeable()

	assert.Equal(t, aw.Id(), aw2.Id(), "the same invocation id and entry index must derive the same awakeable id")
	assert.Equal(t, uint32(1), aw.EntryIndex())
}

func TestAwakeableResultResolvesOnCompletion(t *testing.T) {
	conn := newTestConn()
	m := newBareMachine(conn, nil)

	aw := m.awakeable()
	go func() {
		m.handleCompletion(&wire.CompletionMessage{EntryIndex: aw.EntryIndex(), Result: wire.EntryResult{Value: []byte("payload")}})
	}()
	value, err := aw.Result()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

func TestAwakeableResultSurfacesRejectionAsTerminal(t *testing.T) {
	conn := newTestConn()
	m := newBareMachine(conn, nil)

	aw := m.awakeable()
	go func() {
		m.handleCompletion(&wire.CompletionMessage{
			EntryIndex: aw.EntryIndex(),
			Result:     wire.EntryResult{Failure: &wire.Failure{Code: uint32(durable.CodeCancelled), Message: "rejected"}},
		})
	}()
	_, err := aw.Result()
	require.Error(t, err)
	assert.True(t, durable.IsTerminalError(err))
	assert.Contains(t, err.Error(), "rejected")
}

func TestAwakeableHandleResolveJournalsCompletion(t *testing.T) {
	conn := newTestConn()
	m := newBareMachine(conn, nil)

	handle := &awakeableHandle{machine: m, id: "awk_xyz"}
	require.NoError(t, handle.Resolve([]byte("value")))

	out := conn.outbound(t)
	require.Len(t, out, 1)
	entry, ok := out[0].(*wire.CompleteAwakeableEntryMessage)
	require.True(t, ok)
	assert.Equal(t, "awk_xyz", entry.Id)
	assert.Equal(t, []byte("value"), entry.Result.Value)
}

func TestAwakeableHandleRejectJournalsFailure(t *testing.T) {
	conn := newTestConn()
	m := newBareMachine(conn, nil)

	handle := &awakeableHandle{machine: m, id: "awk_xyz"}
	require.NoError(t, handle.Reject(durable.TerminalError(assertErr("denied"), durable.CodeCancelled)))

	out := conn.outbound(t)
	require.Len(t, out, 1)
	entry, ok := out[0].(*wire.CompleteAwakeableEntryMessage)
	require.True(t, ok)
	require.NotNil(t, entry.Result.Failure)
	assert.Equal(t, "denied", entry.Result.Failure.Message)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

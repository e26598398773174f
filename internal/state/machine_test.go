package state

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	durable "github.com/durablehq/sdk-go"
	ierrors "github.com/durablehq/sdk-go/internal/errors"
	"github.com/durablehq/sdk-go/internal/wire"
)

// testConn feeds a pre-encoded sequence of inbound frames and records every
// outbound frame the Machine writes, decoded back into messages for
// assertions. Reads past the end of the inbound sequence return io.EOF,
// which is exactly the signal a closed connection would give.
type testConn struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func newTestConn(inbound ...wire.Message) *testConn {
	c := &testConn{in: &bytes.Buffer{}}
	for _, msg := range inbound {
		body, err := msg.Marshal()
		if err != nil {
			panic(err)
		}
		if err := wire.WriteFrame(c.in, wire.Header{Type: msg.Type()}, body); err != nil {
			panic(err)
		}
	}
	return c
}

func (c *testConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *testConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *testConn) outbound(t *testing.T) []wire.Message {
	t.Helper()
	var msgs []wire.Message
	r := bytes.NewReader(c.out.Bytes())
	for r.Len() > 0 {
		h, body, err := wire.ReadFrame(r)
		require.NoError(t, err)
		msg, err := wire.Decode(h, body)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func handlerFunc(fn func(durable.Context, []byte) ([]byte, error)) durable.Handler {
	return handlerAdapter{fn}
}

type handlerAdapter struct {
	fn func(durable.Context, []byte) ([]byte, error)
}

func (h handlerAdapter) Call(ctx durable.Context, req []byte) ([]byte, error) { return h.fn(ctx, req) }

func startMsg(knownEntries uint32, partial bool, state map[string][]byte) *wire.StartMessage {
	m := &wire.StartMessage{Id: []byte("invocation-1"), DebugId: "inv-1", KnownEntries: knownEntries, PartialState: partial}
	for k, v := range state {
		m.StateMap = append(m.StateMap, wire.StateEntry{Key: k, Value: v})
	}
	return m
}

// Scenario 1: Reset counter.
func TestScenarioResetCounter(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, nil),
		&wire.InputEntryMessage{Value: []byte(`{"name":"c"}`)},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		require.NoError(t, ctx.Clear("total"))
		return nil, nil
	})

	m := NewMachine(h, conn)
	err := m.Start(context.Background(), "test/Reset")
	require.NoError(t, err)

	out := conn.outbound(t)
	require.Len(t, out, 3)
	clearEntry, ok := out[0].(*wire.ClearStateEntryMessage)
	require.True(t, ok)
	assert.Equal(t, "total", clearEntry.Key)
	outputEntry, ok := out[1].(*wire.OutputEntryMessage)
	require.True(t, ok)
	assert.Empty(t, outputEntry.Value)
	assert.IsType(t, &wire.EndMessage{}, out[2])
}

// Scenario 2: Get-with-eager-hit.
func TestScenarioGetWithEagerHit(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, map[string][]byte{"STATE": []byte("hello")}),
		&wire.InputEntryMessage{},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return ctx.Get("STATE")
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Get"))

	out := conn.outbound(t)
	require.Len(t, out, 2)
	// Eager hits never produce a GetStateEntry: only the output is written.
	outputEntry, ok := out[0].(*wire.OutputEntryMessage)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), outputEntry.Value)
	assert.IsType(t, &wire.EndMessage{}, out[1])
}

// Scenario 3a: sleep suspends when no completion is available.
func TestScenarioSleepSuspends(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, nil),
		&wire.InputEntryMessage{},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return nil, ctx.Sleep(100 * time.Millisecond)
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Sleep"))

	out := conn.outbound(t)
	require.Len(t, out, 2)
	sleepEntry, ok := out[0].(*wire.SleepEntryMessage)
	require.True(t, ok)
	assert.False(t, sleepEntry.Result.IsSet())
	suspension, ok := out[1].(*wire.SuspensionMessage)
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, suspension.EntryIndexes)
}

// Scenario 3b: re-invocation with the SleepEntry already resolved replays
// straight through to output.
func TestScenarioSleepThenReturnOnReplay(t *testing.T) {
	conn := newTestConn(
		startMsg(2, false, nil),
		&wire.InputEntryMessage{},
		&wire.SleepEntryMessage{WakeUpTime: 123, Result: wire.EntryResult{Empty: true}},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		if err := ctx.Sleep(100 * time.Millisecond); err != nil {
			return nil, err
		}
		return []byte("done"), nil
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Sleep"))

	out := conn.outbound(t)
	require.Len(t, out, 2)
	outputEntry, ok := out[0].(*wire.OutputEntryMessage)
	require.True(t, ok)
	assert.Equal(t, []byte("done"), outputEntry.Value)
}

// Scenario 4: a side effect that issues another journalled operation is a
// protocol violation, not a silently accepted nested entry.
func TestScenarioSideEffectGuard(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, nil),
		&wire.InputEntryMessage{},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return ctx.SideEffect(func() ([]byte, error) {
			return nil, ctx.Sleep(time.Millisecond)
		})
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Guard"))

	out := conn.outbound(t)
	require.Len(t, out, 1)
	errMsg, ok := out[0].(*wire.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, uint32(ierrors.CodeInternal), errMsg.Code)
	assert.Contains(t, errMsg.Message, "side effect")
}

// Scenario 5: the replayed entry's content does not match what the first
// user operation produces.
func TestScenarioJournalMismatch(t *testing.T) {
	conn := newTestConn(
		startMsg(2, true, nil),
		&wire.InputEntryMessage{},
		&wire.GetStateEntryMessage{Key: "other", Result: wire.EntryResult{Value: []byte("x")}},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return ctx.Get("STATE")
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Mismatch"))

	out := conn.outbound(t)
	require.Len(t, out, 1)
	errMsg, ok := out[0].(*wire.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, uint32(ierrors.CodeJournalMismatch), errMsg.Code)
}

// Scenario 6: terminal failures surface as an OutputEntry failure; any
// other error closes the invocation with a retryable ErrorMessage.
func TestScenarioTerminalFailure(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, nil),
		&wire.InputEntryMessage{},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return nil, durable.TerminalError(fmt.Errorf("x"), durable.CodeInternal)
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/Terminal"))

	out := conn.outbound(t)
	require.Len(t, out, 2)
	outputEntry, ok := out[0].(*wire.OutputEntryMessage)
	require.True(t, ok)
	require.NotNil(t, outputEntry.Failure)
	assert.Equal(t, uint32(durable.CodeInternal), outputEntry.Failure.Code)
	assert.IsType(t, &wire.EndMessage{}, out[1])
}

func TestScenarioNonTerminalFailureClosesWithErrorMessage(t *testing.T) {
	conn := newTestConn(
		startMsg(1, false, nil),
		&wire.InputEntryMessage{},
	)

	h := handlerFunc(func(ctx durable.Context, req []byte) ([]byte, error) {
		return nil, fmt.Errorf("IllegalState: x")
	})

	m := NewMachine(h, conn)
	require.NoError(t, m.Start(context.Background(), "test/NonTerminal"))

	out := conn.outbound(t)
	require.Len(t, out, 1)
	errMsg, ok := out[0].(*wire.ErrorMessage)
	require.True(t, ok)
	assert.Contains(t, errMsg.Message, "IllegalState")
}

package state

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	durable "github.com/durablehq/sdk-go"
	ierrors "github.com/durablehq/sdk-go/internal/errors"
	"github.com/durablehq/sdk-go/internal/wire"
)

// sideEffect runs fn under the configured retry policy and records the
// outcome exactly once. Replays never re-invoke fn: the RunEntry already
// carries the recorded result. fn MUST NOT call back into the Context; the
// runningSideEffect guard in replayOrNew turns a violation into a fatal
// protocol error instead of silent nondeterminism.
func (m *Machine) sideEffect(fn func() ([]byte, error), opts ...durable.SideEffectOption) ([]byte, error) {
	m.entryMutex.Lock()
	if m.failure != nil {
		f := m.failure
		m.entryMutex.Unlock()
		panic(f)
	}

	if m.journal.Replaying() {
		msg, idx := m.journal.Replayed()
		m.entryMutex.Unlock()
		entry, ok := msg.(*wire.RunEntryMessage)
		if !ok {
			var want *wire.RunEntryMessage
			panic(newEntryMismatch(idx, want, msg))
		}
		return runResultToValue(entry.Result)
	}

	if m.runningSideEffect {
		m.entryMutex.Unlock()
		panic(&sideEffectFailure{err: fmt.Errorf("%w: side effects must not issue other journalled operations", ierrors.ErrProtocolViolation)})
	}
	m.runningSideEffect = true
	m.entryMutex.Unlock()

	policy := durable.ResolveSideEffectOptions(opts)
	wrapped := func() ([]byte, error) {
		v, err := fn()
		if err != nil && durable.IsTerminalError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	value, err := backoff.RetryWithData(wrapped, policy)

	m.entryMutex.Lock()
	m.runningSideEffect = false
	m.entryMutex.Unlock()

	var entry *wire.RunEntryMessage
	switch {
	case err != nil && durable.IsTerminalError(err):
		entry = &wire.RunEntryMessage{
			Result: wire.EntryResult{Failure: &wire.Failure{Code: uint32(durable.ErrorCode(err)), Message: err.Error()}},
		}
	case err != nil:
		panic(&sideEffectFailure{err: err})
	default:
		entry = &wire.RunEntryMessage{Result: wire.EntryResult{Value: value, Empty: len(value) == 0}}
	}

	m.entryMutex.Lock()
	idx := m.journal.Append(entry)
	m.entryMutex.Unlock()

	ack := make(chan struct{})
	m.pendingMutex.Lock()
	m.pendingAcks[idx] = ack
	m.pendingMutex.Unlock()

	if werr := m.protocol.Write(entry); werr != nil {
		panic(&writeError{entryIndex: idx, entry: entry, err: werr})
	}

	select {
	case <-ack:
	case <-m.suspensionCtx.Done():
		panic(&suspensionPanic{entryIndexes: []uint32{idx}, err: context.Cause(m.suspensionCtx)})
	}

	return runResultToValue(entry.Result)
}

func runResultToValue(r wire.EntryResult) ([]byte, error) {
	if r.Failure != nil {
		return nil, durable.TerminalErrorFrom(durable.Code(r.Failure.Code), r.Failure.Message)
	}
	return r.Value, nil
}

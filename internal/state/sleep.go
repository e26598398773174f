package state

import (
	"time"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/wire"
)

// afterImpl is the Selectable returned by Context.After: a SleepEntry the
// caller has chosen not to await immediately.
type afterImpl struct {
	m     *Machine
	entry *wire.SleepEntryMessage
	idx   uint32
}

func (a *afterImpl) EntryIndex() uint32 { return a.idx }

func (a *afterImpl) resolve() *futures.ResponseFuture {
	return a.m.futureFor(a.idx, a.entry.CurrentResult())
}

func (a *afterImpl) Done() error {
	result := a.m.awaitEntry(a.idx, a.entry.CurrentResult())
	if result.Failure != nil {
		return durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	}
	return nil
}

func (m *Machine) sleepEntry(d time.Duration) (*wire.SleepEntryMessage, uint32) {
	wakeAt := uint64(time.Now().Add(d).UnixMilli())
	return replayOrNew(m,
		func() *wire.SleepEntryMessage { return &wire.SleepEntryMessage{WakeUpTime: wakeAt} },
		func(e *wire.SleepEntryMessage, i uint32) *wire.SleepEntryMessage { return e },
	)
}

func (m *Machine) sleep(d time.Duration) error {
	entry, idx := m.sleepEntry(d)
	result := m.awaitEntry(idx, entry.CurrentResult())
	if result.Failure != nil {
		return durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	}
	return nil
}

func (m *Machine) after(d time.Duration) durable.After {
	entry, idx := m.sleepEntry(d)
	return &afterImpl{m: m, entry: entry, idx: idx}
}

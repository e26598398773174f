package state

import (
	"encoding/binary"

	"github.com/mr-tron/base58"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/wire"
)

var (
	_ durable.Awakeable[[]byte]  = (*awakeableImpl)(nil)
	_ durable.AwakeableHandle    = (*awakeableHandle)(nil)
)

// awakeableID derives a stable textual id for the awakeable created at
// entryIndex within this invocation: deterministic and globally unique as
// long as invocation ids are, so it never needs a journal entry of its
// own to hand out.
func awakeableID(invocationID []byte, entryIndex uint32) string {
	buf := make([]byte, len(invocationID)+4)
	copy(buf, invocationID)
	binary.BigEndian.PutUint32(buf[len(invocationID):], entryIndex)
	return "awk_" + base58.Encode(buf)
}

type awakeableImpl struct {
	m     *Machine
	id    string
	entry *wire.AwakeableEntryMessage
	idx   uint32
}

func (a *awakeableImpl) Id() string         { return a.id }
func (a *awakeableImpl) EntryIndex() uint32 { return a.idx }

func (a *awakeableImpl) resolve() *futures.ResponseFuture {
	return a.m.futureFor(a.idx, a.entry.CurrentResult())
}

func (a *awakeableImpl) Result() ([]byte, error) {
	result := a.m.awaitEntry(a.idx, a.entry.CurrentResult())
	if result.Failure != nil {
		return nil, durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	}
	return result.Value, nil
}

func (m *Machine) awakeable() durable.Awakeable[[]byte] {
	entry, idx := replayOrNew(m,
		func() *wire.AwakeableEntryMessage { return &wire.AwakeableEntryMessage{} },
		func(e *wire.AwakeableEntryMessage, i uint32) *wire.AwakeableEntryMessage { return e },
	)
	return &awakeableImpl{m: m, id: awakeableID(m.id, idx), entry: entry, idx: idx}
}

type awakeableHandle struct {
	machine *Machine
	id      string
}

func (h *awakeableHandle) Resolve(value []byte) error {
	return h.machine.completeAwakeable(h.id, wire.EntryResult{Value: value, Empty: len(value) == 0})
}

func (h *awakeableHandle) Reject(reason error) error {
	code := durable.ErrorCode(reason)
	return h.machine.completeAwakeable(h.id, wire.EntryResult{
		Failure: &wire.Failure{Code: uint32(code), Message: reason.Error()},
	})
}

func (m *Machine) completeAwakeable(id string, result wire.EntryResult) error {
	_, _ = replayOrNew(m,
		func() *wire.CompleteAwakeableEntryMessage {
			return &wire.CompleteAwakeableEntryMessage{Id: id, Result: result}
		},
		func(e *wire.CompleteAwakeableEntryMessage, i uint32) durable.Void {
			if e.Id != id {
				panic(newEntryMismatch(i, &wire.CompleteAwakeableEntryMessage{Id: id}, e))
			}
			return durable.Void{}
		},
	)
	return nil
}

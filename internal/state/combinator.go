package state

import (
	"context"
	"fmt"
	"sync"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/wire"
)

// engineSelectable is implemented by every concrete Selectable this
// package hands back to user code; it exposes the underlying
// futures.ResponseFuture so Selector/All/Any can fan out over a mix of
// sleeps, calls, and awakeables uniformly.
type engineSelectable interface {
	durable.Selectable
	resolve() *futures.ResponseFuture
}

func asFutures(futs []durable.Selectable) ([]futures.Selectable, error) {
	out := make([]futures.Selectable, len(futs))
	for i, f := range futs {
		es, ok := f.(engineSelectable)
		if !ok {
			return nil, fmt.Errorf("durable: selectable at position %d was not produced by this engine", i)
		}
		out[i] = es.resolve()
	}
	return out, nil
}

func pendingIndices(children []durable.Selectable, resolved map[int]bool) []uint32 {
	out := make([]uint32, 0, len(children))
	for i, c := range children {
		if !resolved[i] {
			out = append(out, c.EntryIndex())
		}
	}
	return out
}

func indexOfEntry(children []durable.Selectable, entryIndex uint32) int {
	for i, c := range children {
		if c.EntryIndex() == entryIndex {
			return i
		}
	}
	return -1
}

func childError(m *Machine, child durable.Selectable) error {
	es := child.(engineSelectable)
	result := m.awaitEntry(child.EntryIndex(), es.resolve().Result())
	if result.Failure != nil {
		return durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	}
	return nil
}

// selectorImpl hands children back one at a time in resolution order.
type selectorImpl struct {
	m        *Machine
	children []durable.Selectable
	futs     []futures.Selectable
	done     map[int]bool
}

func (m *Machine) selector(futs ...durable.Selectable) (durable.Selector, error) {
	fs, err := asFutures(futs)
	if err != nil {
		return nil, err
	}
	return &selectorImpl{m: m, children: futs, futs: fs, done: map[int]bool{}}, nil
}

func (s *selectorImpl) Select() (durable.Selectable, bool) {
	pending := make([]futures.Selectable, 0, len(s.futs))
	indexMap := make([]int, 0, len(s.futs))
	for i, f := range s.futs {
		if s.done[i] {
			continue
		}
		pending = append(pending, f)
		indexMap = append(indexMap, i)
	}
	if len(pending) == 0 {
		return nil, false
	}

	winner, ok := futures.WaitAny(s.m.suspensionCtx, pending)
	if !ok {
		panic(&suspensionPanic{entryIndexes: pendingIndices(s.children, s.done), err: context.Cause(s.m.suspensionCtx)})
	}
	won := indexMap[winner]
	s.done[won] = true
	return s.children[won], true
}

type combinatorKind int

const (
	combinatorAll combinatorKind = iota
	combinatorAny
)

// combinatorImpl is the deferred result of Context.All/Context.Any. Its
// own EntryIndex refers to the CombinatorEntry recording resolution order,
// not to any one child. fresh is true when this invocation is the one
// that actually races the children; the resulting order is written to the
// journal exactly once, so a replay sees it already recorded and never
// races again.
type combinatorImpl struct {
	m        *Machine
	children []durable.Selectable
	entry    *wire.CombinatorEntryMessage
	idx      uint32
	fresh    bool
	once     sync.Once
	winner   int
}

func (c *combinatorImpl) EntryIndex() uint32 { return c.idx }
func (c *combinatorImpl) WinnerIndex() int   { return c.winner }

func (c *combinatorImpl) resolve() *futures.ResponseFuture {
	fut := futures.NewResponseFuture(nil, c.idx)
	err := c.Await()
	switch {
	case err == nil:
		fut.Resolve(wire.EntryResult{Empty: true})
	case durable.IsTerminalError(err):
		fut.Resolve(wire.EntryResult{Failure: &wire.Failure{Code: uint32(durable.ErrorCode(err)), Message: err.Error()}})
	}
	return fut
}

func (c *combinatorImpl) Await() error {
	if c.fresh {
		return c.awaitFresh()
	}
	return c.awaitReplayed()
}

func (c *combinatorImpl) awaitFresh() error {
	fs, err := asFutures(c.children)
	if err != nil {
		return err
	}

	if c.entry.Combinator == wire.CombinatorAny {
		winner, ok := futures.WaitAny(c.m.suspensionCtx, fs)
		if !ok {
			panic(&suspensionPanic{entryIndexes: pendingIndices(c.children, nil), err: context.Cause(c.m.suspensionCtx)})
		}
		c.winner = winner
		c.commit([]uint32{c.children[winner].EntryIndex()})
		return childError(c.m, c.children[winner])
	}

	order, ok := futures.WaitAll(c.m.suspensionCtx, fs)
	if !ok {
		resolved := make(map[int]bool, len(order))
		for _, i := range order {
			resolved[i] = true
		}
		panic(&suspensionPanic{entryIndexes: pendingIndices(c.children, resolved), err: context.Cause(c.m.suspensionCtx)})
	}
	resolution := make([]uint32, len(order))
	for i, pos := range order {
		resolution[i] = c.children[pos].EntryIndex()
	}
	c.commit(resolution)

	for _, pos := range order {
		if err := childError(c.m, c.children[pos]); err != nil {
			c.winner = pos
			return err
		}
	}
	return nil
}

func (c *combinatorImpl) awaitReplayed() error {
	if len(c.entry.ResolutionOrder) == 0 {
		panic(newEntryMismatch(c.idx, c.entry, c.entry))
	}

	if c.entry.Combinator == wire.CombinatorAny {
		pos := indexOfEntry(c.children, c.entry.ResolutionOrder[0])
		c.winner = pos
		return childError(c.m, c.children[pos])
	}

	for _, wantIdx := range c.entry.ResolutionOrder {
		pos := indexOfEntry(c.children, wantIdx)
		if err := childError(c.m, c.children[pos]); err != nil {
			c.winner = pos
			return err
		}
	}
	return nil
}

// commit fills in the resolution order this run observed and writes the
// entry, exactly once: a combinator's Await may be called more than once
// by user code (e.g. once directly and once via a nested Selector).
func (c *combinatorImpl) commit(order []uint32) {
	c.once.Do(func() {
		c.entry.ResolutionOrder = order
		if err := c.m.protocol.Write(c.entry); err != nil {
			panic(&writeError{entryIndex: c.idx, entry: c.entry, err: err})
		}
	})
}

// combinator builds the CombinatorEntry recording this fan-in and returns
// the deferred result. The entry itself is appended to the journal right
// away, claiming its index, but (when fresh) is not written to the wire
// until the race actually completes and a resolution order is known.
func (m *Machine) combinator(kind combinatorKind, futs ...durable.Selectable) durable.Combinator {
	childIndices := make([]uint32, len(futs))
	for i, f := range futs {
		childIndices[i] = f.EntryIndex()
	}
	wireKind := wire.CombinatorAll
	if kind == combinatorAny {
		wireKind = wire.CombinatorAny
	}

	m.entryMutex.Lock()
	if m.failure != nil {
		f := m.failure
		m.entryMutex.Unlock()
		panic(f)
	}

	if m.journal.Replaying() {
		msg, idx := m.journal.Replayed()
		m.entryMutex.Unlock()
		entry, ok := msg.(*wire.CombinatorEntryMessage)
		if !ok {
			var want *wire.CombinatorEntryMessage
			panic(newEntryMismatch(idx, want, msg))
		}
		if !combinatorMatches(entry, wireKind, childIndices) {
			panic(newEntryMismatch(idx, &wire.CombinatorEntryMessage{Combinator: wireKind, ChildIndices: childIndices}, entry))
		}
		return &combinatorImpl{m: m, children: futs, entry: entry, idx: idx, winner: -1}
	}

	entry := &wire.CombinatorEntryMessage{Combinator: wireKind, ChildIndices: childIndices}
	idx := m.journal.Append(entry)
	m.entryMutex.Unlock()

	return &combinatorImpl{m: m, children: futs, entry: entry, idx: idx, fresh: true, winner: -1}
}

func combinatorMatches(e *wire.CombinatorEntryMessage, kind wire.CombinatorType, childIndices []uint32) bool {
	if e.Combinator != kind || len(e.ChildIndices) != len(childIndices) {
		return false
	}
	for i, want := range childIndices {
		if e.ChildIndices[i] != want {
			return false
		}
	}
	return true
}

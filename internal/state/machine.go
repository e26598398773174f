// Package state implements the invocation engine: a single-threaded,
// cooperative state machine that drives one handler invocation against a
// journal of recorded effects, replaying everything the runtime already
// knows about before producing anything new (see Machine.invoke).
package state

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	durable "github.com/durablehq/sdk-go"
	ierrors "github.com/durablehq/sdk-go/internal/errors"
	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/rand"
	"github.com/durablehq/sdk-go/internal/wire"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// entryMismatch is the panic value raised by replayOrNew when the i-th
// operation issued by user code does not match the type or content of the
// entry replayed at that index: user code must be deterministic across
// replays.
type entryMismatch struct {
	entryIndex    uint32
	expectedEntry wire.Message
	actualEntry   wire.Message
}

func (e *entryMismatch) Error() string {
	return fmt.Sprintf("journal mismatch at index %d: user code produced %T, replayed entry was %T",
		e.entryIndex, e.expectedEntry, e.actualEntry)
}

func newEntryMismatch(idx uint32, expected, actual wire.Message) *entryMismatch {
	return &entryMismatch{entryIndex: idx, expectedEntry: expected, actualEntry: actual}
}

// writeError is raised when writing a freshly created entry to the
// protocol fails; the connection is almost certainly already dead.
type writeError struct {
	entryIndex uint32
	entry      wire.Message
	err        error
}

func (e *writeError) Error() string { return e.err.Error() }

// sideEffectFailure is raised when a side effect's retry policy gives up
// on a non-terminal error, or when user code violates the side-effect
// protocol by issuing a journalled operation from within one.
type sideEffectFailure struct {
	entryIndex uint32
	err        error
}

func (e *sideEffectFailure) Error() string { return e.err.Error() }

// suspensionPanic unwinds the handler goroutine when the connection to the
// runtime can no longer deliver completions. On a clean end of input
// (io.EOF) the invocation suspends, listing every entry index it was still
// waiting on; any other read error closes it with an ErrorMessage.
type suspensionPanic struct {
	entryIndexes []uint32
	err          error
}

func (e *suspensionPanic) Error() string { return fmt.Sprintf("suspended: %v", e.err) }

// Machine is the engine for a single invocation: it owns the journal, the
// pending-completion bookkeeping, and the panic-based suspension/error
// handling that lets user code write straight-line blocking calls while
// the actual protocol exchange happens underneath.
type Machine struct {
	parentCtx     context.Context
	suspensionCtx context.Context
	suspend       context.CancelCauseFunc

	handler  durable.Handler
	protocol *wire.Protocol

	id  []byte
	key string

	rand *rand.Rand

	partial bool
	current map[string][]byte
	stateMu sync.RWMutex

	journal    *Journal
	entryMutex sync.Mutex

	runningSideEffect bool

	pendingFutures map[uint32]*futures.ResponseFuture
	pendingAcks    map[uint32]chan struct{}
	pendingMutex   sync.Mutex

	log zerolog.Logger

	failure any
}

// NewMachine builds a Machine that serves handler over conn, a duplex
// byte stream an adapter owns (see SPEC_FULL's External Interfaces note:
// this package never opens a connection itself).
func NewMachine(handler durable.Handler, conn io.ReadWriter) *Machine {
	m := &Machine{
		handler:        handler,
		current:        make(map[string][]byte),
		pendingFutures: make(map[uint32]*futures.ResponseFuture),
		pendingAcks:    make(map[uint32]chan struct{}),
		log:            log.Logger,
	}
	m.protocol = wire.NewProtocol(conn)
	return m
}

// Start reads the StartMessage and Input entry that open an invocation and
// drives it to completion (or suspension). It returns once the invocation
// has produced its terminal message(s); the underlying connection may
// still be read from in the background until it is actually closed.
func (m *Machine) Start(parent context.Context, methodTrace string) error {
	msg, err := m.protocol.Read()
	if err != nil {
		return err
	}
	start, ok := msg.(*wire.StartMessage)
	if !ok {
		return wire.ErrUnexpectedMessage
	}

	m.parentCtx = parent
	m.suspensionCtx, m.suspend = context.WithCancelCause(parent)
	m.id = start.Id
	m.key = start.Key
	m.partial = start.PartialState
	m.rand = rand.New(start.Id)
	m.log = m.log.With().Str("invocationId", start.DebugId).Str("method", methodTrace).Logger()

	for _, e := range start.StateMap {
		m.current[e.Key] = e.Value
	}

	input, err := m.protocol.Read()
	if err != nil {
		return err
	}
	inputMsg, ok := input.(*wire.InputEntryMessage)
	if !ok {
		return wire.ErrUnexpectedMessage
	}

	replayed := make([]wire.Message, 0, start.KnownEntries)
	outputSeen := false
	for i := uint32(1); i < start.KnownEntries; i++ {
		entry, err := m.protocol.Read()
		if err != nil {
			return fmt.Errorf("state: failed to read replayed entry %d: %w", i, err)
		}
		m.log.Trace().Type("type", entry).Msg("replaying entry")
		replayed = append(replayed, entry)
		if _, ok := entry.(*wire.OutputEntryMessage); ok {
			outputSeen = true
		}
	}
	m.journal = NewJournal(replayed)

	var g errgroup.Group
	g.Go(m.handleCompletionsAcks)

	ctx := newContext(parent, m)
	m.log.Debug().Msg("invocation started")
	defer m.log.Debug().Msg("invocation ended")
	return m.invoke(ctx, inputMsg.Value, outputSeen)
}

// invoke runs the handler (unless the journal already recorded an output,
// in which case it only sends the trailing End message) and recovers from
// the panics every blocking helper in this package uses to unwind onto a
// single terminal report.
func (m *Machine) invoke(ctx *Context, input []byte, outputSeen bool) (err error) {
	defer func() {
		recovered := recover()
		switch typ := recovered.(type) {
		case nil:
			return
		case *entryMismatch:
			m.log.Error().
				Uint32("entryIndex", typ.entryIndex).
				Type("expected", typ.expectedEntry).
				Type("actual", typ.actualEntry).
				Msg("journal mismatch: user code must be deterministic across replays")

			idx := typ.entryIndex
			err = m.protocol.Write(&wire.ErrorMessage{
				Code:              uint32(ierrors.CodeJournalMismatch),
				Message:           typ.Error(),
				Description:       string(debug.Stack()),
				RelatedEntryIndex: &idx,
				RelatedEntryType:  typ.actualEntry.Type().UInt32(),
			})
		case *writeError:
			m.log.Error().Err(typ.err).Msg("failed writing entry, closing invocation")
			idx := typ.entryIndex
			_ = m.protocol.Write(&wire.ErrorMessage{
				Code:              uint32(ierrors.CodeProtocolViolation),
				Message:           typ.err.Error(),
				Description:       string(debug.Stack()),
				RelatedEntryIndex: &idx,
				RelatedEntryType:  typ.entry.Type().UInt32(),
			})
		case *sideEffectFailure:
			m.log.Error().Err(typ.err).Msg("side effect failed, closing invocation")
			_ = m.protocol.Write(&wire.ErrorMessage{
				Code:        uint32(durable.ErrorCode(typ.err)),
				Message:     typ.err.Error(),
				Description: string(debug.Stack()),
			})
		case *suspensionPanic:
			if m.parentCtx.Err() != nil {
				return
			}
			if stderrors.Is(typ.err, io.EOF) || typ.err == nil {
				m.log.Info().Uints32("entryIndexes", typ.entryIndexes).Msg("suspending")
				err = m.protocol.Write(&wire.SuspensionMessage{EntryIndexes: typ.entryIndexes})
			} else {
				m.log.Error().Err(typ.err).Msg("connection lost while awaiting completions")
				_ = m.protocol.Write(&wire.ErrorMessage{
					Code:    uint32(ierrors.CodeProtocolViolation),
					Message: fmt.Sprintf("lost connection while awaiting completions: %v", typ.err),
				})
			}
		default:
			m.log.Error().Interface("panic", typ).Msg("unexpected panic in handler")
			_ = m.protocol.Write(&wire.ErrorMessage{
				Code:        uint32(ierrors.CodeUnknown),
				Message:     fmt.Sprint(typ),
				Description: string(debug.Stack()),
			})
		}
	}()

	if outputSeen {
		return m.protocol.Write(&wire.EndMessage{})
	}

	output, err := m.handler.Call(ctx, input)
	if err != nil {
		m.log.Error().Err(err).Msg("handler returned an error")
	}

	switch {
	case err != nil && durable.IsTerminalError(err):
		if werr := m.protocol.Write(&wire.OutputEntryMessage{
			Failure: &wire.Failure{Code: uint32(durable.ErrorCode(err)), Message: err.Error()},
		}); werr != nil {
			return werr
		}
		return m.protocol.Write(&wire.EndMessage{})
	case err != nil:
		return m.protocol.Write(&wire.ErrorMessage{
			Code:    uint32(durable.ErrorCode(err)),
			Message: err.Error(),
		})
	default:
		if werr := m.protocol.Write(&wire.OutputEntryMessage{Value: output}); werr != nil {
			return werr
		}
		return m.protocol.Write(&wire.EndMessage{})
	}
}

// handleCompletionsAcks drains Completion and EntryAck messages off the
// wire for the lifetime of the connection, waking up whichever blocking
// helper is waiting on each entry index. It runs in its own goroutine
// (launched from Start) for the whole lifetime of the invocation,
// including after invoke has already returned: the runtime is free to
// keep the connection open briefly after End/Suspension before closing it.
func (m *Machine) handleCompletionsAcks() error {
	for {
		msg, err := m.protocol.Read()
		if err != nil {
			m.suspend(err)
			return err
		}
		switch msg := msg.(type) {
		case *wire.CompletionMessage:
			m.handleCompletion(msg)
		case *wire.EntryAckMessage:
			m.handleAck(msg)
		default:
			m.log.Warn().Type("type", msg).Msg("unexpected message while awaiting completions/acks")
		}
	}
}

func (m *Machine) handleCompletion(c *wire.CompletionMessage) {
	if err := m.journal.Complete(c.EntryIndex, c.Result); err != nil {
		m.log.Error().Err(err).Uint32("entryIndex", c.EntryIndex).Msg("dropping completion")
		return
	}
	m.pendingMutex.Lock()
	fut := m.pendingFutures[c.EntryIndex]
	delete(m.pendingFutures, c.EntryIndex)
	m.pendingMutex.Unlock()
	if fut != nil {
		fut.Resolve(c.Result)
	}
}

func (m *Machine) handleAck(a *wire.EntryAckMessage) {
	m.pendingMutex.Lock()
	ch := m.pendingAcks[a.EntryIndex]
	delete(m.pendingAcks, a.EntryIndex)
	m.pendingMutex.Unlock()
	if ch != nil {
		close(ch)
	}
}

// futureFor returns the ResponseFuture tracking idx, registering a new
// pending one if current is not yet set, or a pre-resolved one otherwise.
// Concurrent callers (e.g. several children of an All/Any) observe the
// same future for the same index.
func (m *Machine) futureFor(idx uint32, current wire.EntryResult) *futures.ResponseFuture {
	if current.IsSet() {
		return futures.NewResolvedResponseFuture(idx, current)
	}
	m.pendingMutex.Lock()
	defer m.pendingMutex.Unlock()
	if f, ok := m.pendingFutures[idx]; ok {
		return f
	}
	f := futures.NewResponseFuture(nil, idx)
	m.pendingFutures[idx] = f
	return f
}

// awaitEntry blocks the calling goroutine until idx resolves or the
// invocation must suspend.
func (m *Machine) awaitEntry(idx uint32, current wire.EntryResult) wire.EntryResult {
	fut := m.futureFor(idx, current)
	result, ok := fut.Await(m.suspensionCtx)
	if !ok {
		panic(&suspensionPanic{entryIndexes: []uint32{idx}, err: context.Cause(m.suspensionCtx)})
	}
	return result
}

// replayOrNew is the generic backbone every journalled operation builds
// on: on replay it type-checks (and hands off to extract for a
// content-level check) the entry already in the journal; otherwise it
// creates, appends, and writes a new one. create must not have side
// effects beyond building the message: replayOrNew decides whether it
// is ever invoked.
func replayOrNew[M wire.Message, O any](
	m *Machine,
	create func() M,
	extract func(entry M, entryIndex uint32) O,
) (O, uint32) {
	m.entryMutex.Lock()

	if m.failure != nil {
		f := m.failure
		m.entryMutex.Unlock()
		panic(f)
	}
	if m.runningSideEffect {
		m.entryMutex.Unlock()
		panic(&sideEffectFailure{err: fmt.Errorf("%w: side effects must not issue other journalled operations", ierrors.ErrProtocolViolation)})
	}

	if m.journal.Replaying() {
		msg, idx := m.journal.Replayed()
		m.entryMutex.Unlock()
		typed, ok := msg.(M)
		if !ok {
			var want M
			panic(newEntryMismatch(idx, want, msg))
		}
		return extract(typed, idx), idx
	}

	entry := create()
	idx := m.journal.Append(entry)
	m.entryMutex.Unlock()

	if err := m.protocol.Write(entry); err != nil {
		panic(&writeError{entryIndex: idx, entry: entry, err: err})
	}
	return extract(entry, idx), idx
}

// Package futures implements the deferred-result graph: awaitable handles
// over journal entries, and the any/all combinator primitives used to
// compose them. It knows nothing about the wire protocol or the journal;
// internal/state drives it and is responsible for producing the
// Combinator journal entry that makes resolution order replay-deterministic.
package futures

import (
	"context"
	"sync"

	"github.com/durablehq/sdk-go/internal/wire"
)

// Selectable is anything that can be waited upon: a single deferred result
// or a composed combinator.
type Selectable interface {
	// Index identifies the journal entry this handle corresponds to.
	Index() uint32
	// Done is closed once the underlying entry has a result.
	Done() <-chan struct{}
}

// ResponseFuture is a deferred result backed by a single journal entry
// (GetState, Sleep, Invoke, Awakeable, SideEffect).
type ResponseFuture struct {
	entryIndex uint32
	resolved   chan struct{}
	once       sync.Once
	result     wire.EntryResult
}

// NewResponseFuture constructs a not-yet-resolved future for the given
// entry index. entry is currently unused by the future itself (resolution
// is driven externally via Resolve) but kept so callers retain a typed
// handle to the entry they created.
func NewResponseFuture(entry wire.CompleteableMessage, entryIndex uint32) *ResponseFuture {
	return &ResponseFuture{entryIndex: entryIndex, resolved: make(chan struct{})}
}

// NewResolvedResponseFuture builds a future that is already resolved, used
// when the runtime supplied the result inline (FlagDone) or on replay.
func NewResolvedResponseFuture(entryIndex uint32, result wire.EntryResult) *ResponseFuture {
	f := &ResponseFuture{entryIndex: entryIndex, resolved: make(chan struct{}), result: result}
	close(f.resolved)
	return f
}

// NewFailedResponseFuture builds a future that is immediately resolved
// with a terminal failure, used when request construction fails before
// any journal entry is produced (e.g. a serializer error).
func NewFailedResponseFuture(code uint32, message string) *ResponseFuture {
	return NewResolvedResponseFuture(0, wire.EntryResult{Failure: &wire.Failure{Code: code, Message: message}})
}

func (f *ResponseFuture) Index() uint32             { return f.entryIndex }
func (f *ResponseFuture) Done() <-chan struct{}     { return f.resolved }
func (f *ResponseFuture) Result() wire.EntryResult  { return f.result }
func (f *ResponseFuture) IsResolved() bool {
	select {
	case <-f.resolved:
		return true
	default:
		return false
	}
}

// Resolve marks the future resolved with result. Only the first call takes
// effect, matching the journal's complete-once semantics.
func (f *ResponseFuture) Resolve(result wire.EntryResult) {
	f.once.Do(func() {
		f.result = result
		close(f.resolved)
	})
}

// Await blocks until the future resolves or ctx is done, whichever first.
// ok is false when ctx fired first (the engine is suspending or closing).
func (f *ResponseFuture) Await(ctx context.Context) (wire.EntryResult, bool) {
	select {
	case <-f.resolved:
		return f.result, true
	case <-ctx.Done():
		return wire.EntryResult{}, false
	}
}

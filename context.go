// Package durable is the root of a client SDK for a durable-execution
// platform: user code defines handlers against the Context interfaces
// below; the runtime invokes them to drive a workflow, replaying each
// handler execution deterministically over a journal of previously
// recorded effects. The invocation engine that makes this work lives in
// internal/state and is driven by an adapter (not included here) that
// owns the transport to the runtime.
package durable

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context is the bridge exposed to user handler code (see the package doc
// for the replay model this sits on top of). Every method that may block
// the logical thread of the invocation returns a deferred result (a
// Selectable) rather than the value directly, except for the handful
// documented as convenience wrappers that await immediately.
type Context interface {
	context.Context

	// Get reads a state key, returning (nil, ErrKeyNotFound) on a miss.
	Get(key string) ([]byte, error)
	// Set durably persists a state key.
	Set(key string, value []byte) error
	// Clear removes a single state key.
	Clear(key string) error
	// ClearAll removes every currently known state key.
	ClearAll() error
	// Keys lists the currently known state keys.
	Keys() ([]string, error)

	// Sleep durably parks the invocation until d elapses, awaiting
	// immediately.
	Sleep(d time.Duration) error
	// After is the non-blocking counterpart of Sleep, composable with
	// Selector/All/Any.
	After(d time.Duration) After

	// Service addresses a stateless service by name for a blocking call.
	Service(service string) ServiceClient
	// ServiceSend addresses a stateless service by name for a
	// fire-and-forget call, optionally delayed.
	ServiceSend(service string, delay time.Duration) ServiceSendClient
	// Object addresses a single keyed virtual object for a blocking call.
	Object(service, key string) ServiceClient
	// ObjectSend is the fire-and-forget counterpart of Object.
	ObjectSend(service, key string, delay time.Duration) ServiceSendClient

	// SideEffect records the result of a non-deterministic action exactly
	// once. fn MUST NOT issue other Context operations; doing so is a
	// fatal protocol violation.
	SideEffect(fn func() ([]byte, error), opts ...SideEffectOption) ([]byte, error)

	// Awakeable creates an externally-resolvable deferred result.
	Awakeable() Awakeable[[]byte]
	// AwakeableHandle addresses a (possibly peer-owned) awakeable by id
	// for resolution or rejection.
	AwakeableHandle(id string) AwakeableHandle

	// Selector builds a low-level fan-in over arbitrary Selectables,
	// consumed one at a time in resolution order.
	Selector(futs ...Selectable) (Selector, error)
	// All resolves once every child has resolved, failing on the first
	// child failure.
	All(futs ...Selectable) Combinator
	// Any resolves to the first child that resolves.
	Any(futs ...Selectable) Combinator

	// Rand returns a deterministic, replay-stable random source.
	Rand() Rand
	// Log returns a request-scoped structured logger.
	Log() zerolog.Logger
}

// ObjectContext is Context specialised for a virtual object's exclusive
// handlers, additionally exposing the object's key.
type ObjectContext interface {
	Context
	Key() string
}

// ObjectSharedContext is exposed to an object's shared handlers, which may
// run concurrently with the exclusive handler: state is readable only.
type ObjectSharedContext interface {
	context.Context
	Key() string
	Get(key string) ([]byte, error)
	Keys() ([]string, error)
	Rand() Rand
	Log() zerolog.Logger
}

// RunContext is handed to a SideEffect closure. It deliberately exposes no
// journalled operation: side effects must not recurse into the engine.
type RunContext interface {
	context.Context
	Log() zerolog.Logger
}

// Selectable is anything that can be waited upon by a Selector or composed
// with All/Any: a single deferred result or a combinator over several.
// Implementations are produced by Context methods (After, a call's
// Request, Awakeable, All/Any itself); EntryIndex identifies the journal
// entry (or, for a combinator, the CombinatorEntry) backing it.
type Selectable interface {
	EntryIndex() uint32
}

// Selector consumes a fixed set of Selectables one at a time, in the order
// they actually resolve.
type Selector interface {
	// Select blocks until one pending Selectable resolves and returns it.
	// ok is false once every Selectable has already been returned.
	Select() (Selectable, bool)
}

// Combinator is the deferred result of All/Any.
type Combinator interface {
	Selectable
	// Await blocks until the combinator resolves, returning the first
	// failure observed (All) or the winning child's failure (Any).
	Await() error
	// WinnerIndex is the index (into the slice passed to Any) of the
	// child that resolved first. For All it is the index of the child
	// whose failure Await returned, and -1 when no child failed. It is -1
	// before resolution.
	WinnerIndex() int
}

// After is the deferred result of Context.After.
type After interface {
	Selectable
	Done() error
}

// ServiceClient addresses a service or object for a blocking call.
type ServiceClient interface {
	Method(name string) CallClient
}

// ServiceSendClient addresses a service or object for a one-way call.
type ServiceSendClient interface {
	Method(name string) SendClient
}

// CallClient issues a blocking request once a method has been selected.
type CallClient interface {
	Request(input any) ResponseFuture
}

// SendClient issues a one-way request once a method has been selected.
type SendClient interface {
	Request(input any) error
}

// ResponseFuture is the deferred result of a blocking call.
type ResponseFuture interface {
	Selectable
	Response() ([]byte, error)
}

// Awakeable is a deferred result resolvable by an external party via Id.
// It embeds Selectable so a pending awakeable composes with Selector/All/
// Any exactly like a call's ResponseFuture or a sleep's After.
type Awakeable[T any] interface {
	Selectable
	Id() string
	Result() (T, error)
}

// AwakeableHandle resolves or rejects a (possibly peer-owned) awakeable by id.
type AwakeableHandle interface {
	Resolve(value []byte) error
	Reject(reason error) error
}

// Rand is a deterministic, replay-stable random source.
type Rand interface {
	Uint64() uint64
	Float64() float64
	UUID() uuid.UUID
}

// sideEffectConfig carries the per-call knobs a SideEffectOption may set.
type sideEffectConfig struct {
	backoff backoff.BackOff
}

// SideEffectOption customises a single Context.SideEffect call.
type SideEffectOption func(*sideEffectConfig)

// WithBackoff overrides the retry policy applied while fn has not yet
// recorded a result, replacing DefaultBackoffPolicy for this call only.
// Once a result is durably recorded, replays never re-invoke fn or this
// policy regardless of what it returns.
func WithBackoff(b backoff.BackOff) SideEffectOption {
	return func(c *sideEffectConfig) { c.backoff = b }
}

// ResolveSideEffectOptions applies opts over DefaultBackoffPolicy. It is
// exported for internal/state, which owns the retry loop itself.
func ResolveSideEffectOptions(opts []SideEffectOption) backoff.BackOff {
	cfg := sideEffectConfig{backoff: DefaultBackoffPolicy()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.backoff
}

// DefaultBackoffPolicy returns a fresh exponential backoff with no maximum
// elapsed time, matching the "keep retrying until the invocation itself is
// cancelled or suspended" semantics side effects rely on.
func DefaultBackoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

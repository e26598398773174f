package futures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durablehq/sdk-go/internal/wire"
)

func TestResponseFutureResolveThenAwait(t *testing.T) {
	f := NewResponseFuture(nil, 3)
	assert.False(t, f.IsResolved())

	f.Resolve(wire.EntryResult{Value: []byte("v")})
	assert.True(t, f.IsResolved())

	result, ok := f.Await(context.Background())
	require.True(t, ok)
	assert.Equal(t, []byte("v"), result.Value)
}

func TestResponseFutureResolveIsOnceOnly(t *testing.T) {
	f := NewResponseFuture(nil, 1)
	f.Resolve(wire.EntryResult{Value: []byte("first")})
	f.Resolve(wire.EntryResult{Value: []byte("second")})
	assert.Equal(t, []byte("first"), f.Result().Value)
}

func TestResponseFutureAwaitCancelled(t *testing.T) {
	f := NewResponseFuture(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := f.Await(ctx)
	assert.False(t, ok)
}

func TestNewResolvedResponseFuture(t *testing.T) {
	f := NewResolvedResponseFuture(5, wire.EntryResult{Empty: true})
	assert.True(t, f.IsResolved())
	assert.Equal(t, uint32(5), f.Index())
}

func TestNewFailedResponseFuture(t *testing.T) {
	f := NewFailedResponseFuture(13, "bad input")
	assert.True(t, f.IsResolved())
	require.NotNil(t, f.Result().Failure)
	assert.Equal(t, uint32(13), f.Result().Failure.Code)
}

func TestWaitAnyPrefersAlreadyResolvedInIndexOrder(t *testing.T) {
	a := NewResolvedResponseFuture(0, wire.EntryResult{Value: []byte("a")})
	b := NewResolvedResponseFuture(1, wire.EntryResult{Value: []byte("b")})

	winner, ok := WaitAny(context.Background(), []Selectable{a, b})
	require.True(t, ok)
	assert.Equal(t, 0, winner)
}

func TestWaitAnyWakesOnLateResolve(t *testing.T) {
	a := NewResponseFuture(nil, 0)
	b := NewResponseFuture(nil, 1)

	go func() {
		time.Sleep(5 * time.Millisecond)
		b.Resolve(wire.EntryResult{Value: []byte("b")})
	}()

	winner, ok := WaitAny(context.Background(), []Selectable{a, b})
	require.True(t, ok)
	assert.Equal(t, 1, winner)
}

func TestWaitAnyContextCancelled(t *testing.T) {
	a := NewResponseFuture(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := WaitAny(ctx, []Selectable{a})
	assert.False(t, ok)
}

func TestWaitAllReturnsResolutionOrder(t *testing.T) {
	a := NewResponseFuture(nil, 0)
	b := NewResponseFuture(nil, 1)

	go func() {
		b.Resolve(wire.EntryResult{Value: []byte("b")})
		time.Sleep(5 * time.Millisecond)
		a.Resolve(wire.EntryResult{Value: []byte("a")})
	}()

	order, ok := WaitAll(context.Background(), []Selectable{a, b})
	require.True(t, ok)
	assert.Equal(t, []int{1, 0}, order)
}

func TestWaitAllContextCancelledPartway(t *testing.T) {
	a := NewResolvedResponseFuture(0, wire.EntryResult{Value: []byte("a")})
	b := NewResponseFuture(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order, ok := WaitAll(ctx, []Selectable{a, b})
	assert.False(t, ok)
	assert.Equal(t, []int{0}, order)
}

func TestSelectorDrainsInResolutionOrder(t *testing.T) {
	a := NewResponseFuture(nil, 0)
	b := NewResponseFuture(nil, 1)
	b.Resolve(wire.EntryResult{Value: []byte("b")})

	s := NewSelector(context.Background(), a, b)
	assert.Equal(t, 2, s.Remaining())

	won, ok := s.Select()
	require.True(t, ok)
	assert.Equal(t, uint32(1), won.Index())
	assert.Equal(t, 1, s.Remaining())

	a.Resolve(wire.EntryResult{Value: []byte("a")})
	won, ok = s.Select()
	require.True(t, ok)
	assert.Equal(t, uint32(0), won.Index())
	assert.Equal(t, 0, s.Remaining())

	_, ok = s.Select()
	assert.False(t, ok)
}

package state

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/rand"
	"github.com/durablehq/sdk-go/internal/wire"
)

// newBareMachine builds a Machine without going through Start, for tests
// that exercise a single operation directly against a known journal.
func newBareMachine(conn *testConn, replayed []wire.Message) *Machine {
	m := &Machine{
		id:             []byte("invocation-1"),
		rand:           rand.New([]byte("invocation-1")),
		current:        make(map[string][]byte),
		journal:        NewJournal(replayed),
		pendingFutures: make(map[uint32]*futures.ResponseFuture),
		pendingAcks:    make(map[uint32]chan struct{}),
		log:            zerolog.Nop(),
	}
	m.protocol = wire.NewProtocol(conn)
	m.parentCtx = context.Background()
	m.suspensionCtx, m.suspend = context.WithCancelCause(m.parentCtx)
	return m
}

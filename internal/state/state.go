package state

import (
	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/wire"
)

// get resolves a state key against the eager cache first (consulted
// before ever touching the journal, per the replay model's "don't re-fetch
// what we already know" rule), falling back to a GetState entry only when
// state was only partially known at Start.
func (m *Machine) get(key string) ([]byte, error) {
	m.stateMu.RLock()
	if v, ok := m.current[key]; ok {
		m.stateMu.RUnlock()
		if v == nil {
			return nil, durable.ErrKeyNotFound
		}
		return v, nil
	}
	partial := m.partial
	m.stateMu.RUnlock()

	if !partial {
		return nil, durable.ErrKeyNotFound
	}

	entry, idx := replayOrNew(m,
		func() *wire.GetStateEntryMessage { return &wire.GetStateEntryMessage{Key: key} },
		func(e *wire.GetStateEntryMessage, i uint32) *wire.GetStateEntryMessage {
			if e.Key != key {
				panic(newEntryMismatch(i, &wire.GetStateEntryMessage{Key: key}, e))
			}
			return e
		},
	)

	result := m.awaitEntry(idx, entry.CurrentResult())

	m.stateMu.Lock()
	if result.Failure == nil && !result.Empty {
		m.current[key] = result.Value
	} else if result.Empty {
		m.current[key] = nil
	}
	m.stateMu.Unlock()

	switch {
	case result.Failure != nil:
		return nil, durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	case result.Empty:
		return nil, durable.ErrKeyNotFound
	default:
		return result.Value, nil
	}
}

func (m *Machine) set(key string, value []byte) error {
	_, _ = replayOrNew(m,
		func() *wire.SetStateEntryMessage { return &wire.SetStateEntryMessage{Key: key, Value: value} },
		func(e *wire.SetStateEntryMessage, i uint32) durable.Void {
			if e.Key != key {
				panic(newEntryMismatch(i, &wire.SetStateEntryMessage{Key: key}, e))
			}
			return durable.Void{}
		},
	)
	m.stateMu.Lock()
	m.current[key] = value
	m.stateMu.Unlock()
	return nil
}

func (m *Machine) clearKey(key string) error {
	_, _ = replayOrNew(m,
		func() *wire.ClearStateEntryMessage { return &wire.ClearStateEntryMessage{Key: key} },
		func(e *wire.ClearStateEntryMessage, i uint32) durable.Void {
			if e.Key != key {
				panic(newEntryMismatch(i, &wire.ClearStateEntryMessage{Key: key}, e))
			}
			return durable.Void{}
		},
	)
	m.stateMu.Lock()
	m.current[key] = nil
	m.stateMu.Unlock()
	return nil
}

func (m *Machine) clearAll() error {
	_, _ = replayOrNew(m,
		func() *wire.ClearAllStateEntryMessage { return &wire.ClearAllStateEntryMessage{} },
		func(e *wire.ClearAllStateEntryMessage, i uint32) durable.Void { return durable.Void{} },
	)
	m.stateMu.Lock()
	m.current = make(map[string][]byte)
	m.partial = false
	m.stateMu.Unlock()
	return nil
}

// keys lists the currently known keys. It relies entirely on the eager
// cache: a partial state view has no journal entry to enumerate the full
// key set, so Keys only ever reflects what has been read or written so
// far during this invocation plus whatever the runtime sent eagerly.
func (m *Machine) keys() ([]string, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]string, 0, len(m.current))
	for k, v := range m.current {
		if v != nil {
			out = append(out, k)
		}
	}
	return out, nil
}

package state

import (
	"fmt"
	"sync"

	"github.com/durablehq/sdk-go/internal/wire"
)

// EntryMismatch describes the fatal replay violation where the i-th user
// operation does not structurally match the entry the runtime replayed at
// that index (spec §3, §7). The Machine itself raises the unexported
// entryMismatch (machine.go) for this case.
type EntryMismatch struct {
	Index    uint32
	Expected wire.Message
	Actual   wire.Message
}

func (e *EntryMismatch) Error() string {
	return fmt.Sprintf(
		"journal mismatch at index %d: user code produced %T but the replayed entry was %T",
		e.Index, e.Expected, e.Actual,
	)
}

// Journal is the ordered log of entries for the current invocation (spec
// §3, §4.2). Indices are dense and start at 0 (the Input entry, which the
// Machine consumes directly and never stores here -- user operations are
// numbered starting at 1).
type Journal struct {
	mu      sync.Mutex
	known   uint32
	entries []wire.Message
	cursor  uint32
}

// NewJournal seeds the journal with the entries replayed from the
// StartMessage (not including Input), numbered starting at 1.
func NewJournal(replayed []wire.Message) *Journal {
	entries := make([]wire.Message, len(replayed))
	copy(entries, replayed)
	return &Journal{
		known:   uint32(len(replayed)) + 1,
		entries: entries,
		cursor:  1,
	}
}

// Size returns the number of entries the journal currently knows about,
// including Input.
func (j *Journal) Size() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return uint32(len(j.entries)) + 1
}

// Replaying reports whether the next operation falls within the entries
// known from the StartMessage (spec §4.2).
func (j *Journal) Replaying() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cursor < j.known
}

// NextIndex previews the index the next operation will be assigned.
func (j *Journal) NextIndex() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cursor
}

// Replayed returns the entry at the current cursor and advances it. It
// must only be called while Replaying() is true.
func (j *Journal) Replayed() (wire.Message, uint32) {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx := j.cursor
	msg := j.entries[idx-1]
	j.cursor++
	return msg, idx
}

// Append stores a freshly created entry at the cursor and advances it. It
// must only be called while Replaying() is false: appending during replay
// is a usage error the caller (replayOrNew) never triggers by construction.
func (j *Journal) Append(msg wire.Message) uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx := j.cursor
	j.entries = append(j.entries, msg)
	j.cursor++
	return idx
}

// Get performs random access by index (1-based; index 0 is Input and is
// not retrievable here) for completion delivery.
func (j *Journal) Get(index uint32) (wire.Message, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index == 0 || int(index-1) >= len(j.entries) {
		return nil, false
	}
	return j.entries[index-1], true
}

// Complete sets the result on the entry at index. Byte-equal duplicate
// completions are tolerated as idempotent; non-equal duplicates are
// rejected with wire.ErrDuplicateCompletion and the first result is kept.
func (j *Journal) Complete(index uint32, result wire.EntryResult) error {
	j.mu.Lock()
	msg, ok := func() (wire.Message, bool) {
		if index == 0 || int(index-1) >= len(j.entries) {
			return nil, false
		}
		return j.entries[index-1], true
	}()
	j.mu.Unlock()

	if !ok {
		return fmt.Errorf("journal: completion for unknown entry index %d", index)
	}
	cm, ok := msg.(wire.CompleteableMessage)
	if !ok {
		return fmt.Errorf("journal: entry at index %d (%T) does not accept completions", index, msg)
	}
	return cm.Complete(result)
}

package wire

import (
	"fmt"
	"io"
	"sync"
)

// Protocol frames Messages over an io.ReadWriter. It is purely syntactic:
// it knows how to turn a Message into bytes and back, and nothing about
// journal semantics.
type Protocol struct {
	rw       io.ReadWriter
	writeMux sync.Mutex
}

// NewProtocol wraps the given duplex stream. Adapters are responsible for
// supplying something that behaves like an HTTP/2 data stream (chunked
// request/response bodies, a socket, an in-memory pipe for tests).
func NewProtocol(rw io.ReadWriter) *Protocol {
	return &Protocol{rw: rw}
}

// Read blocks for the next frame and decodes it.
func (p *Protocol) Read() (Message, error) {
	h, body, err := ReadFrame(p.rw)
	if err != nil {
		return nil, err
	}
	msg, err := Decode(h, body)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Write encodes and sends msg, computing the DONE/REQUIRES_ACK flags from
// its shape. Concurrent writers are serialised.
func (p *Protocol) Write(msg Message) error {
	body, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("wire: marshal %s: %w", msg.Type(), err)
	}

	h := Header{Type: msg.Type(), Length: uint32(len(body))}
	if resultIsDone(msg) {
		h.Flags |= FlagDone
	}
	if _, ok := msg.(AckableMessage); ok {
		h.Flags |= FlagRequiresAck
	}

	p.writeMux.Lock()
	defer p.writeMux.Unlock()
	return WriteFrame(p.rw, h, body)
}

// resultIsDone reports whether an entry message already carries its result
// inline, letting the runtime skip a later Completion.
func resultIsDone(msg Message) bool {
	switch m := msg.(type) {
	case *GetStateEntryMessage:
		return m.Result.IsSet()
	case *SleepEntryMessage:
		return m.Result.IsSet()
	case *CallEntryMessage:
		return m.Result.IsSet()
	case *AwakeableEntryMessage:
		return m.Result.IsSet()
	case *RunEntryMessage:
		return m.Result.IsSet()
	default:
		return false
	}
}

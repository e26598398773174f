// Package wire implements the framing and message set exchanged between the
// engine and the runtime: a fixed 8-byte header followed by a protobuf-wire
// encoded body.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType identifies the 16-bit type code carried in bits 63..48 of the
// frame header.
type MessageType uint16

const (
	StartMessageType      MessageType = 0x0000
	CompletionMessageType MessageType = 0x0001
	SuspensionMessageType MessageType = 0x0002
	ErrorMessageType      MessageType = 0x0003
	EndMessageType        MessageType = 0x0004
	EntryAckMessageType   MessageType = 0x0005

	InputEntryMessageType             MessageType = 0x0400
	OutputEntryMessageType            MessageType = 0x0401
	GetStateEntryMessageType          MessageType = 0x0402
	SetStateEntryMessageType          MessageType = 0x0403
	ClearStateEntryMessageType        MessageType = 0x0404
	ClearAllStateEntryMessageType     MessageType = 0x0405
	SleepEntryMessageType             MessageType = 0x0406
	CallEntryMessageType              MessageType = 0x0407
	OneWayCallEntryMessageType        MessageType = 0x0408
	AwakeableEntryMessageType         MessageType = 0x0409
	CompleteAwakeableEntryMessageType MessageType = 0x040A
	RunEntryMessageType               MessageType = 0x040B
	CombinatorEntryMessageType        MessageType = 0x040C
)

func (t MessageType) UInt32() uint32 { return uint32(t) }

// IsEntry reports whether the message type corresponds to a journal entry
// (as opposed to a control message such as Start/Completion/Suspension).
func (t MessageType) IsEntry() bool { return t >= 0x0400 }

func (t MessageType) String() string {
	switch t {
	case StartMessageType:
		return "Start"
	case CompletionMessageType:
		return "Completion"
	case SuspensionMessageType:
		return "Suspension"
	case ErrorMessageType:
		return "Error"
	case EndMessageType:
		return "End"
	case EntryAckMessageType:
		return "EntryAck"
	case InputEntryMessageType:
		return "InputEntry"
	case OutputEntryMessageType:
		return "OutputEntry"
	case GetStateEntryMessageType:
		return "GetStateEntry"
	case SetStateEntryMessageType:
		return "SetStateEntry"
	case ClearStateEntryMessageType:
		return "ClearStateEntry"
	case ClearAllStateEntryMessageType:
		return "ClearAllStateEntry"
	case SleepEntryMessageType:
		return "SleepEntry"
	case CallEntryMessageType:
		return "CallEntry"
	case OneWayCallEntryMessageType:
		return "OneWayCallEntry"
	case AwakeableEntryMessageType:
		return "AwakeableEntry"
	case CompleteAwakeableEntryMessageType:
		return "CompleteAwakeableEntry"
	case RunEntryMessageType:
		return "RunEntry"
	case CombinatorEntryMessageType:
		return "CombinatorEntry"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// Flags occupy bits 47..32 of the header.
type Flags uint16

const (
	// FlagDone marks an entry message as already carrying its result
	// (the runtime filled it in inline rather than via a later Completion).
	FlagDone Flags = 1 << 0
	// FlagRequiresAck marks a RunEntry (side effect) as requiring an
	// EntryAckMessage before the engine may return control to user code.
	FlagRequiresAck Flags = 1 << 1
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Header is the 64-bit big-endian frame header: type(16) | flags(16) | length(32).
type Header struct {
	Type   MessageType
	Flags  Flags
	Length uint32
}

// Encode returns the 8-byte wire representation of the header.
func (h Header) Encode() [8]byte {
	word := uint64(h.Type)<<48 | uint64(h.Flags)<<32 | uint64(h.Length)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], word)
	return buf
}

// DecodeHeader parses the 8-byte wire representation of a header.
func DecodeHeader(buf [8]byte) Header {
	word := binary.BigEndian.Uint64(buf[:])
	return Header{
		Type:   MessageType(word >> 48),
		Flags:  Flags(word >> 32),
		Length: uint32(word),
	}
}

// ErrUnexpectedMessage is returned when a message of a different type than
// expected is read off the wire (e.g. anything but StartMessage first).
var ErrUnexpectedMessage = fmt.Errorf("wire: unexpected message type")

// ErrUnknownMessageType is a fatal protocol error: the header named a type
// code this codec does not recognise.
type ErrUnknownMessageType struct{ Type MessageType }

func (e *ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("wire: unknown message type 0x%04x", uint16(e.Type))
}

// Message is implemented by every protocol message, inbound or outbound.
type Message interface {
	Type() MessageType
	Marshal() ([]byte, error)
}

// CompleteableMessage is implemented by entry messages whose result may be
// filled in later by a CompletionMessage.
type CompleteableMessage interface {
	Message
	Complete(result EntryResult) error
	// CurrentResult returns the result as it stands right now, possibly
	// unset.
	CurrentResult() EntryResult
}

// AckableMessage is implemented by entry messages that require an
// EntryAckMessage before the engine proceeds (side effects).
type AckableMessage interface {
	Message
	Ack()
}

// ReadFrame reads one (header, body) frame from r.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var hb [8]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return Header{}, nil, err
	}
	h := DecodeHeader(hb)
	body := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Header{}, nil, fmt.Errorf("wire: truncated body: %w", err)
		}
	}
	return h, body, nil
}

// WriteFrame writes one (header, body) frame to w.
func WriteFrame(w io.Writer, h Header, body []byte) error {
	h.Length = uint32(len(body))
	hb := h.Encode()
	if _, err := w.Write(hb[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

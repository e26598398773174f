package wire

import "google.golang.org/protobuf/encoding/protowire"

// StateEntry is one key/value pair of the eager-state map carried by
// StartMessage.
type StateEntry struct {
	Key   string
	Value []byte
}

// StartMessage begins an invocation (spec §6).
type StartMessage struct {
	Id           []byte
	DebugId      string
	Key          string
	KnownEntries uint32
	StateMap     []StateEntry
	PartialState bool
}

func (m *StartMessage) Type() MessageType { return StartMessageType }

func (m *StartMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.bytes(1, m.Id)
	w.str(2, m.DebugId)
	w.str(3, m.Key)
	w.varint(4, uint64(m.KnownEntries))
	for _, e := range m.StateMap {
		sw := &fieldWriter{}
		sw.str(1, e.Key)
		sw.bytes(2, e.Value)
		w.submessage(5, sw.b)
	}
	w.boolean(6, m.PartialState)
	return w.b, nil
}

func unmarshalStartMessage(b []byte) (*StartMessage, error) {
	m := &StartMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.Id = append([]byte(nil), val...)
		case 2:
			m.DebugId = asString(val)
		case 3:
			m.Key = asString(val)
		case 4:
			m.KnownEntries = asUint32(val)
		case 5:
			e := StateEntry{}
			if err := parseFields(val, func(n protowire.Number, t protowire.Type, v []byte) error {
				switch n {
				case 1:
					e.Key = asString(v)
				case 2:
					e.Value = append([]byte(nil), v...)
				}
				return nil
			}); err != nil {
				return err
			}
			m.StateMap = append(m.StateMap, e)
		case 6:
			m.PartialState = asBool(val)
		}
		return nil
	})
	return m, err
}

// CompletionMessage resolves a previously emitted entry by index.
type CompletionMessage struct {
	EntryIndex uint32
	Result     EntryResult
}

func (m *CompletionMessage) Type() MessageType { return CompletionMessageType }

func (m *CompletionMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.varint(1, uint64(m.EntryIndex))
	w.result(10, m.Result)
	return w.b, nil
}

func unmarshalCompletionMessage(b []byte) (*CompletionMessage, error) {
	m := &CompletionMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.EntryIndex = asUint32(val)
			return nil
		}
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// SuspensionMessage lists the entry indices the invocation was awaiting
// when it suspended.
type SuspensionMessage struct {
	EntryIndexes []uint32
}

func (m *SuspensionMessage) Type() MessageType { return SuspensionMessageType }

func (m *SuspensionMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.repeatedVarint(1, m.EntryIndexes)
	return w.b, nil
}

func unmarshalSuspensionMessage(b []byte) (*SuspensionMessage, error) {
	m := &SuspensionMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.EntryIndexes = append(m.EntryIndexes, asUint32(val))
		}
		return nil
	})
	return m, err
}

// ErrorMessage reports a fatal (non-retried-usefully) or retryable failure
// and always closes the invocation.
type ErrorMessage struct {
	Code              uint32
	Message           string
	Description       string
	RelatedEntryIndex *uint32
	RelatedEntryType  uint32
}

func (m *ErrorMessage) Type() MessageType { return ErrorMessageType }

func (m *ErrorMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.varint(1, uint64(m.Code))
	w.str(2, m.Message)
	w.str(3, m.Description)
	if m.RelatedEntryIndex != nil {
		w.varint(4, uint64(*m.RelatedEntryIndex))
	}
	w.varint(5, uint64(m.RelatedEntryType))
	return w.b, nil
}

func unmarshalErrorMessage(b []byte) (*ErrorMessage, error) {
	m := &ErrorMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.Code = asUint32(val)
		case 2:
			m.Message = asString(val)
		case 3:
			m.Description = asString(val)
		case 4:
			v := asUint32(val)
			m.RelatedEntryIndex = &v
		case 5:
			m.RelatedEntryType = asUint32(val)
		}
		return nil
	})
	return m, err
}

// EndMessage terminates the stream after a terminal Output entry. It is
// not sent after an ErrorMessage or a SuspensionMessage.
type EndMessage struct{}

func (m *EndMessage) Type() MessageType        { return EndMessageType }
func (m *EndMessage) Marshal() ([]byte, error) { return nil, nil }

func unmarshalEndMessage([]byte) (*EndMessage, error) { return &EndMessage{}, nil }

// EntryAckMessage acknowledges a side effect (or any AckableMessage).
type EntryAckMessage struct {
	EntryIndex uint32
}

func (m *EntryAckMessage) Type() MessageType { return EntryAckMessageType }

func (m *EntryAckMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.varint(1, uint64(m.EntryIndex))
	return w.b, nil
}

func unmarshalEntryAckMessage(b []byte) (*EntryAckMessage, error) {
	m := &EntryAckMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.EntryIndex = asUint32(val)
		}
		return nil
	})
	return m, err
}

// InputEntryMessage is always journal index 0 on a fresh start.
type InputEntryMessage struct {
	Value []byte
}

func (m *InputEntryMessage) Type() MessageType { return InputEntryMessageType }

func (m *InputEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.bytes(1, m.Value)
	return w.b, nil
}

func (m *InputEntryMessage) GetValue() []byte { return m.Value }

func unmarshalInputEntryMessage(b []byte) (*InputEntryMessage, error) {
	m := &InputEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.Value = append([]byte(nil), val...)
		}
		return nil
	})
	return m, err
}

// OutputEntryMessage is the single terminal entry of any invocation.
type OutputEntryMessage struct {
	Value   []byte
	Failure *Failure
}

func (m *OutputEntryMessage) Type() MessageType { return OutputEntryMessageType }

func (m *OutputEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	if m.Failure != nil {
		w.submessage(2, m.Failure.marshal())
	} else {
		w.bytes(1, m.Value)
	}
	return w.b, nil
}

func unmarshalOutputEntryMessage(b []byte) (*OutputEntryMessage, error) {
	m := &OutputEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.Value = append([]byte(nil), val...)
		case 2:
			f, err := unmarshalFailure(val)
			if err != nil {
				return err
			}
			m.Failure = f
		}
		return nil
	})
	return m, err
}

// GetStateEntryMessage reads one state key.
type GetStateEntryMessage struct {
	Key    string
	Result EntryResult
}

func (m *GetStateEntryMessage) Type() MessageType { return GetStateEntryMessageType }

func (m *GetStateEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.Key)
	w.result(10, m.Result)
	return w.b, nil
}

func (m *GetStateEntryMessage) Complete(r EntryResult) error { return completeOnce(&m.Result, r) }
func (m *GetStateEntryMessage) CurrentResult() EntryResult { return m.Result }

func unmarshalGetStateEntryMessage(b []byte) (*GetStateEntryMessage, error) {
	m := &GetStateEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.Key = asString(val)
			return nil
		}
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// SetStateEntryMessage writes one state key.
type SetStateEntryMessage struct {
	Key   string
	Value []byte
}

func (m *SetStateEntryMessage) Type() MessageType { return SetStateEntryMessageType }

func (m *SetStateEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.Key)
	w.bytes(2, m.Value)
	return w.b, nil
}

func unmarshalSetStateEntryMessage(b []byte) (*SetStateEntryMessage, error) {
	m := &SetStateEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.Key = asString(val)
		case 2:
			m.Value = append([]byte(nil), val...)
		}
		return nil
	})
	return m, err
}

// ClearStateEntryMessage clears one state key.
type ClearStateEntryMessage struct {
	Key string
}

func (m *ClearStateEntryMessage) Type() MessageType { return ClearStateEntryMessageType }

func (m *ClearStateEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.Key)
	return w.b, nil
}

func unmarshalClearStateEntryMessage(b []byte) (*ClearStateEntryMessage, error) {
	m := &ClearStateEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.Key = asString(val)
		}
		return nil
	})
	return m, err
}

// ClearAllStateEntryMessage clears every known state key.
type ClearAllStateEntryMessage struct{}

func (m *ClearAllStateEntryMessage) Type() MessageType { return ClearAllStateEntryMessageType }
func (m *ClearAllStateEntryMessage) Marshal() ([]byte, error) { return nil, nil }

func unmarshalClearAllStateEntryMessage([]byte) (*ClearAllStateEntryMessage, error) {
	return &ClearAllStateEntryMessage{}, nil
}

// SleepEntryMessage parks until WakeUpTime (unix millis).
type SleepEntryMessage struct {
	WakeUpTime uint64
	Result     EntryResult
}

func (m *SleepEntryMessage) Type() MessageType { return SleepEntryMessageType }

func (m *SleepEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.varint(1, m.WakeUpTime)
	w.result(10, m.Result)
	return w.b, nil
}

func (m *SleepEntryMessage) Complete(r EntryResult) error { return completeOnce(&m.Result, r) }
func (m *SleepEntryMessage) CurrentResult() EntryResult { return m.Result }

func unmarshalSleepEntryMessage(b []byte) (*SleepEntryMessage, error) {
	m := &SleepEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.WakeUpTime = asUint64(val)
			return nil
		}
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// CallEntryMessage is a blocking call to another service/method (Invoke).
type CallEntryMessage struct {
	ServiceName string
	HandlerName string
	Key         string
	Parameter   []byte
	Result      EntryResult
}

func (m *CallEntryMessage) Type() MessageType { return CallEntryMessageType }

func (m *CallEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.ServiceName)
	w.str(2, m.HandlerName)
	w.str(3, m.Key)
	w.bytes(4, m.Parameter)
	w.result(10, m.Result)
	return w.b, nil
}

func (m *CallEntryMessage) Complete(r EntryResult) error { return completeOnce(&m.Result, r) }
func (m *CallEntryMessage) CurrentResult() EntryResult { return m.Result }

func unmarshalCallEntryMessage(b []byte) (*CallEntryMessage, error) {
	m := &CallEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.ServiceName = asString(val)
		case 2:
			m.HandlerName = asString(val)
		case 3:
			m.Key = asString(val)
		case 4:
			m.Parameter = append([]byte(nil), val...)
		default:
			_, err := readResultField(&m.Result, 10, num, val)
			return err
		}
		return nil
	})
	return m, err
}

// OneWayCallEntryMessage is a fire-and-forget call, optionally delayed
// (BackgroundInvoke).
type OneWayCallEntryMessage struct {
	ServiceName string
	HandlerName string
	Key         string
	Parameter   []byte
	InvokeTime  uint64
}

func (m *OneWayCallEntryMessage) Type() MessageType { return OneWayCallEntryMessageType }

func (m *OneWayCallEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.ServiceName)
	w.str(2, m.HandlerName)
	w.str(3, m.Key)
	w.bytes(4, m.Parameter)
	w.varint(5, m.InvokeTime)
	return w.b, nil
}

func unmarshalOneWayCallEntryMessage(b []byte) (*OneWayCallEntryMessage, error) {
	m := &OneWayCallEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.ServiceName = asString(val)
		case 2:
			m.HandlerName = asString(val)
		case 3:
			m.Key = asString(val)
		case 4:
			m.Parameter = append([]byte(nil), val...)
		case 5:
			m.InvokeTime = asUint64(val)
		}
		return nil
	})
	return m, err
}

// AwakeableEntryMessage creates an externally-resolvable deferred result.
// Its id is derived deterministically from the invocation id and entry
// index (see internal/state/awakeable.go), not carried on the wire.
type AwakeableEntryMessage struct {
	Result EntryResult
}

func (m *AwakeableEntryMessage) Type() MessageType { return AwakeableEntryMessageType }

func (m *AwakeableEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.result(10, m.Result)
	return w.b, nil
}

func (m *AwakeableEntryMessage) Complete(r EntryResult) error { return completeOnce(&m.Result, r) }
func (m *AwakeableEntryMessage) CurrentResult() EntryResult { return m.Result }

func unmarshalAwakeableEntryMessage(b []byte) (*AwakeableEntryMessage, error) {
	m := &AwakeableEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// CompleteAwakeableEntryMessage resolves or rejects a peer's awakeable.
type CompleteAwakeableEntryMessage struct {
	Id     string
	Result EntryResult
}

func (m *CompleteAwakeableEntryMessage) Type() MessageType {
	return CompleteAwakeableEntryMessageType
}

func (m *CompleteAwakeableEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.str(1, m.Id)
	w.result(10, m.Result)
	return w.b, nil
}

func unmarshalCompleteAwakeableEntryMessage(b []byte) (*CompleteAwakeableEntryMessage, error) {
	m := &CompleteAwakeableEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num == 1 {
			m.Id = asString(val)
			return nil
		}
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// RunEntryMessage records a side effect's value or failure. Sent with
// FlagRequiresAck on first execution.
type RunEntryMessage struct {
	Result EntryResult
}

func (m *RunEntryMessage) Type() MessageType { return RunEntryMessageType }

func (m *RunEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.result(10, m.Result)
	return w.b, nil
}

func (m *RunEntryMessage) Complete(r EntryResult) error { return completeOnce(&m.Result, r) }
func (m *RunEntryMessage) CurrentResult() EntryResult { return m.Result }
func (m *RunEntryMessage) Ack()                         {}

func unmarshalRunEntryMessage(b []byte) (*RunEntryMessage, error) {
	m := &RunEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		_, err := readResultField(&m.Result, 10, num, val)
		return err
	})
	return m, err
}

// CombinatorType distinguishes the two combinator kinds.
type CombinatorType uint32

const (
	CombinatorAll CombinatorType = 0
	CombinatorAny CombinatorType = 1
)

// CombinatorEntryMessage records, for a combinator over a fixed set of
// child indices, the order in which they resolved -- so replay observes
// the same winner regardless of actual inbound ordering (spec §4.4).
type CombinatorEntryMessage struct {
	Combinator      CombinatorType
	ChildIndices    []uint32
	ResolutionOrder []uint32
}

func (m *CombinatorEntryMessage) Type() MessageType { return CombinatorEntryMessageType }

func (m *CombinatorEntryMessage) Marshal() ([]byte, error) {
	w := &fieldWriter{}
	w.varint(1, uint64(m.Combinator))
	w.repeatedVarint(2, m.ChildIndices)
	w.repeatedVarint(3, m.ResolutionOrder)
	return w.b, nil
}

func unmarshalCombinatorEntryMessage(b []byte) (*CombinatorEntryMessage, error) {
	m := &CombinatorEntryMessage{}
	err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			m.Combinator = CombinatorType(asUint32(val))
		case 2:
			m.ChildIndices = append(m.ChildIndices, asUint32(val))
		case 3:
			m.ResolutionOrder = append(m.ResolutionOrder, asUint32(val))
		}
		return nil
	})
	return m, err
}

// Decode dispatches on header.Type to produce the concrete Message.
func Decode(h Header, body []byte) (Message, error) {
	switch h.Type {
	case StartMessageType:
		return unmarshalStartMessage(body)
	case CompletionMessageType:
		return unmarshalCompletionMessage(body)
	case SuspensionMessageType:
		return unmarshalSuspensionMessage(body)
	case ErrorMessageType:
		return unmarshalErrorMessage(body)
	case EndMessageType:
		return unmarshalEndMessage(body)
	case EntryAckMessageType:
		return unmarshalEntryAckMessage(body)
	case InputEntryMessageType:
		return unmarshalInputEntryMessage(body)
	case OutputEntryMessageType:
		return unmarshalOutputEntryMessage(body)
	case GetStateEntryMessageType:
		return unmarshalGetStateEntryMessage(body)
	case SetStateEntryMessageType:
		return unmarshalSetStateEntryMessage(body)
	case ClearStateEntryMessageType:
		return unmarshalClearStateEntryMessage(body)
	case ClearAllStateEntryMessageType:
		return unmarshalClearAllStateEntryMessage(body)
	case SleepEntryMessageType:
		return unmarshalSleepEntryMessage(body)
	case CallEntryMessageType:
		return unmarshalCallEntryMessage(body)
	case OneWayCallEntryMessageType:
		return unmarshalOneWayCallEntryMessage(body)
	case AwakeableEntryMessageType:
		return unmarshalAwakeableEntryMessage(body)
	case CompleteAwakeableEntryMessageType:
		return unmarshalCompleteAwakeableEntryMessage(body)
	case RunEntryMessageType:
		return unmarshalRunEntryMessage(body)
	case CombinatorEntryMessageType:
		return unmarshalCombinatorEntryMessage(body)
	default:
		return nil, &ErrUnknownMessageType{Type: h.Type}
	}
}

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// fieldWriter accumulates protobuf-wire-encoded fields without requiring
// generated message descriptors; field numbers below are this codec's own
// and are not meant to interoperate with any other implementation.
type fieldWriter struct{ b []byte }

func (w *fieldWriter) str(num protowire.Number, v string) {
	if v == "" {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, v)
}

func (w *fieldWriter) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendBytes(w.b, v)
}

func (w *fieldWriter) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

func (w *fieldWriter) u32(num protowire.Number, v uint32) { w.varint(num, uint64(v)) }

func (w *fieldWriter) boolean(num protowire.Number, v bool) {
	if v {
		w.varint(num, 1)
	}
}

// repeatedVarint appends one tag+varint pair per value; this is the
// non-packed repeated-field encoding, valid protobuf wire format.
func (w *fieldWriter) repeatedVarint(num protowire.Number, vs []uint32) {
	for _, v := range vs {
		w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
		w.b = protowire.AppendVarint(w.b, uint64(v))
	}
}

func (w *fieldWriter) submessage(num protowire.Number, body []byte) {
	if len(body) == 0 {
		return
	}
	w.bytes(num, body)
}

// parseFields walks the wire-encoded body, invoking fn once per field with
// its raw value (the varint itself for VarintType, the inner bytes for
// BytesType). Unknown wire types are skipped rather than rejected so that
// forward-compatible fields never break decoding.
func parseFields(b []byte, fn func(num protowire.Number, typ protowire.Type, val []byte) error) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(tagLen))
		}
		b = b[tagLen:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("wire: bad varint: %w", protowire.ParseError(n))
			}
			if err := fn(num, typ, protowire.AppendVarint(nil, v)); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("wire: bad bytes: %w", protowire.ParseError(n))
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wire: bad field: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func asUint64(val []byte) uint64 {
	v, _ := protowire.ConsumeVarint(val)
	return v
}

func asUint32(val []byte) uint32 { return uint32(asUint64(val)) }
func asBool(val []byte) bool     { return asUint64(val) != 0 }
func asString(val []byte) string { return string(val) }

// EntryResult is the union {unset, value, failure, empty} carried by every
// entry kind that produces a result (spec §3).
type EntryResult struct {
	Value   []byte
	Failure *Failure
	Empty   bool
}

func (r EntryResult) IsSet() bool { return r.Value != nil || r.Failure != nil || r.Empty }

// ErrDuplicateCompletion is returned by an entry's Complete method when it
// already carries a different result (spec §9's Open Question, resolved
// as: reject non-equal duplicates).
var ErrDuplicateCompletion = fmt.Errorf("wire: duplicate completion with a different result")

// completeOnce implements the shared idempotent-or-reject policy every
// entry kind's Complete method applies to its own result field.
func completeOnce(slot *EntryResult, r EntryResult) error {
	if slot.IsSet() {
		if slot.Equal(r) {
			return nil
		}
		return ErrDuplicateCompletion
	}
	*slot = r
	return nil
}

// Equal reports byte-level equality, used to tolerate idempotent duplicate
// completions (spec §4.2).
func (r EntryResult) Equal(o EntryResult) bool {
	if r.Empty != o.Empty {
		return false
	}
	if (r.Failure == nil) != (o.Failure == nil) {
		return false
	}
	if r.Failure != nil && (*r.Failure != *o.Failure) {
		return false
	}
	if len(r.Value) != len(o.Value) {
		return false
	}
	for i := range r.Value {
		if r.Value[i] != o.Value[i] {
			return false
		}
	}
	return true
}

// Failure is the (code, message) pair carried by terminal results and
// ErrorMessages.
type Failure struct {
	Code    uint32
	Message string
}

func (f *Failure) marshal() []byte {
	if f == nil {
		return nil
	}
	w := &fieldWriter{}
	w.varint(1, uint64(f.Code))
	w.str(2, f.Message)
	return w.b
}

func unmarshalFailure(b []byte) (*Failure, error) {
	f := &Failure{}
	if err := parseFields(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 1:
			f.Code = asUint32(val)
		case 2:
			f.Message = asString(val)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return f, nil
}

// result writes an EntryResult under fields base+0 (value), base+1
// (failure, nested), base+2 (empty).
func (w *fieldWriter) result(base protowire.Number, r EntryResult) {
	switch {
	case r.Failure != nil:
		w.submessage(base+1, r.Failure.marshal())
	case r.Empty:
		w.boolean(base+2, true)
	default:
		w.bytes(base, r.Value)
	}
}

func readResultField(r *EntryResult, base, num protowire.Number, val []byte) (bool, error) {
	switch num {
	case base:
		r.Value = append([]byte(nil), val...)
		return true, nil
	case base + 1:
		f, err := unmarshalFailure(val)
		if err != nil {
			return true, err
		}
		r.Failure = f
		return true, nil
	case base + 2:
		r.Empty = asBool(val)
		return true, nil
	}
	return false, nil
}

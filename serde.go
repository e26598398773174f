package durable

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts between a Go value and the opaque bytes that cross the
// journal. The engine itself never interprets payload bytes (spec §1);
// Codec is purely a handler-side convenience.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)          { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error     { return json.Unmarshal(data, v) }

type binaryCodec struct{}

func (binaryCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("durable: WithBinary requires a []byte value, got %T", v)
	}
	return b, nil
}

func (binaryCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("durable: WithBinary requires a *[]byte destination, got %T", v)
	}
	*p = append([]byte(nil), data...)
	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

type codecConfig struct{ codec Codec }

// CodecOption selects the Codec used by a single GetAs/SetAs/RunAs/
// AwakeableAs call; the default is JSON.
type CodecOption func(*codecConfig)

// WithBinary passes []byte state values through unchanged instead of
// JSON-wrapping them.
func WithBinary(c *codecConfig) { c.codec = binaryCodec{} }

// WithMsgpack encodes with MessagePack instead of JSON.
func WithMsgpack(c *codecConfig) { c.codec = msgpackCodec{} }

// WithCodec plugs in an arbitrary user-supplied Codec.
func WithCodec(codec Codec) CodecOption {
	return func(c *codecConfig) { c.codec = codec }
}

func resolveCodec(opts []CodecOption) Codec {
	cfg := codecConfig{codec: jsonCodec{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.codec
}

// GetAs reads and decodes a state key.
func GetAs[T any](ctx Context, key string, opts ...CodecOption) (T, error) {
	var out T
	raw, err := ctx.Get(key)
	if err != nil {
		return out, err
	}
	if err := resolveCodec(opts).Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// SetAs encodes and writes a state key.
func SetAs[T any](ctx Context, key string, value T, opts ...CodecOption) error {
	raw, err := resolveCodec(opts).Marshal(value)
	if err != nil {
		return err
	}
	return ctx.Set(key, raw)
}

// ResponseAs decodes the response of a blocking call.
func ResponseAs[T any](fut ResponseFuture, opts ...CodecOption) (T, error) {
	var out T
	raw, err := fut.Response()
	if err != nil {
		return out, err
	}
	if err := resolveCodec(opts).Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// RunAs records the result of fn as a side effect and decodes it as T.
func RunAs[T any](ctx Context, fn func(RunContext) (T, error), opts ...CodecOption) (T, error) {
	codec := resolveCodec(opts)
	var out T

	raw, err := ctx.SideEffect(func() ([]byte, error) {
		v, err := fn(newRunContext(ctx))
		if err != nil {
			return nil, err
		}
		return codec.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := codec.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

type runContextAdapter struct {
	Context
	logger zerolog.Logger
}

func (r runContextAdapter) Log() zerolog.Logger { return r.logger }

func newRunContext(ctx Context) RunContext {
	return runContextAdapter{Context: ctx, logger: ctx.Log()}
}

type awakeableAdapter[T any] struct {
	inner Awakeable[[]byte]
	codec Codec
}

func (a awakeableAdapter[T]) EntryIndex() uint32 { return a.inner.EntryIndex() }

func (a awakeableAdapter[T]) Id() string { return a.inner.Id() }

func (a awakeableAdapter[T]) Result() (T, error) {
	var out T
	raw, err := a.inner.Result()
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := a.codec.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// AwakeableAs wraps Context.Awakeable with a typed decode of its result.
func AwakeableAs[T any](ctx Context, opts ...CodecOption) Awakeable[T] {
	return awakeableAdapter[T]{inner: ctx.Awakeable(), codec: resolveCodec(opts)}
}

package state

import (
	"bytes"
	"encoding/json"
	"time"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/internal/futures"
	"github.com/durablehq/sdk-go/internal/wire"
)

var (
	_ durable.ServiceClient     = (*serviceProxy)(nil)
	_ durable.ServiceSendClient = (*serviceSendProxy)(nil)
	_ durable.CallClient        = (*serviceCall)(nil)
	_ durable.SendClient        = (*serviceSend)(nil)
	_ durable.ResponseFuture    = (*responseFutureImpl)(nil)
)

type serviceProxy struct {
	machine *Machine
	service string
	key     string
}

func (c *serviceProxy) Method(name string) durable.CallClient {
	return &serviceCall{machine: c.machine, service: c.service, key: c.key, method: name}
}

type serviceSendProxy struct {
	machine *Machine
	service string
	key     string
	delay   time.Duration
}

func (c *serviceSendProxy) Method(name string) durable.SendClient {
	return &serviceSend{machine: c.machine, service: c.service, key: c.key, method: name, delay: c.delay}
}

type serviceCall struct {
	machine *Machine
	service string
	key     string
	method  string
}

// Request issues the call immediately (journalling it on first execution)
// but returns a deferred result rather than blocking: the caller decides
// whether to await it right away, fold it into a Selector, or compose it
// with All/Any.
func (c *serviceCall) Request(input any) durable.ResponseFuture {
	params, err := json.Marshal(input)
	if err != nil {
		return &responseFutureImpl{m: c.machine, failed: true, err: err}
	}
	entry, idx := c.machine.callEntry(c.service, c.key, c.method, params)
	return &responseFutureImpl{m: c.machine, entry: entry, idx: idx}
}

type serviceSend struct {
	machine *Machine
	service string
	key     string
	method  string
	delay   time.Duration
}

func (c *serviceSend) Request(input any) error {
	params, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return c.machine.sendCall(c.service, c.key, c.method, params, c.delay)
}

func (m *Machine) callEntry(service, key, method string, params []byte) (*wire.CallEntryMessage, uint32) {
	return replayOrNew(m,
		func() *wire.CallEntryMessage {
			return &wire.CallEntryMessage{ServiceName: service, HandlerName: method, Key: key, Parameter: params}
		},
		func(e *wire.CallEntryMessage, i uint32) *wire.CallEntryMessage {
			if e.ServiceName != service || e.Key != key || e.HandlerName != method || !bytes.Equal(e.Parameter, params) {
				panic(newEntryMismatch(i, &wire.CallEntryMessage{
					ServiceName: service, HandlerName: method, Key: key, Parameter: params,
				}, e))
			}
			return e
		},
	)
}

func (m *Machine) sendCall(service, key, method string, params []byte, delay time.Duration) error {
	var invokeTime uint64
	if delay != 0 {
		invokeTime = uint64(time.Now().Add(delay).UnixMilli())
	}

	_, _ = replayOrNew(m,
		func() *wire.OneWayCallEntryMessage {
			return &wire.OneWayCallEntryMessage{
				ServiceName: service, HandlerName: method, Key: key, Parameter: params, InvokeTime: invokeTime,
			}
		},
		func(e *wire.OneWayCallEntryMessage, i uint32) durable.Void {
			if e.ServiceName != service || e.Key != key || e.HandlerName != method || !bytes.Equal(e.Parameter, params) {
				panic(newEntryMismatch(i, &wire.OneWayCallEntryMessage{
					ServiceName: service, HandlerName: method, Key: key, Parameter: params,
				}, e))
			}
			return durable.Void{}
		},
	)
	return nil
}

// responseFutureImpl is the deferred result of a blocking call.
type responseFutureImpl struct {
	m      *Machine
	entry  *wire.CallEntryMessage
	idx    uint32
	failed bool
	err    error
}

func (f *responseFutureImpl) EntryIndex() uint32 { return f.idx }

func (f *responseFutureImpl) resolve() *futures.ResponseFuture {
	if f.failed {
		return futures.NewFailedResponseFuture(uint32(durable.CodeInvalidArgument), f.err.Error())
	}
	return f.m.futureFor(f.idx, f.entry.CurrentResult())
}

func (f *responseFutureImpl) Response() ([]byte, error) {
	if f.failed {
		return nil, durable.TerminalError(f.err, durable.CodeInvalidArgument)
	}
	result := f.m.awaitEntry(f.idx, f.entry.CurrentResult())
	if result.Failure != nil {
		return nil, durable.TerminalErrorFrom(durable.Code(result.Failure.Code), result.Failure.Message)
	}
	return result.Value, nil
}

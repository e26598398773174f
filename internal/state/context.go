package state

import (
	"context"
	"time"

	durable "github.com/durablehq/sdk-go"
	"github.com/rs/zerolog"
)

// Context is the concrete implementation of durable.Context (and, since
// its method set is a superset, durable.ObjectContext and
// durable.ObjectSharedContext too): a thin handle onto the Machine driving
// the current invocation.
type Context struct {
	context.Context
	machine *Machine
}

var (
	_ durable.Context             = (*Context)(nil)
	_ durable.ObjectContext       = (*Context)(nil)
	_ durable.ObjectSharedContext = (*Context)(nil)
)

func newContext(inner context.Context, machine *Machine) *Context {
	return &Context{Context: inner, machine: machine}
}

func (c *Context) Get(key string) ([]byte, error) { return c.machine.get(key) }
func (c *Context) Set(key string, value []byte) error {
	return c.machine.set(key, value)
}
func (c *Context) Clear(key string) error { return c.machine.clearKey(key) }
func (c *Context) ClearAll() error        { return c.machine.clearAll() }
func (c *Context) Keys() ([]string, error) { return c.machine.keys() }

func (c *Context) Sleep(d time.Duration) error { return c.machine.sleep(d) }
func (c *Context) After(d time.Duration) durable.After {
	return c.machine.after(d)
}

func (c *Context) Service(service string) durable.ServiceClient {
	return &serviceProxy{machine: c.machine, service: service}
}

func (c *Context) ServiceSend(service string, delay time.Duration) durable.ServiceSendClient {
	return &serviceSendProxy{machine: c.machine, service: service, delay: delay}
}

func (c *Context) Object(service, key string) durable.ServiceClient {
	return &serviceProxy{machine: c.machine, service: service, key: key}
}

func (c *Context) ObjectSend(service, key string, delay time.Duration) durable.ServiceSendClient {
	return &serviceSendProxy{machine: c.machine, service: service, key: key, delay: delay}
}

func (c *Context) SideEffect(fn func() ([]byte, error), opts ...durable.SideEffectOption) ([]byte, error) {
	return c.machine.sideEffect(fn, opts...)
}

func (c *Context) Awakeable() durable.Awakeable[[]byte] {
	return c.machine.awakeable()
}

func (c *Context) AwakeableHandle(id string) durable.AwakeableHandle {
	return &awakeableHandle{machine: c.machine, id: id}
}

func (c *Context) Selector(futs ...durable.Selectable) (durable.Selector, error) {
	return c.machine.selector(futs...)
}

func (c *Context) All(futs ...durable.Selectable) durable.Combinator {
	return c.machine.combinator(combinatorAll, futs...)
}

func (c *Context) Any(futs ...durable.Selectable) durable.Combinator {
	return c.machine.combinator(combinatorAny, futs...)
}

func (c *Context) Rand() durable.Rand { return c.machine.rand }

func (c *Context) Log() zerolog.Logger { return c.machine.log }

func (c *Context) Key() string { return c.machine.key }

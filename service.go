package durable

import "fmt"

// Handler is the uniform shape every user method is reduced to: a
// (service, method) registry entry maps onto exactly one of these,
// replacing subclass-based service implementations with dynamic dispatch
// over a function value plus its request/response codec.
type Handler interface {
	Call(ctx Context, request []byte) ([]byte, error)
}

type handlerFunc func(ctx Context, request []byte) ([]byte, error)

func (f handlerFunc) Call(ctx Context, request []byte) ([]byte, error) { return f(ctx, request) }

func decodeInput[I any](request []byte, codec Codec) (I, error) {
	var in I
	if len(request) == 0 {
		return in, nil
	}
	err := codec.Unmarshal(request, &in)
	return in, err
}

// NewServiceHandler adapts a typed stateless handler function to Handler.
func NewServiceHandler[I, O any](fn func(Context, I) (O, error), opts ...CodecOption) Handler {
	codec := resolveCodec(opts)
	return handlerFunc(func(ctx Context, request []byte) ([]byte, error) {
		in, err := decodeInput[I](request, codec)
		if err != nil {
			return nil, TerminalError(err, CodeInvalidArgument)
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(out)
	})
}

// NewObjectHandler adapts a typed exclusive virtual-object handler
// function to Handler. The engine always invokes object handlers with a
// Context that also implements ObjectContext.
func NewObjectHandler[I, O any](fn func(ObjectContext, I) (O, error), opts ...CodecOption) Handler {
	codec := resolveCodec(opts)
	return handlerFunc(func(ctx Context, request []byte) ([]byte, error) {
		oc, ok := ctx.(ObjectContext)
		if !ok {
			return nil, TerminalError(fmt.Errorf("durable: object handler invoked without an object context"), CodeInternal)
		}
		in, err := decodeInput[I](request, codec)
		if err != nil {
			return nil, TerminalError(err, CodeInvalidArgument)
		}
		out, err := fn(oc, in)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(out)
	})
}

// NewObjectSharedHandler adapts a typed shared (read-only, concurrently
// runnable) virtual-object handler function to Handler.
func NewObjectSharedHandler[I, O any](fn func(ObjectSharedContext, I) (O, error), opts ...CodecOption) Handler {
	codec := resolveCodec(opts)
	return handlerFunc(func(ctx Context, request []byte) ([]byte, error) {
		oc, ok := ctx.(ObjectSharedContext)
		if !ok {
			return nil, TerminalError(fmt.Errorf("durable: shared object handler invoked without an object context"), CodeInternal)
		}
		in, err := decodeInput[I](request, codec)
		if err != nil {
			return nil, TerminalError(err, CodeInvalidArgument)
		}
		out, err := fn(oc, in)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(out)
	})
}

// ServiceDefinition accumulates named handlers for one service or virtual
// object; the distinction between the two is purely documentary at this
// layer (enforced by which Context type a handler's function accepts).
type ServiceDefinition struct {
	name     string
	handlers map[string]Handler
}

// NewService starts a definition for a stateless service.
func NewService(name string) *ServiceDefinition { return newDefinition(name) }

// NewObject starts a definition for a keyed virtual object.
func NewObject(name string) *ServiceDefinition { return newDefinition(name) }

func newDefinition(name string) *ServiceDefinition {
	return &ServiceDefinition{name: name, handlers: map[string]Handler{}}
}

// Handler registers h under methodName and returns the receiver for
// chaining, mirroring how service definitions are built up in a single
// expression at package scope.
func (s *ServiceDefinition) Handler(methodName string, h Handler) *ServiceDefinition {
	s.handlers[methodName] = h
	return s
}

func (s *ServiceDefinition) Name() string { return s.name }

// ServiceRouter is the (service, method) -> Handler registry that a
// transport adapter consults before constructing an invocation engine; it
// has no knowledge of the wire protocol or the journal.
type ServiceRouter struct {
	services map[string]*ServiceDefinition
}

// NewRouter builds a router from a set of service definitions.
func NewRouter(defs ...*ServiceDefinition) *ServiceRouter {
	r := &ServiceRouter{services: make(map[string]*ServiceDefinition, len(defs))}
	for _, d := range defs {
		r.services[d.name] = d
	}
	return r
}

// Bind adds or replaces a service definition after construction.
func (r *ServiceRouter) Bind(def *ServiceDefinition) *ServiceRouter {
	r.services[def.name] = def
	return r
}

// Resolve looks up the handler for (service, method).
func (r *ServiceRouter) Resolve(service, method string) (Handler, bool) {
	def, ok := r.services[service]
	if !ok {
		return nil, false
	}
	h, ok := def.handlers[method]
	return h, ok
}

// Package service implements the name -> handler table dispatched into by a
// Session on every inbound REQUEST/NOTIFY: an immutable map built once at
// startup, with per-handler pooled parameter/return buffers so a busy
// session doesn't allocate on every call.
package service

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/pool"
)

// ErrDuplicateMethod is returned by Builder.Route when a method name has
// already been registered.
var ErrDuplicateMethod = errors.New("service: method name already registered")

// Profile is the read-only session context passed to a handler's first
// argument, when the handler asks for it (signature shape 1 below).
type Profile struct {
	LocalID  string
	RemoteID string
	TenantID string
}

// ParamSlot is a checked-out parameter buffer: the live Go values a
// ProtocolAdapter restores request arguments into, plus Views over them for
// the archive driver and a matching return-value buffer.
type ParamSlot struct {
	handler  *handler
	storage  []any // one pointer per declared parameter
	retPtr   any   // pointer to a fresh RetVal, or nil for void handlers
}

// ParamViews returns, in declaration order, the Views a Reader should
// restore each positional argument into.
func (s *ParamSlot) ParamViews() []objectview.View {
	views := make([]objectview.View, len(s.storage))
	for i, p := range s.storage {
		views[i] = objectview.Of(p)
	}
	return views
}

// Invoke calls the underlying handler with profile and the values already
// restored into this slot's buffers, and returns a Shared view over the
// result (empty if the handler is void).
func (s *ParamSlot) Invoke(profile Profile) (objectview.Shared, error) {
	return s.handler.invoke(profile, s)
}

// Release returns the slot's buffers to their pools. Callers must not use
// the slot again afterward.
func (s *ParamSlot) Release() {
	s.handler.release(s)
}

// MethodName reports the route name this slot was checked out for, for
// monitor/logging callers that only hold the slot, not the original Handle.
func (s *ParamSlot) MethodName() string {
	return s.handler.name
}

// handler is the reflection-resolved, per-method invocation plan.
type handler struct {
	name         string
	fn           reflect.Value
	paramTypes   []reflect.Type // declared parameter types, decayed (non-pointer)
	retType      reflect.Type   // nil for void handlers
	wantsProfile bool
	returnsErr   bool
	// explicitRetParam is true for the "func(*Ret, params...)" shape, where
	// the handler writes its result through a pointer argument rather than
	// returning it.
	explicitRetParam bool

	paramPool *pool.Pool[[]any]
	retPool   *pool.Pool[any]
}

func (h *handler) checkout() *ParamSlot {
	storage := h.paramPool.Get()
	slot := &ParamSlot{handler: h, storage: *storage}
	if h.retType != nil {
		slot.retPtr = *h.retPool.Get()
	}
	return slot
}

func (h *handler) release(s *ParamSlot) {
	h.paramPool.Put(&s.storage)
	if h.retType != nil {
		h.retPool.Put(&s.retPtr)
	}
}

func (h *handler) invoke(profile Profile, s *ParamSlot) (objectview.Shared, error) {
	args := make([]reflect.Value, 0, len(s.storage)+2)
	if h.wantsProfile {
		args = append(args, reflect.ValueOf(profile))
	}
	if h.explicitRetParam {
		args = append(args, reflect.ValueOf(s.retPtr))
	}
	for _, p := range s.storage {
		args = append(args, reflect.ValueOf(p).Elem())
	}

	out := h.fn.Call(args)

	if h.returnsErr {
		last := out[len(out)-1]
		if !last.IsNil() {
			return objectview.Shared{}, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	if h.retType == nil {
		return objectview.Shared{}, nil
	}
	if !h.explicitRetParam && len(out) > 0 {
		// Return-value style handler: the call's own result is the payload.
		reflect.ValueOf(s.retPtr).Elem().Set(out[0])
	}
	return objectview.SharedOf(s.retPtr), nil
}

// Table is the immutable, built name -> handler map a Session dispatches
// REQUEST/NOTIFY method names against.
type Table struct {
	handlers map[string]*handler
}

// Lookup resolves a method name, reporting whether it was found.
func (t *Table) Lookup(method string) (*Handle, bool) {
	h, ok := t.handlers[method]
	if !ok {
		return nil, false
	}
	return &Handle{h: h}, true
}

// Methods returns every routed method name, for introspection callers
// (e.g. the debug HTTP server in internal/monitoring); order is
// unspecified.
func (t *Table) Methods() []string {
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	return names
}

// Handle is the public, name-resolved reference to one registered method.
type Handle struct{ h *handler }

// NumParams reports how many positional parameters this method declares.
func (h *Handle) NumParams() int { return len(h.h.paramTypes) }

// Checkout borrows a parameter/return buffer pair for one inbound call.
func (h *Handle) Checkout() *ParamSlot { return h.h.checkout() }

// Builder accumulates routes before Build freezes them into a Table.
type Builder struct {
	handlers map[string]*handler
}

func NewBuilder() *Builder {
	return &Builder{handlers: map[string]*handler{}}
}

// Route registers fn under method name. fn must be a function value in one
// of four shapes:
//
//  1. func(service.Profile, *Ret, P1, P2, ...)         — full form
//  2. func(*Ret, P1, P2, ...)                          — no profile
//  3. func(P1, P2, ...) Ret                            — return-value form
//  4. func(P1, P2, ...) (Ret, error)                   — return-value + error
//
// Ret may be omitted entirely for a void/notify-only handler (shapes 2-4
// degrade to no return type).
func (b *Builder) Route(name string, fn any) error {
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateMethod, name)
	}
	h, err := resolveHandler(name, fn)
	if err != nil {
		return err
	}
	b.handlers[name] = h
	return nil
}

// MustRoute panics instead of returning an error, for use in init-time
// wiring where a bad registration is a programming error.
func (b *Builder) MustRoute(name string, fn any) *Builder {
	if err := b.Route(name, fn); err != nil {
		panic(err)
	}
	return b
}

// Build freezes the accumulated routes into an immutable Table.
func (b *Builder) Build() *Table {
	return &Table{handlers: b.handlers}
}

var profileType = reflect.TypeOf(Profile{})
var errType = reflect.TypeOf((*error)(nil)).Elem()

func resolveHandler(name string, fn any) (*handler, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("service: route %q: handler must be a function, got %s", name, t)
	}

	in := make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}

	wantsProfile := len(in) > 0 && in[0] == profileType
	if wantsProfile {
		in = in[1:]
	}

	var retType reflect.Type

	// Shape 1/2: an explicit *Ret parameter immediately after the optional
	// profile, function returns nothing.
	if t.NumOut() == 0 && len(in) > 0 && in[0].Kind() == reflect.Ptr {
		retType = in[0].Elem()
		in = in[1:]
		h := &handler{
			name: name, fn: v, paramTypes: in, retType: retType,
			wantsProfile:     wantsProfile,
			explicitRetParam: true,
		}
		buildPools(h)
		return h, nil
	}

	// Shape 3/4: return-value style.
	returnsErr := false
	switch t.NumOut() {
	case 0:
		// void handler, no return value
	case 1:
		if t.Out(0) == errType {
			returnsErr = true
		} else {
			retType = t.Out(0)
		}
	case 2:
		if t.Out(1) != errType {
			return nil, fmt.Errorf("service: route %q: second return value must be error", name)
		}
		retType = t.Out(0)
		returnsErr = true
	default:
		return nil, fmt.Errorf("service: route %q: too many return values", name)
	}

	h := &handler{
		name: name, fn: v, paramTypes: in, retType: retType,
		wantsProfile: wantsProfile, returnsErr: returnsErr,
	}
	buildPools(h)
	return h, nil
}

func buildPools(h *handler) {
	paramTypes := h.paramTypes
	h.paramPool = pool.New(64, func() *[]any {
		bufs := make([]any, len(paramTypes))
		for i, pt := range paramTypes {
			bufs[i] = reflect.New(pt).Interface()
		}
		return &bufs
	}, func(bufs *[]any) {
		for i, pt := range paramTypes {
			(*bufs)[i] = reflect.New(pt).Interface()
		}
	})

	retType := h.retType
	h.retPool = pool.New(64, func() *any {
		if retType == nil {
			var nothing any
			return &nothing
		}
		v := reflect.New(retType).Interface()
		return &v
	}, func(v *any) {
		if retType != nil {
			*v = reflect.New(retType).Interface()
		}
	})
}

// metadataFor is a small helper kept for callers that need a method's
// declared parameter Metadata ahead of a checkout (e.g. to validate an
// inbound count before allocating).
func metadataFor(t reflect.Type) *metadata.Metadata {
	return metadata.OfType(t)
}

// Package metadata implements the reflection-driven type registry: immutable,
// per-type descriptors built exactly once and referenced everywhere else by
// pointer.
//
// Unlike a template-singleton-per-type approach, registration here is keyed
// by reflect.Type in a process-wide map guarded by a per-entry sync.Once —
// a one-shot cell per type, not a globally mutable registry.
package metadata

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ocx/meshrpc/internal/archive"
)

// Kind is the coarse shape of a type descriptor.
type Kind int

const (
	KindPrimitive Kind = iota
	KindTuple
	KindObject
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindTuple:
		return "tuple"
	case KindObject:
		return "object"
	case KindContainer:
		return "container"
	default:
		return "unknown"
	}
}

// RequirementStatus classifies a property's value at archive time.
type RequirementStatus int

const (
	Required RequirementStatus = iota
	OptionalPresent
	OptionalEmpty
)

// PrimitiveControl is the vtable backing a Primitive Metadata: the archive
// and restore logic for one concrete scalar Go type.
type PrimitiveControl interface {
	EntityType() archive.EntityType
	Archive(w archive.Writer, ptr any) error
	Restore(r archive.Reader, ptr any) error
	RequirementStatus(ptr any) RequirementStatus
}

// ContainerControl backs a Container Metadata: list-like or dict-like
// element access delegated through reflection, since Go has no pointer
// arithmetic over arbitrary element types.
type ContainerControl interface {
	// IsDict reports whether iteration yields key/value pairs (map) rather
	// than a plain sequence (slice/array).
	IsDict() bool
	Len(ptr any) int
	Reserve(ptr any, n int)
	Clear(ptr any)
	// Elem returns a pointer to the i'th element for reading (list-like).
	Elem(ptr any, i int) any
	// Emplace grows the underlying container by one and returns a pointer
	// to the new element, for restore.
	Emplace(ptr any) any
	// Keys returns the map keys in a stable order (dict-like only).
	Keys(ptr any) []any
	// At returns a pointer to the value for the given key (dict-like).
	At(ptr any, key any) any
	// Put inserts key with a freshly allocated value and returns a pointer
	// to it (dict-like restore). The pointer is a detached scratch buffer
	// for non-addressable backings (Go maps); callers must call Store once
	// restoring into it is complete.
	Put(ptr any, key any) any
	// Store commits a value previously obtained from Put back into the
	// container. A no-op for containers whose Put already aliases real
	// storage.
	Store(ptr any, key any, valuePtr any)
	Element() *Metadata
}

// Property describes one archived field of a Tuple or Object.
type Property struct {
	Name     string // empty for pure Tuple properties
	IntKey   int
	Optional bool
	Type     *Metadata
	index    []int // reflect struct-field index path
}

// Metadata is the immutable per-type descriptor.
type Metadata struct {
	kind    Kind
	goType  reflect.Type
	name    string
	control PrimitiveControl

	properties []Property // Tuple, Object
	extent     uintptr    // size in bytes of the owning type; no factory sets or checks it

	container ContainerControl
}

func (m *Metadata) Kind() Kind          { return m.kind }
func (m *Metadata) Name() string        { return m.name }
func (m *Metadata) GoType() reflect.Type { return m.goType }
func (m *Metadata) Properties() []Property {
	return m.properties
}
func (m *Metadata) Container() ContainerControl { return m.container }
func (m *Metadata) Primitive() PrimitiveControl { return m.control }

// PropertyByName finds a property for object-mode (string-keyed) archiving.
func (m *Metadata) PropertyByName(name string) (Property, bool) {
	for _, p := range m.properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertyByIntKey finds a property for integer-keyed archiving.
func (m *Metadata) PropertyByIntKey(key int) (Property, bool) {
	for _, p := range m.properties {
		if p.IntKey == key {
			return p, true
		}
	}
	return Property{}, false
}

// FieldPtr resolves the pointer to this property's storage within owner,
// which must be a pointer to the struct the property was declared on.
func (p Property) FieldPtr(owner any) any {
	v := reflect.ValueOf(owner)
	if v.Kind() != reflect.Ptr {
		panic("metadata: FieldPtr requires a pointer receiver")
	}
	v = v.Elem()
	for _, idx := range p.index {
		v = v.Field(idx)
	}
	return v.Addr().Interface()
}

// registry is the one-shot cell store: reflect.Type -> *cell.
var registry sync.Map

type cell struct {
	once sync.Once
	meta *Metadata
}

// Of resolves (building at most once) the Metadata for the type of v, which
// may be a pointer or a bare value. Structs without an explicit factory
// registration are auto-built from their exported fields and `meta` tags,
// created lazily on first access and cached for the life of the process.
func Of(v any) *Metadata {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return OfType(t)
}

// OfType resolves Metadata directly from a reflect.Type.
func OfType(t reflect.Type) *Metadata {
	if c, ok := registry.Load(t); ok {
		cc := c.(*cell)
		cc.once.Do(func() {}) // no-op: build already happened under Register/autobuild
		return cc.meta
	}

	c := &cell{}
	actual, _ := registry.LoadOrStore(t, c)
	cc := actual.(*cell)
	cc.once.Do(func() {
		cc.meta = build(t)
	})
	return cc.meta
}

// register installs an already-built Metadata for t exactly once. Used by
// the factories (ObjectFactoryOf/TupleFactoryOf/PrimitiveFactory) and by the
// package init() for generic descriptors. Panics if called twice for the
// same type, matching the "constructed exactly once" invariant.
func register(t reflect.Type, m *Metadata) *Metadata {
	c := &cell{meta: m}
	c.once.Do(func() {})
	if _, loaded := registry.LoadOrStore(t, c); loaded {
		panic(fmt.Sprintf("metadata: type %s already registered", t))
	}
	return m
}

// build lazily constructs Metadata for a type with no explicit registration:
// structs become Object descriptors (auto-derived from fields), slices and
// arrays become list-like Containers, maps become dict-like Containers.
func build(t reflect.Type) *Metadata {
	switch t.Kind() {
	case reflect.Struct:
		return buildAutoObject(t)
	case reflect.Slice, reflect.Array:
		return newSliceContainerMetadata(t)
	case reflect.Map:
		return newMapContainerMetadata(t)
	case reflect.Ptr:
		return newOptionalMetadata(t)
	default:
		panic(fmt.Sprintf("metadata: no descriptor registered for primitive type %s; "+
			"register it via metadata.PrimitiveFactory at init time", t))
	}
}

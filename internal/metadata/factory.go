package metadata

import (
	"fmt"
	"reflect"
)

// PrimitiveFactory registers a hand-written scalar descriptor for T, for
// types the generic registrations in primitives.go don't cover (custom
// enums, domain-specific value types with bespoke wire encodings).
func PrimitiveFactory[T any](control PrimitiveControl) *Metadata {
	var zero T
	t := reflect.TypeOf(zero)
	return register(t, &Metadata{
		kind:    KindPrimitive,
		goType:  t,
		name:    t.String(),
		control: control,
	})
}

// propSpec is a single property declaration accumulated by a builder before
// Build() freezes it into a Property.
type propSpec struct {
	name     string
	intKey   int
	hasKey   bool
	optional bool
	index    []int
}

// ObjectBuilder accumulates named properties for a struct type T, to be
// frozen into an Object Metadata by Build.
type ObjectBuilder[T any] struct {
	props []propSpec
	base  *Metadata
}

// ObjectFactoryOf starts a builder for T. The zero value of T is used only
// to resolve its reflect.Type and validate field paths.
func ObjectFactoryOf[T any]() *ObjectBuilder[T] {
	return &ObjectBuilder[T]{}
}

// Property declares a named, required property addressed by fieldName (a Go
// exported struct field name, dotted for nested embedding if needed).
func (b *ObjectBuilder[T]) Property(fieldName string) *ObjectBuilder[T] {
	b.props = append(b.props, propSpec{name: fieldName})
	return b
}

// Optional marks the property just added as archived only when present.
func (b *ObjectBuilder[T]) Optional() *ObjectBuilder[T] {
	if len(b.props) == 0 {
		panic("metadata: Optional() called with no preceding Property()")
	}
	b.props[len(b.props)-1].optional = true
	return b
}

// IntKey assigns an explicit integer key to the property just added,
// overriding the auto-assigned gap-filled value.
func (b *ObjectBuilder[T]) IntKey(key int) *ObjectBuilder[T] {
	if len(b.props) == 0 {
		panic("metadata: IntKey() called with no preceding Property()")
	}
	b.props[len(b.props)-1].intKey = key
	b.props[len(b.props)-1].hasKey = true
	return b
}

// Extend inherits base's properties ahead of this builder's own, matching
// the original's object-inheritance support.
func (b *ObjectBuilder[T]) Extend(base *Metadata) *ObjectBuilder[T] {
	b.base = base
	return b
}

// Build resolves field names to struct indices, validates as the original
// factory does (unique names, auto-assigned integer key gaps), and
// registers the result exactly once. Properties keep declaration order
// (base properties first); they are not sorted.
func (b *ObjectBuilder[T]) Build() *Metadata {
	var zero T
	t := reflect.TypeOf(zero)
	props := resolveProps(t, b.props)
	if b.base != nil {
		props = append(append([]Property{}, b.base.properties...), props...)
	}
	assignIntKeys(props)
	validateUnique(props)
	return register(t, &Metadata{
		kind:       KindObject,
		goType:     t,
		name:       t.String(),
		properties: props,
	})
}

// TupleBuilder accumulates ordered, unnamed properties for a struct type T.
type TupleBuilder[T any] struct {
	props []propSpec
}

func TupleFactoryOf[T any]() *TupleBuilder[T] {
	return &TupleBuilder[T]{}
}

func (b *TupleBuilder[T]) Property(fieldName string) *TupleBuilder[T] {
	b.props = append(b.props, propSpec{name: fieldName})
	return b
}

func (b *TupleBuilder[T]) Optional() *TupleBuilder[T] {
	if len(b.props) == 0 {
		panic("metadata: Optional() called with no preceding Property()")
	}
	b.props[len(b.props)-1].optional = true
	return b
}

func (b *TupleBuilder[T]) Build() *Metadata {
	var zero T
	t := reflect.TypeOf(zero)
	props := resolveProps(t, b.props)
	for i := range props {
		props[i].Name = "" // tuples archive positionally, never by name
	}
	return register(t, &Metadata{
		kind:       KindTuple,
		goType:     t,
		name:       t.String(),
		properties: props,
	})
}

func resolveProps(t reflect.Type, specs []propSpec) []Property {
	out := make([]Property, 0, len(specs))
	for _, s := range specs {
		f, ok := t.FieldByName(s.name)
		if !ok {
			panic(fmt.Sprintf("metadata: %s has no field %q", t, s.name))
		}
		key := 0
		if s.hasKey {
			key = s.intKey
		}
		out = append(out, Property{
			Name:     s.name,
			IntKey:   key,
			Optional: s.optional,
			Type:     OfType(f.Type),
			index:    append([]int{}, f.Index...),
		})
	}
	return out
}

// assignIntKeys fills the gaps: properties with an explicit key (hasKey at
// resolveProps time isn't retained past this point, so we treat any nonzero
// key as explicit and pack the rest into the lowest unused integers starting
// at 0 in declaration order) get every other property a unique key.
func assignIntKeys(props []Property) {
	used := make(map[int]bool, len(props))
	for _, p := range props {
		used[p.IntKey] = true
	}
	next := 0
	nextFree := func() int {
		for used[next] {
			next++
		}
		used[next] = true
		return next
	}
	seen := make(map[int]int) // IntKey value -> count of props claiming it as 0 by default
	for i, p := range props {
		if p.IntKey != 0 {
			continue
		}
		seen[0]++
		if seen[0] > 1 {
			props[i].IntKey = nextFree()
		}
	}
}

func validateUnique(props []Property) {
	names := make(map[string]bool, len(props))
	keys := make(map[int]bool, len(props))
	for _, p := range props {
		if p.Name != "" {
			if names[p.Name] {
				panic(fmt.Sprintf("metadata: duplicate property name %q", p.Name))
			}
			names[p.Name] = true
		}
		if keys[p.IntKey] {
			panic(fmt.Sprintf("metadata: duplicate property int key %d", p.IntKey))
		}
		keys[p.IntKey] = true
	}
}

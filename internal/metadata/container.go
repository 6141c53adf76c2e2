package metadata

import (
	"reflect"
	"sort"
)

// sliceContainer backs list-like containers: Go slices and arrays.
type sliceContainer struct {
	elem *Metadata
}

func (c sliceContainer) IsDict() bool { return false }

func (c sliceContainer) Len(ptr any) int {
	return reflect.ValueOf(ptr).Elem().Len()
}

func (c sliceContainer) Reserve(ptr any, n int) {
	v := reflect.ValueOf(ptr).Elem()
	if v.Kind() != reflect.Slice {
		return // arrays are fixed-size
	}
	if v.Cap() >= n {
		return
	}
	grown := reflect.MakeSlice(v.Type(), v.Len(), n)
	reflect.Copy(grown, v)
	v.Set(grown)
}

func (c sliceContainer) Clear(ptr any) {
	v := reflect.ValueOf(ptr).Elem()
	if v.Kind() == reflect.Slice {
		v.Set(reflect.MakeSlice(v.Type(), 0, 0))
	}
}

func (c sliceContainer) Elem(ptr any, i int) any {
	return reflect.ValueOf(ptr).Elem().Index(i).Addr().Interface()
}

func (c sliceContainer) Emplace(ptr any) any {
	v := reflect.ValueOf(ptr).Elem()
	if v.Kind() != reflect.Slice {
		panic("metadata: Emplace on a fixed-size array container")
	}
	v.Set(reflect.Append(v, reflect.Zero(v.Type().Elem())))
	return v.Index(v.Len() - 1).Addr().Interface()
}

func (c sliceContainer) Keys(ptr any) []any { return nil }
func (c sliceContainer) At(ptr any, key any) any {
	return c.Elem(ptr, key.(int))
}
func (c sliceContainer) Put(ptr any, key any) any             { return c.Emplace(ptr) }
func (c sliceContainer) Store(ptr any, key any, valuePtr any) {}
func (c sliceContainer) Element() *Metadata                    { return c.elem }

func newSliceContainerMetadata(t reflect.Type) *Metadata {
	elem := OfType(t.Elem())
	return &Metadata{
		kind:      KindContainer,
		goType:    t,
		name:      t.String(),
		container: sliceContainer{elem: elem},
	}
}

// mapContainer backs dict-like containers: Go maps. Keys are restricted to
// the wire-representable kinds (strings and integers), matching the
// original's ordered/unordered dictionary descriptors.
type mapContainer struct {
	elem    *Metadata
	keyType reflect.Type
}

func (c mapContainer) IsDict() bool { return true }

func (c mapContainer) Len(ptr any) int {
	v := reflect.ValueOf(ptr).Elem()
	if v.IsNil() {
		return 0
	}
	return v.Len()
}

func (c mapContainer) Reserve(ptr any, n int) {
	v := reflect.ValueOf(ptr).Elem()
	if v.IsNil() {
		v.Set(reflect.MakeMapWithSize(v.Type(), n))
	}
}

func (c mapContainer) Clear(ptr any) {
	v := reflect.ValueOf(ptr).Elem()
	v.Set(reflect.MakeMap(v.Type()))
}

func (c mapContainer) Elem(ptr any, i int) any {
	panic("metadata: Elem is not valid on a dict-like container")
}

func (c mapContainer) Emplace(ptr any) any {
	panic("metadata: Emplace is not valid on a dict-like container; use Put")
}

func (c mapContainer) Keys(ptr any) []any {
	v := reflect.ValueOf(ptr).Elem()
	mk := v.MapKeys()
	sort.Slice(mk, func(i, j int) bool {
		switch mk[i].Kind() {
		case reflect.String:
			return mk[i].String() < mk[j].String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return mk[i].Int() < mk[j].Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return mk[i].Uint() < mk[j].Uint()
		}
		return false
	})
	keys := make([]any, 0, len(mk))
	for _, k := range mk {
		keys = append(keys, k.Interface())
	}
	return keys
}

func (c mapContainer) At(ptr any, key any) any {
	v := reflect.ValueOf(ptr).Elem()
	val := v.MapIndex(reflect.ValueOf(key).Convert(c.keyType))
	if !val.IsValid() {
		return nil
	}
	// MapIndex returns a non-addressable copy; box it so callers get a
	// pointer they can archive from.
	boxed := reflect.New(val.Type())
	boxed.Elem().Set(val)
	return boxed.Interface()
}

func (c mapContainer) Put(ptr any, key any) any {
	v := reflect.ValueOf(ptr).Elem()
	if v.IsNil() {
		v.Set(reflect.MakeMap(v.Type()))
	}
	return reflect.New(v.Type().Elem()).Interface()
}

func (c mapContainer) Store(ptr any, key any, valuePtr any) {
	v := reflect.ValueOf(ptr).Elem()
	val := reflect.ValueOf(valuePtr).Elem()
	v.SetMapIndex(reflect.ValueOf(key).Convert(c.keyType), val)
}

func (c mapContainer) Element() *Metadata { return c.elem }

func newMapContainerMetadata(t reflect.Type) *Metadata {
	elem := OfType(t.Elem())
	return &Metadata{
		kind:   KindContainer,
		goType: t,
		name:   t.String(),
		container: mapContainer{
			elem:    elem,
			keyType: t.Key(),
		},
	}
}

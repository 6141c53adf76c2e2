package metadata

import (
	"reflect"

	"github.com/ocx/meshrpc/internal/archive"
)

// optionalControl backs pointer types: a nil pointer archives as null and
// restores to nil; a non-nil pointer delegates to the pointee's Metadata.
// This is the generic "optional/nullable" descriptor every pointer type
// gets for free, without requiring a builder call.
type optionalControl struct {
	elem *Metadata
}

func (c optionalControl) EntityType() archive.EntityType {
	return archive.EntityNull // refined to the pointee's entity type when present
}

func (c optionalControl) Archive(w archive.Writer, ptr any) error {
	v := reflect.ValueOf(ptr).Elem() // *T
	if v.IsNil() {
		return w.Write(nil)
	}
	return Archive(w, c.elem, v.Interface())
}

func (c optionalControl) Restore(r archive.Reader, ptr any) error {
	v := reflect.ValueOf(ptr).Elem() // *T
	if r.IsNullNext() {
		var discard any
		if err := r.Read(&discard); err != nil {
			return err
		}
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	if v.IsNil() {
		v.Set(reflect.New(v.Type().Elem()))
	}
	return Restore(r, c.elem, v.Interface())
}

func (c optionalControl) RequirementStatus(ptr any) RequirementStatus {
	v := reflect.ValueOf(ptr).Elem()
	if v.IsNil() {
		return OptionalEmpty
	}
	return OptionalPresent
}

func newOptionalMetadata(t reflect.Type) *Metadata {
	elem := OfType(t.Elem())
	return &Metadata{
		kind:    KindPrimitive,
		goType:  t,
		name:    t.String(),
		control: optionalControl{elem: elem},
	}
}

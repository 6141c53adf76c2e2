package metadata

import (
	"reflect"
	"time"

	"github.com/ocx/meshrpc/internal/archive"
)

// scalarControl is a PrimitiveControl built around a pair of closures; every
// pre-registered generic descriptor below is an instance of it.
type scalarControl struct {
	entity  archive.EntityType
	archive func(w archive.Writer, ptr any) error
	restore func(r archive.Reader, ptr any) error
}

func (c scalarControl) EntityType() archive.EntityType { return c.entity }
func (c scalarControl) Archive(w archive.Writer, ptr any) error {
	return c.archive(w, ptr)
}
func (c scalarControl) Restore(r archive.Reader, ptr any) error {
	return c.restore(r, ptr)
}
func (c scalarControl) RequirementStatus(ptr any) RequirementStatus {
	return Required
}

func primitive(t reflect.Type, entity archive.EntityType,
	archiveFn func(w archive.Writer, ptr any) error,
	restoreFn func(r archive.Reader, ptr any) error) {
	register(t, &Metadata{
		kind:   KindPrimitive,
		goType: t,
		name:   t.String(),
		control: scalarControl{
			entity:  entity,
			archive: archiveFn,
			restore: restoreFn,
		},
	})
}

func init() {
	registerIntKind[int]()
	registerIntKind[int8]()
	registerIntKind[int16]()
	registerIntKind[int32]()
	registerIntKind[int64]()
	registerUintKind[uint]()
	registerUintKind[uint8]()
	registerUintKind[uint16]()
	registerUintKind[uint32]()
	registerUintKind[uint64]()

	primitive(reflect.TypeOf(float32(0)), archive.EntityFloat,
		func(w archive.Writer, ptr any) error { return w.Write(float64(*ptr.(*float32))) },
		func(r archive.Reader, ptr any) error {
			var v float64
			if err := r.Read(&v); err != nil {
				return err
			}
			*ptr.(*float32) = float32(v)
			return nil
		})
	primitive(reflect.TypeOf(float64(0)), archive.EntityFloat,
		func(w archive.Writer, ptr any) error { return w.Write(*ptr.(*float64)) },
		func(r archive.Reader, ptr any) error { return r.Read(ptr) })
	primitive(reflect.TypeOf(false), archive.EntityBool,
		func(w archive.Writer, ptr any) error { return w.Write(*ptr.(*bool)) },
		func(r archive.Reader, ptr any) error { return r.Read(ptr) })
	primitive(reflect.TypeOf(""), archive.EntityString,
		func(w archive.Writer, ptr any) error { return w.Write(*ptr.(*string)) },
		func(r archive.Reader, ptr any) error { return r.Read(ptr) })

	// time.Duration is archived as a {seconds, nanoseconds} tuple, matching
	// the original's chrono representation.
	registerDuration()
}

func registerIntKind[T ~int | ~int8 | ~int16 | ~int32 | ~int64]() {
	var zero T
	t := reflect.TypeOf(zero)
	primitive(t, archive.EntityInt,
		func(w archive.Writer, ptr any) error { return w.Write(int64(*ptr.(*T))) },
		func(r archive.Reader, ptr any) error {
			var v int64
			if err := r.Read(&v); err != nil {
				return err
			}
			*ptr.(*T) = T(v)
			return nil
		})
}

func registerUintKind[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64]() {
	var zero T
	t := reflect.TypeOf(zero)
	primitive(t, archive.EntityInt,
		func(w archive.Writer, ptr any) error { return w.Write(uint64(*ptr.(*T))) },
		func(r archive.Reader, ptr any) error {
			var v uint64
			if err := r.Read(&v); err != nil {
				return err
			}
			*ptr.(*T) = T(v)
			return nil
		})
}

// durationTuple is the wire shape for time.Duration: seconds + leftover
// nanoseconds, mirroring the original's two-field chrono tuple.
type durationTuple struct {
	Seconds int64 `meta:"seconds"`
	Nanos   int32 `meta:"nanos"`
}

func registerDuration() {
	t := reflect.TypeOf(time.Duration(0))
	register(t, &Metadata{
		kind:   KindPrimitive,
		goType: t,
		name:   "time.Duration",
		control: scalarControl{
			entity: archive.EntityTuple,
			archive: func(w archive.Writer, ptr any) error {
				d := *ptr.(*time.Duration)
				sec := int64(d / time.Second)
				nsec := int32(d % time.Second)
				if err := w.ArrayPush(2); err != nil {
					return err
				}
				if err := w.Write(sec); err != nil {
					return err
				}
				if err := w.Write(nsec); err != nil {
					return err
				}
				return w.ArrayPop()
			},
			restore: func(r archive.Reader, ptr any) error {
				key, err := r.BeginArray()
				if err != nil {
					return err
				}
				var sec int64
				var nsec int32
				if err := r.Read(&sec); err != nil {
					return err
				}
				if err := r.Read(&nsec); err != nil {
					return err
				}
				if err := r.EndArray(key); err != nil {
					return err
				}
				*ptr.(*time.Duration) = time.Duration(sec)*time.Second + time.Duration(nsec)
				return nil
			},
		},
	})
}

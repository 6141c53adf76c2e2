package metadata

import (
	"fmt"
	"sort"

	"github.com/ocx/meshrpc/internal/archive"
)

// Archive writes ptr (a pointer to a value described by m) onto w, driving
// whichever Writer scope calls m's kind requires. This is the single place
// that understands how Metadata kinds map onto archive.Writer calls; every
// codec and every caller (service table, session) goes through it.
func Archive(w archive.Writer, m *Metadata, ptr any) error {
	switch m.kind {
	case KindPrimitive:
		return m.control.Archive(w, ptr)

	case KindTuple:
		if err := w.ArrayPush(len(m.properties)); err != nil {
			return err
		}
		for _, p := range m.properties {
			fp := p.FieldPtr(ptr)
			if p.Optional && isEmptyOptional(p.Type, fp) {
				if err := w.Write(nil); err != nil {
					return err
				}
				continue
			}
			if err := Archive(w, p.Type, fp); err != nil {
				return err
			}
		}
		return w.ArrayPop()

	case KindObject:
		cfg := w.Config()
		props := m.properties
		if cfg.UseIntegerKey {
			props = append([]Property(nil), m.properties...)
			sort.SliceStable(props, func(i, j int) bool { return props[i].IntKey < props[j].IntKey })
		}
		count := 0
		for _, p := range props {
			if p.Optional && isEmptyOptional(p.Type, p.FieldPtr(ptr)) {
				continue
			}
			count++
		}
		if err := w.ObjectPush(count); err != nil {
			return err
		}
		for _, p := range props {
			fp := p.FieldPtr(ptr)
			if p.Optional && isEmptyOptional(p.Type, fp) {
				continue
			}
			if err := w.WriteKeyNext(); err != nil {
				return err
			}
			if cfg.UseIntegerKey {
				if err := w.Write(int64(p.IntKey)); err != nil {
					return err
				}
			} else {
				if err := w.Write(p.Name); err != nil {
					return err
				}
			}
			if err := Archive(w, p.Type, fp); err != nil {
				return err
			}
		}
		return w.ObjectPop()

	case KindContainer:
		c := m.container
		if c.IsDict() {
			keys := c.Keys(ptr)
			if err := w.ObjectPush(len(keys)); err != nil {
				return err
			}
			for _, k := range keys {
				if err := w.WriteKeyNext(); err != nil {
					return err
				}
				if err := w.Write(k); err != nil {
					return err
				}
				if err := Archive(w, c.Element(), c.At(ptr, k)); err != nil {
					return err
				}
			}
			return w.ObjectPop()
		}
		n := c.Len(ptr)
		if err := w.ArrayPush(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := Archive(w, c.Element(), c.Elem(ptr, i)); err != nil {
				return err
			}
		}
		return w.ArrayPop()

	default:
		return fmt.Errorf("metadata: archive: unhandled kind %v", m.kind)
	}
}

// Restore reads the wire representation for m out of r into ptr.
func Restore(r archive.Reader, m *Metadata, ptr any) error {
	switch m.kind {
	case KindPrimitive:
		if _, isOptional := m.control.(optionalControl); !isOptional && r.IsNullNext() {
			var discard any
			return r.Read(&discard)
		}
		return m.control.Restore(r, ptr)

	case KindTuple:
		key, err := r.BeginArray()
		if err != nil {
			return err
		}
		for _, p := range m.properties {
			fp := p.FieldPtr(ptr)
			if p.Optional && r.IsNullNext() {
				var discard any
				if err := r.Read(&discard); err != nil {
					return err
				}
				continue
			}
			if err := Restore(r, p.Type, fp); err != nil {
				return err
			}
		}
		return r.EndArray(key)

	case KindObject:
		cfg := r.Config()
		key, err := r.BeginObject()
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(m.properties))
		for {
			brk, err := r.ShouldBreak(key)
			if err != nil {
				return err
			}
			if brk {
				break
			}
			if err := r.ReadKeyNext(); err != nil {
				return err
			}
			var prop Property
			var found bool
			if cfg.UseIntegerKey {
				var ik int64
				if err := r.Read(&ik); err != nil {
					return err
				}
				prop, found = m.PropertyByIntKey(int(ik))
			} else {
				var name string
				if err := r.Read(&name); err != nil {
					return err
				}
				prop, found = m.PropertyByName(name)
			}
			if !found {
				if !cfg.AllowUnknownArgument {
					return archive.ErrUnknownEntity
				}
				var discard any
				if err := r.Read(&discard); err != nil {
					return err
				}
				continue
			}
			seen[prop.Name] = true
			if err := Restore(r, prop.Type, prop.FieldPtr(ptr)); err != nil {
				return err
			}
		}
		if !cfg.AllowMissingArgument && !cfg.MergeOnRead {
			for _, p := range m.properties {
				if !p.Optional && !seen[p.Name] {
					return archive.ErrMissingEntity
				}
			}
		}
		return r.EndObject(key)

	case KindContainer:
		c := m.container
		if c.IsDict() {
			key, err := r.BeginObject()
			if err != nil {
				return err
			}
			for {
				brk, err := r.ShouldBreak(key)
				if err != nil {
					return err
				}
				if brk {
					break
				}
				if err := r.ReadKeyNext(); err != nil {
					return err
				}
				var k any
				if err := r.Read(&k); err != nil {
					return err
				}
				slot := c.Put(ptr, k)
				if err := Restore(r, c.Element(), slot); err != nil {
					return err
				}
				c.Store(ptr, k, slot)
			}
			return r.EndObject(key)
		}
		key, err := r.BeginArray()
		if err != nil {
			return err
		}
		c.Clear(ptr)
		if n, err := r.ElemLeft(); err == nil && n >= 0 {
			c.Reserve(ptr, n)
		}
		for {
			brk, err := r.ShouldBreak(key)
			if err != nil {
				return err
			}
			if brk {
				break
			}
			slot := c.Emplace(ptr)
			if err := Restore(r, c.Element(), slot); err != nil {
				return err
			}
		}
		return r.EndArray(key)

	default:
		return fmt.Errorf("metadata: restore: unhandled kind %v", m.kind)
	}
}

func isEmptyOptional(m *Metadata, fieldPtr any) bool {
	if m.kind == KindPrimitive {
		return m.control.RequirementStatus(fieldPtr) == OptionalEmpty
	}
	return false
}

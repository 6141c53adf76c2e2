// Package objectview defines the type-erased (metadata, pointer) pairs that
// cross the Session <-> ProtocolAdapter boundary. View and Shared are two
// distinct concrete types — never an interface hierarchy — so that borrowed
// and shared ownership stay visibly separate at every call site.
package objectview

import "github.com/ocx/meshrpc/internal/metadata"

// View is a borrowed (metadata, pointer) pair. The pointee is not owned by
// the View; it must outlive every use of it. Sessions build Views over
// caller-owned parameter/return buffers.
type View struct {
	Meta *metadata.Metadata
	Ptr  any // always a pointer to the underlying Go value
}

// IsEmpty reports the "no return value" / "void" case used throughout the
// session and protocol adapter.
func (v View) IsEmpty() bool {
	return v.Meta == nil || v.Ptr == nil
}

// Of builds a View over ptr, which must be a non-nil pointer.
func Of(ptr any) View {
	if ptr == nil {
		return View{}
	}
	return View{Meta: metadata.Of(ptr), Ptr: ptr}
}

// ConstView is the read-only counterpart of View, used for outbound
// parameters where the session must not mutate the caller's value.
type ConstView struct {
	Meta *metadata.Metadata
	Ptr  any
}

// ConstOf builds a ConstView over ptr (pointer or value; pointers are
// dereferenced conceptually at archive time, never mutated).
func ConstOf(v any) ConstView {
	if v == nil {
		return ConstView{}
	}
	return ConstView{Meta: metadata.Of(v), Ptr: v}
}

// IsEmpty reports the "no return value" / "void" case, mirroring View's.
func (v ConstView) IsEmpty() bool {
	return v.Meta == nil || v.Ptr == nil
}

// Shared carries shared ownership of a result buffer — used for handler
// return values, which must outlive the handler goroutine that produced
// them until the reply has been archived onto the wire.
type Shared struct {
	Meta *metadata.Metadata
	Val  any
}

// View returns a borrowed View over the shared value. The returned View is
// only valid as long as the Shared itself is referenced somewhere.
func (s Shared) View() View {
	if s.Meta == nil {
		return View{}
	}
	return View{Meta: s.Meta, Ptr: s.Val}
}

// SharedOf boxes v (already a pointer) as a Shared value.
func SharedOf(v any) Shared {
	if v == nil {
		return Shared{}
	}
	return Shared{Meta: metadata.Of(v), Val: v}
}

// ConstView returns a read-only ConstView over the shared value, for handing
// a handler's result straight to ProtocolAdapter.SendReplyResult.
func (s Shared) ConstView() ConstView {
	if s.Meta == nil {
		return ConstView{}
	}
	return ConstView{Meta: s.Meta, Ptr: s.Val}
}

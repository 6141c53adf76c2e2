// Package archive defines the SAX-style, type-directed serialization
// contract shared by every concrete codec (see internal/msgpack) and by the
// reflection metadata registry (see internal/metadata).
//
// A Writer/Reader pair never knows the concrete wire format; they only see
// entity-typed primitives and scoped array/object/binary regions identified
// by a ContextKey. This mirrors the msgpack-rpc protocol adapter, which
// drives a Writer/Reader without caring which codec backs them.
package archive

import "errors"

// EntityType is the SAX-level kind of the value currently being read or
// written. It is the archive layer's only notion of "type" — concrete Go
// types are resolved one level up, by the metadata registry.
type EntityType int

const (
	EntityNull EntityType = iota
	EntityBool
	EntityInt
	EntityFloat
	EntityString
	EntityBinary
	EntityArray
	EntityTuple
	EntityDictionary
	EntityObject
)

func (e EntityType) String() string {
	switch e {
	case EntityNull:
		return "null"
	case EntityBool:
		return "bool"
	case EntityInt:
		return "int"
	case EntityFloat:
		return "float"
	case EntityString:
		return "string"
	case EntityBinary:
		return "binary"
	case EntityArray:
		return "array"
	case EntityTuple:
		return "tuple"
	case EntityDictionary:
		return "dictionary"
	case EntityObject:
		return "object"
	default:
		return "unknown"
	}
}

// ContextKey is the opaque token returned by every Begin* call and required
// by the matching End* call. Passing a foreign or stale key to an End* call
// is a programming error the Reader/Writer must detect (ErrInvalidContext).
type ContextKey uint64

// Config carries the per-stream encode/decode flags shared by every codec.
type Config struct {
	// UseIntegerKey archives Object properties by their integer key instead
	// of their string name. Must match between peers; a mismatch surfaces
	// as InvalidParameter on the receiving side (protocol-layer concern).
	UseIntegerKey bool

	// AllowMissingArgument suppresses MissingEntity when an Object read
	// completes without having seen every required property.
	AllowMissingArgument bool

	// AllowUnknownArgument silently discards unrecognized Object keys
	// instead of raising UnknownEntity.
	AllowUnknownArgument bool

	// MergeOnRead, when set, also suppresses MissingEntity on Object reads,
	// so a partial map restores into a pre-populated destination. Object
	// restores never zero the destination first, so unseen fields keep their
	// current value whether or not this is set.
	MergeOnRead bool
}

// Failure taxonomy shared by every codec and the protocol adapters built on
// top of them.
//
// StreamError and UnexpectedEndOfFile are fatal at the archive layer; every
// other value is recoverable and left for the protocol adapter to turn into
// a session warning.
var (
	ErrStreamError          = errors.New("archive: stream error")
	ErrUnexpectedEndOfFile  = errors.New("archive: unexpected end of file")
	ErrParseFailed          = errors.New("archive: parse failed")
	ErrTypeMismatch         = errors.New("archive: type mismatch")
	ErrCheckFailed          = errors.New("archive: check failed")
	ErrInvalidContext       = errors.New("archive: invalid context key")
	ErrRecoverableParse     = errors.New("archive: recoverable parse failure")
	ErrUnknownEntity        = errors.New("archive: unknown entity")
	ErrMissingEntity        = errors.New("archive: missing required entity")
)

// IsFatal reports whether err should terminate the owning session rather
// than merely being surfaced as a protocol warning.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStreamError) || errors.Is(err, ErrUnexpectedEndOfFile)
}

// Writer is the SAX-style typed encoder contract. Implementations (see
// internal/msgpack) must enforce matching Begin*/End* nesting themselves;
// callers are expected to pair every *Push with exactly one *Pop.
type Writer interface {
	// Config reports the flags this writer was constructed with.
	Config() Config

	// Write encodes a single primitive value (bool, integer kinds, float
	// kinds, string, nil). Compound values are written via the scope calls
	// below, element by element.
	Write(v any) error

	ArrayPush(n int) error
	ArrayPop() error

	ObjectPush(n int) error
	ObjectPop() error

	// WriteKeyNext must be called immediately before writing each key of an
	// object scope, mirroring the Reader's ReadKeyNext contract.
	WriteKeyNext() error

	BinaryPush(n int) error
	BinaryWriteSome(p []byte) (int, error)
	BinaryPop() error

	// Flush commits any internally buffered writes to the backing stream.
	Flush() error
}

// Reader is the SAX-style typed decoder contract.
type Reader interface {
	Config() Config

	// Read decodes the next primitive value into dst, a pointer to a
	// primitive Go value. TypeMismatch is returned when the wire entity
	// type cannot convert to *dst's type.
	Read(dst any) error

	BeginArray() (ContextKey, error)
	EndArray(key ContextKey) error

	BeginObject() (ContextKey, error)
	EndObject(key ContextKey) error

	// ReadKeyNext must be called exactly once before each key/value pair
	// is read inside an object scope. Calling it twice, or skipping it,
	// is ErrCheckFailed.
	ReadKeyNext() error

	BeginBinary() (n int, key ContextKey, err error)
	BinaryReadSome(p []byte) (int, error)
	EndBinary(key ContextKey) error

	// ElemLeft reports how many elements remain in the innermost open
	// scope, when the wire format makes that knowable up front.
	ElemLeft() (int, error)

	// ShouldBreak is the only legal termination test for containers whose
	// length isn't known ahead of time (e.g. streamed maps).
	ShouldBreak(key ContextKey) (bool, error)

	// TypeNext peeks the entity type of the next value without consuming
	// it. Legal at any point between element reads.
	TypeNext() (EntityType, error)

	IsNullNext() bool
}

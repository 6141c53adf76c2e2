package session

import (
	"encoding/json"
	"fmt"

	"github.com/ocx/meshrpc/internal/archive"
)

// ReplyError wraps the payload of a REPLY frame's error slot: whatever the
// peer's handler raised, JSON-encoded the same way the original dumps the
// error object into a JSON string writer before handing it to the waiting
// caller.
type ReplyError struct {
	// Detail is the peer's error payload. A plain string payload is kept
	// verbatim; any richer shape (object, array) is JSON-encoded.
	Detail string
}

func (e *ReplyError) Error() string { return e.Detail }

// decodeAny reads one arbitrarily-shaped value off r into a generic Go
// value (nil, bool, int64, float64, string, []byte, []any, map[string]any),
// for payloads (REPLY errors) whose shape isn't known ahead of time.
// Grounded on internal/metadata/driver.go's dictionary/object restore loop,
// generalized since the destination isn't a registered Metadata here.
func decodeAny(r archive.Reader) (any, error) {
	et, err := r.TypeNext()
	if err != nil {
		return nil, err
	}

	switch et {
	case archive.EntityArray:
		return decodeAnyArray(r)
	case archive.EntityDictionary:
		return decodeAnyObject(r)
	default:
		var v any
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeAnyArray(r archive.Reader) (any, error) {
	key, err := r.BeginArray()
	if err != nil {
		return nil, err
	}
	n, err := r.ElemLeft()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := decodeAny(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := r.EndArray(key); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAnyObject(r archive.Reader) (any, error) {
	key, err := r.BeginObject()
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for {
		brk, err := r.ShouldBreak(key)
		if err != nil {
			return nil, err
		}
		if brk {
			break
		}
		if err := r.ReadKeyNext(); err != nil {
			return nil, err
		}
		var k any
		if err := r.Read(&k); err != nil {
			return nil, err
		}
		v, err := decodeAny(r)
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(k)] = v
	}
	if err := r.EndObject(key); err != nil {
		return nil, err
	}
	return out, nil
}

// formatReplyErrorDetail renders a decoded REPLY error payload as a
// string: a string payload is kept as-is (the common "handler returned an
// error" case), anything richer is JSON-encoded.
func formatReplyErrorDetail(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(b)
}

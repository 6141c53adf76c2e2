package msgpack_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/msgpack"
)

func TestWriter_ScalarRoundTrip(t *testing.T) {
	// Reading into an any yields int64 for every integer encoding.
	cases := []struct{ in, want any }{
		{nil, nil}, {true, true}, {false, false}, {"hello world", "hello world"},
		{int64(-1), int64(-1)}, {int64(127), int64(127)}, {int64(-33), int64(-33)},
		{uint64(300), int64(300)}, {float64(3.25), float64(3.25)},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		w := msgpack.NewWriter(&buf, archive.Config{})
		require.NoError(t, w.Write(c.in))
		require.NoError(t, w.Flush())

		r := msgpack.NewReader(&buf, archive.Config{})
		var out any
		require.NoError(t, r.Read(&out))
		require.Equal(t, c.want, out)
	}
}

func TestWriter_FixintBoundary(t *testing.T) {
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, w.Write(int64(5)))
	require.NoError(t, w.Flush())
	require.Equal(t, []byte{0x05}, buf.Bytes())
}

func TestArrayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, w.ArrayPush(2))
	require.NoError(t, w.Write(int64(1)))
	require.NoError(t, w.Write("two"))
	require.NoError(t, w.ArrayPop())
	require.NoError(t, w.Flush())

	r := msgpack.NewReader(&buf, archive.Config{})
	key, err := r.BeginArray()
	require.NoError(t, err)
	left, err := r.ElemLeft()
	require.NoError(t, err)
	require.Equal(t, 2, left)

	var a int64
	var b string
	require.NoError(t, r.Read(&a))
	require.NoError(t, r.Read(&b))
	require.Equal(t, int64(1), a)
	require.Equal(t, "two", b)
	require.NoError(t, r.EndArray(key))
}

func TestObjectRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, w.ObjectPush(1))
	require.NoError(t, w.WriteKeyNext())
	require.NoError(t, w.Write("name"))
	require.NoError(t, w.Write("echo"))
	require.NoError(t, w.ObjectPop())
	require.NoError(t, w.Flush())

	r := msgpack.NewReader(&buf, archive.Config{})
	key, err := r.BeginObject()
	require.NoError(t, err)
	brk, err := r.ShouldBreak(key)
	require.NoError(t, err)
	require.False(t, brk)
	require.NoError(t, r.ReadKeyNext())
	var k, v string
	require.NoError(t, r.Read(&k))
	require.NoError(t, r.Read(&v))
	require.Equal(t, "name", k)
	require.Equal(t, "echo", v)
	brk, err = r.ShouldBreak(key)
	require.NoError(t, err)
	require.True(t, brk)
	require.NoError(t, r.EndObject(key))
}

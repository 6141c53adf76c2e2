package metadata_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/msgpack"
)

type echoParams struct {
	Message string
	Count   int
	Tags    []string
}

func TestAutoObject_RoundTrip(t *testing.T) {
	in := echoParams{Message: "hi", Count: 3, Tags: []string{"a", "b"}}
	m := metadata.Of(&in)
	require.Equal(t, metadata.KindObject, m.Kind())

	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, metadata.Archive(w, m, &in))
	require.NoError(t, w.Flush())

	var out echoParams
	r := msgpack.NewReader(&buf, archive.Config{})
	require.NoError(t, metadata.Restore(r, m, &out))
	require.Equal(t, in, out)
}

type pair struct {
	A int
	B string
}

func TestTupleFactory_RoundTrip(t *testing.T) {
	m := metadata.TupleFactoryOf[pair]().Property("A").Property("B").Build()
	require.Equal(t, metadata.KindTuple, m.Kind())

	in := pair{A: 7, B: "seven"}
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, metadata.Archive(w, m, &in))
	require.NoError(t, w.Flush())

	var out pair
	r := msgpack.NewReader(&buf, archive.Config{})
	require.NoError(t, metadata.Restore(r, m, &out))
	require.Equal(t, in, out)
}

func TestOptionalPointer_NilRoundTrip(t *testing.T) {
	type withOptional struct {
		Name string
		Age  *int
	}
	in := withOptional{Name: "nil age"}
	m := metadata.Of(&in)

	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, metadata.Archive(w, m, &in))
	require.NoError(t, w.Flush())

	var out withOptional
	r := msgpack.NewReader(&buf, archive.Config{})
	require.NoError(t, metadata.Restore(r, m, &out))
	require.Nil(t, out.Age)
	require.Equal(t, "nil age", out.Name)
}

func TestMapContainer_RoundTrip(t *testing.T) {
	in := map[string]int{"x": 1, "y": 2}
	m := metadata.Of(in)
	require.Equal(t, metadata.KindContainer, m.Kind())

	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf, archive.Config{})
	require.NoError(t, metadata.Archive(w, m, &in))
	require.NoError(t, w.Flush())

	out := map[string]int{}
	r := msgpack.NewReader(&buf, archive.Config{})
	require.NoError(t, metadata.Restore(r, m, &out))
	require.Equal(t, in, out)
}

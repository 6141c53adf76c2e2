package bytestream_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/bytestream"
)

func TestPipeStream_WriteThenRead(t *testing.T) {
	a, b := bytestream.NewPipe()
	defer a.Close()
	defer b.Close()

	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.Equal(t, uint64(5), a.Totals().BytesWritten)
	require.Equal(t, uint64(5), b.Totals().BytesRead)
}

func TestPipeStream_CloseUnblocksRead(t *testing.T) {
	a, b := bytestream.NewPipe()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := a.Read(buf)
		done <- err
	}()
	a.Close()
	err := <-done
	require.Error(t, err)
}

package eventproc_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/eventproc"
)

func TestInlineEventProc_RunsSynchronously(t *testing.T) {
	var p eventproc.InlineEventProc

	var ran bool
	p.PostRPCCompletion(func() { ran = true })
	require.True(t, ran)

	ran = false
	p.PostHandlerCallback(func() { ran = true })
	require.True(t, ran)

	ran = false
	p.PostInternalMessage(func() { ran = true })
	require.True(t, ran)
}

func TestGoroutineEventProc_PreservesPerLaneOrder(t *testing.T) {
	p := eventproc.NewGoroutineEventProc()
	defer p.Close()

	const n = 100
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		i := i
		p.PostHandlerCallback(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i, got[i])
	}
}

func TestGoroutineEventProc_LanesRunIndependently(t *testing.T) {
	p := eventproc.NewGoroutineEventProc()
	defer p.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	p.PostHandlerCallback(func() { <-block })
	p.PostRPCCompletion(func() { wg.Done() })

	waitOrTimeout(t, &wg, time.Second)
	close(block)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for posted work to run")
	}
}

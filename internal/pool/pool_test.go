package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/pool"
)

func TestPool_ReusesReleasedValue(t *testing.T) {
	built := 0
	p := pool.New(2, func() *int {
		built++
		v := built
		return &v
	}, func(v *int) { *v = -1 })

	a := p.Get()
	require.Equal(t, 1, *a)
	p.Put(a)

	b := p.Get()
	require.Same(t, a, b)
	require.Equal(t, -1, *b)
	require.Equal(t, 1, built)
}

func TestPool_DropsBeyondCapacity(t *testing.T) {
	p := pool.New(1, func() *int { v := 0; return &v }, nil)
	a := p.Get()
	b := p.Get()
	p.Put(a)
	p.Put(b)
	require.Equal(t, 2, p.Live())

	c := p.Get()
	require.Same(t, a, c)
	p.Get()
	require.Equal(t, 3, p.Live())
}

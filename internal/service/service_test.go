package service_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/service"
)

func TestRoute_ReturnValueShape(t *testing.T) {
	b := service.NewBuilder()
	require.NoError(t, b.Route("echo", func(msg string) string {
		return "echo: " + msg
	}))
	table := b.Build()

	h, ok := table.Lookup("echo")
	require.True(t, ok)
	require.Equal(t, 1, h.NumParams())

	slot := h.Checkout()
	*(slot.ParamViews()[0].Ptr.(*string)) = "hi"
	shared, err := slot.Invoke(service.Profile{LocalID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "echo: hi", *(shared.Val.(*string)))
	slot.Release()
}

func TestRoute_ErrorShape(t *testing.T) {
	b := service.NewBuilder()
	require.NoError(t, b.Route("fail", func(code int) (string, error) {
		if code != 0 {
			return "", fmt.Errorf("bad code %d", code)
		}
		return "ok", nil
	}))
	table := b.Build()
	h, _ := table.Lookup("fail")

	slot := h.Checkout()
	*(slot.ParamViews()[0].Ptr.(*int)) = 7
	_, err := slot.Invoke(service.Profile{})
	require.Error(t, err)
}

func TestRoute_DuplicateMethodRejected(t *testing.T) {
	b := service.NewBuilder()
	require.NoError(t, b.Route("m", func() {}))
	err := b.Route("m", func() {})
	require.ErrorIs(t, err, service.ErrDuplicateMethod)
}

func TestRoute_ExplicitRetParamShape(t *testing.T) {
	b := service.NewBuilder()
	require.NoError(t, b.Route("sum", func(ret *int, a, b int) {
		*ret = a + b
	}))
	table := b.Build()
	h, _ := table.Lookup("sum")

	slot := h.Checkout()
	views := slot.ParamViews()
	*(views[0].Ptr.(*int)) = 3
	*(views[1].Ptr.(*int)) = 4
	shared, err := slot.Invoke(service.Profile{})
	require.NoError(t, err)
	require.Equal(t, 7, *(shared.Val.(*int)))
}

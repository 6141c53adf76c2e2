package monitor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/monitor"
)

type countingMonitor struct {
	created, expired, warnings, errs int
}

func (m *countingMonitor) OnSessionCreated(monitor.Profile)        { m.created++ }
func (m *countingMonitor) OnSessionExpired(monitor.Profile)        { m.expired++ }
func (m *countingMonitor) OnReceiveWarning(monitor.Profile, string) { m.warnings++ }
func (m *countingMonitor) OnHandlerError(monitor.Profile, string, error) { m.errs++ }

func TestMultiMonitor_FansOutToEveryMember(t *testing.T) {
	a, b := &countingMonitor{}, &countingMonitor{}
	m := monitor.MultiMonitor{a, b}

	p := monitor.Profile{LocalID: "l1"}
	m.OnSessionCreated(p)
	m.OnSessionExpired(p)
	m.OnReceiveWarning(p, "bad format")
	m.OnHandlerError(p, "echo", errors.New("boom"))

	require.Equal(t, 1, a.created)
	require.Equal(t, 1, b.created)
	require.Equal(t, 1, a.expired)
	require.Equal(t, 1, a.warnings)
	require.Equal(t, 1, b.errs)
}

func TestNoopMonitor_DoesNotPanic(t *testing.T) {
	var m monitor.NoopMonitor
	require.NotPanics(t, func() {
		m.OnSessionCreated(monitor.Profile{})
		m.OnSessionExpired(monitor.Profile{})
		m.OnReceiveWarning(monitor.Profile{}, "x")
		m.OnHandlerError(monitor.Profile{}, "m", errors.New("e"))
	})
}

package statsmirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corepool/dbpool/internal/config"
)

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	cfg := &config.Config{
		Process: config.ProcessConfig{
			StatsMirror: config.StatsMirrorConfig{
				Enabled:         true,
				Addr:            "127.0.0.1:0",
				PublishInterval: time.Hour,
				DialTimeout:     time.Millisecond,
			},
		},
	}
	m := New(cfg, nil)
	require.NotNil(t, m)
	return m
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, New(cfg, nil))
}

func TestNotifyEnqueuesEvent(t *testing.T) {
	m := newTestMirror(t)

	m.Notify("pool-a", "acquired")

	select {
	case ev := <-m.events:
		assert.Equal(t, "pool-a", ev.Pool)
		assert.Equal(t, "acquired", ev.Kind)
		assert.NotEmpty(t, ev.At)
	default:
		t.Fatal("expected Notify to enqueue an event")
	}
}

func TestNotifyDropsOnFullBuffer(t *testing.T) {
	m := newTestMirror(t)

	for i := 0; i < cap(m.events); i++ {
		m.Notify("pool-a", "acquired")
	}
	require.Len(t, m.events, cap(m.events))

	// The buffer is full; Notify must not block the caller.
	done := make(chan struct{})
	go func() {
		m.Notify("pool-a", "released")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full event buffer")
	}
	assert.Len(t, m.events, cap(m.events), "the dropped event must not grow the buffer")
}

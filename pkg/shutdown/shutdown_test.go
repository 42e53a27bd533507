package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager_RunsAllCallbacks(t *testing.T) {
	m := NewManager()
	var n atomic.Int32
	m.OnShutdown("a", func(ctx context.Context) error { n.Add(1); return nil })
	m.OnShutdown("b", func(ctx context.Context) error { n.Add(1); return errors.New("boom") })

	ok := m.Shutdown(context.Background())
	assert.True(t, ok)
	assert.Equal(t, int32(2), n.Load())
}

func TestManager_Timeout(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, m.Shutdown(ctx))
}

func TestManager_Empty(t *testing.T) {
	assert.True(t, NewManager().Shutdown(context.Background()))
}

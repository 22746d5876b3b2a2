package warden

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown(t *testing.T) {
	t.Run("raise is one-way and idempotent", func(t *testing.T) {
		sd := NewShutdown(context.Background())
		assert.False(t, sd.Raised())

		sd.Raise()
		sd.Raise()
		assert.True(t, sd.Raised())
	})

	t.Run("broadcasts to every awaiter", func(t *testing.T) {
		sd := NewShutdown(context.Background())

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-sd.Done()
			}()
		}

		sd.Raise()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("awaiters not woken after Raise")
		}
	})

	t.Run("raised by parent context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sd := NewShutdown(ctx)

		cancel()

		select {
		case <-sd.Done():
		case <-time.After(time.Second):
			t.Fatal("parent cancellation did not raise shutdown")
		}
		require.True(t, sd.Raised())
	})
}

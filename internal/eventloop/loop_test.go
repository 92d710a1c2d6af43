package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoopRunsInOrder(t *testing.T) {
	l := startLoop(t)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Post(func() { order = append(order, i) }))
	}
	// Call runs after everything posted before it
	require.True(t, l.Call(func() {}))

	var got []int
	l.Call(func() { got = append(got, order...) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoopGoPostsResultBack(t *testing.T) {
	l := startLoop(t)

	result := make(chan error, 1)
	sentinel := errors.New("boom")
	l.Go(context.Background(), func(ctx context.Context) error {
		return sentinel
	}, func(err error) {
		result <- err
	})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, sentinel)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for task result")
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	l := startLoop(t)

	t.Run("Panicking handler", func(t *testing.T) {
		l.Post(func() { panic("handler") })
		assert.True(t, l.Call(func() {}), "loop should keep running after a handler panic")
	})

	t.Run("Panicking task", func(t *testing.T) {
		result := make(chan error, 1)
		l.Go(context.Background(), func(ctx context.Context) error {
			panic("task")
		}, func(err error) { result <- err })

		select {
		case err := <-result:
			require.Error(t, err)
			assert.Contains(t, err.Error(), "task panicked")
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for panicking task result")
		}
	})
}

func TestLoopStop(t *testing.T) {
	l := New(1, nil)
	ctx := context.Background()

	go l.Run(ctx)
	require.True(t, l.Call(func() {}))

	l.Stop()
	l.Stop()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Call(func() {}))

	t.Run("Tasks finish after stop and results are dropped", func(t *testing.T) {
		var finished, delivered int32
		release := make(chan struct{})
		l.Go(ctx, func(ctx context.Context) error {
			<-release
			atomic.StoreInt32(&finished, 1)
			return nil
		}, func(error) { atomic.StoreInt32(&delivered, 1) })

		close(release)
		l.Wait()
		assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
		assert.Equal(t, int32(0), atomic.LoadInt32(&delivered))
	})
}

package async

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGoRunsDetached(t *testing.T) {
	done := make(chan struct{})

	SafeGo(testLogger(), time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})

	SafeGo(testLogger(), time.Second, "panicking task", func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	// Reaching here without the test process dying is the assertion.
}

func TestSafeGoSurvivesErrors(t *testing.T) {
	done := make(chan struct{})

	SafeGo(testLogger(), time.Second, "failing task", func(ctx context.Context) error {
		close(done)
		return errors.New("delivery failed")
	})

	<-done
}

func TestWorkerPoolProcessesAll(t *testing.T) {
	pool := NewWorkerPool(4, "test", time.Second, testLogger())
	defer pool.Shutdown(time.Second)

	var count int64

	submitted := 0
	for submitted < 20 {
		err := pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		if err != nil {
			// Queue full under burst; back off and resubmit.
			time.Sleep(time.Millisecond)
			continue
		}
		submitted++
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) == 20
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPoolSubmitDoesNotBlockWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, "test", time.Second, testLogger())
	defer pool.Shutdown(time.Second)

	release := make(chan struct{})
	defer close(release)
	blocker := func(ctx context.Context) error {
		<-release
		return nil
	}

	// Occupy the worker, then fill the queue (workers*2 slots).
	require.NoError(t, pool.Submit(blocker))
	for i := 0; i < 10; i++ {
		if err := pool.Submit(blocker); err != nil {
			break
		}
	}

	start := time.Now()
	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestWorkerPoolIsolatesFailures(t *testing.T) {
	pool := NewWorkerPool(2, "test", time.Second, testLogger())
	defer pool.Shutdown(time.Second)

	var wg sync.WaitGroup
	var succeeded int64

	tasks := []func(context.Context) error{
		func(ctx context.Context) error { panic("one bad task") },
		func(ctx context.Context) error { return errors.New("another bad task") },
		func(ctx context.Context) error { atomic.AddInt64(&succeeded, 1); return nil },
		func(ctx context.Context) error { atomic.AddInt64(&succeeded, 1); return nil },
	}

	for _, task := range tasks {
		task := task
		wg.Add(1)
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			return task(ctx)
		}))
	}

	wg.Wait()
	assert.Equal(t, int64(2), atomic.LoadInt64(&succeeded))
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, "test", time.Second, testLogger())
	require.NoError(t, pool.Shutdown(time.Second))

	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWorkerPoolShutdownDrains(t *testing.T) {
	pool := NewWorkerPool(1, "test", time.Second, testLogger())

	var count int64
	submitted := 0
	for submitted < 3 {
		err := pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		if err != nil {
			time.Sleep(time.Millisecond)
			continue
		}
		submitted++
	}

	require.NoError(t, pool.Shutdown(2*time.Second))
	assert.Equal(t, int64(3), atomic.LoadInt64(&count))
}

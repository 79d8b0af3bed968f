package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsOperationsOneAtATime(t *testing.T) {
	l := NewLoop(16)
	defer l.Stop()

	var (
		inFlight int32
		overlap  int32
		counter  int
		wg       sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Call(context.Background(), func() {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				counter++
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, atomic.LoadInt32(&overlap), "operations overlapped")
}

func TestLoop_PanicIsReturnedAsError(t *testing.T) {
	l := NewLoop(1)
	defer l.Stop()

	err := l.Call(context.Background(), func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// The loop keeps serving after a panic.
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := NewLoop(1)
	l.Stop()
	l.Stop()

	err := l.Call(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoop_ContextBoundsEnqueue(t *testing.T) {
	l := NewLoop(0)
	defer l.Stop()

	release := make(chan struct{})
	go func() {
		_ = l.Call(context.Background(), func() { <-release })
	}()
	// Wait until the blocker occupies the loop.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		return errors.Is(l.Call(ctx, func() {}), context.DeadlineExceeded)
	}, time.Second, 10*time.Millisecond)
	close(release)
}

func TestRegistry_BuildsOncePerKey(t *testing.T) {
	var builds int32
	r := NewRegistry(func(key string) (*int32, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(5 * time.Millisecond)
		v := int32(len(key))
		return &v, nil
	})

	var wg sync.WaitGroup
	results := make([]*int32, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.Get("board-a")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_FailedBuildIsRetried(t *testing.T) {
	attempts := 0
	r := NewRegistry(func(key string) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("storage offline")
		}
		return "ok:" + key, nil
	})

	_, err := r.Get("k")
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())

	v, err := r.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "ok:k", v)
}

func TestRegistry_Shutdown(t *testing.T) {
	r := NewRegistry(func(key string) (string, error) { return key, nil })
	_, _ = r.Get("a")
	_, _ = r.Get("b")

	stopped := map[string]bool{}
	r.Shutdown(func(k, v string) { stopped[k] = true })
	assert.Equal(t, map[string]bool{"a": true, "b": true}, stopped)

	_, err := r.Get("a")
	assert.ErrorIs(t, err, ErrStopped)
}

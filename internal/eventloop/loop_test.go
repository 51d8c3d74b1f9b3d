package eventloop_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/eventloop"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := eventloop.New()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_Closed(t *testing.T) {
	l := eventloop.New()
	l.Close()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), eventloop.ErrClosed)

	select {
	case <-l.Closed():
	default:
		t.Fatal("Closed channel should be closed")
	}
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := eventloop.New()
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Do(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoop_AfterFunc(t *testing.T) {
	l := eventloop.New()
	defer l.Close()

	var fired atomic.Bool
	l.AfterFunc(10*time.Millisecond, func() { fired.Store(true) })
	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	l := eventloop.New()
	defer l.Close()

	var runs atomic.Int32
	d := eventloop.NewDebouncer(l, 30*time.Millisecond, func() { runs.Add(1) })

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Do(context.Background(), d.Trigger))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	l := eventloop.New()
	defer l.Close()

	var runs atomic.Int32
	d := eventloop.NewDebouncer(l, 20*time.Millisecond, func() { runs.Add(1) })

	require.NoError(t, l.Do(context.Background(), func() {
		d.Trigger()
		d.Stop()
	}))
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

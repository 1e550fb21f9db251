package futures

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

func TestFutureComplete(t *testing.T) {
	req := require.New(t)

	f := New[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Complete(1)
	}()

	v, err := f.Get(context.Background())
	req.NoError(err)
	req.Equal(1, v)
}

func TestFutureFirstCompletionWins(t *testing.T) {
	req := require.New(t)

	f := New[int]()

	req.True(f.Complete(1))
	req.False(f.Complete(2))
	req.False(f.Fail(errTest))

	v, err := f.Get(context.Background())
	req.NoError(err)
	req.Equal(1, v)
}

func TestFutureFail(t *testing.T) {
	req := require.New(t)

	f := New[int]()
	req.True(f.Fail(errTest))

	v, err := f.Get(context.Background())
	req.ErrorIs(err, errTest)
	req.Equal(0, v)
}

func TestFutureDiscard(t *testing.T) {
	req := require.New(t)

	f := New[string]()
	req.True(f.Discard())

	_, err := f.Get(context.Background())
	req.ErrorIs(err, ErrDiscarded)
}

func TestFutureDone(t *testing.T) {
	req := require.New(t)

	f := New[int]()

	select {
	case <-f.Done():
		req.Fail("future done before completion")
	default:
	}

	f.Complete(7)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		req.Fail("future not done after completion")
	}
}

func TestFutureGetContextCanceled(t *testing.T) {
	req := require.New(t)

	f := New[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx)
	req.ErrorIs(err, context.Canceled)

	// A canceled Get must not complete the future.
	f.Complete(5)
	v, err := f.Get(context.Background())
	req.NoError(err)
	req.Equal(5, v)
}

func TestFutureConcurrentReaders(t *testing.T) {
	req := require.New(t)

	f := New[int]()
	wg := sync.WaitGroup{}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Get(context.Background())
			require.NoError(t, err)
			require.Equal(t, 42, v)
		}()
	}

	f.Complete(42)
	wg.Wait()

	req.True(f.completed.Load())
}

package pq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueuePrivilegedFirst(t *testing.T) {
	req := require.New(t)

	t0 := time.Now()
	q := New[string]()

	q.Push(Item[string]{CallerID: "a", Privileged: true, EnqueuedAt: t0, Payload: "A"})
	q.Push(Item[string]{CallerID: "b", EnqueuedAt: t0.Add(time.Second), Payload: "B"})
	q.Push(Item[string]{CallerID: "c", Privileged: true, EnqueuedAt: t0.Add(2 * time.Second), Payload: "C"})

	var order []string
	for {
		it, ok := q.PopMin()
		if !ok {
			break
		}
		order = append(order, it.Payload)
	}

	req.Equal([]string{"A", "C", "B"}, order)
}

func TestQueueFIFOWithinClass(t *testing.T) {
	req := require.New(t)

	t0 := time.Now()
	q := New[int]()

	for i := 0; i < 5; i++ {
		q.Push(Item[int]{
			CallerID:   string(rune('a' + i)),
			EnqueuedAt: t0.Add(time.Duration(i) * time.Millisecond),
			Payload:    i,
		})
	}

	for i := 0; i < 5; i++ {
		it, ok := q.PopMin()
		req.True(ok)
		req.Equal(i, it.Payload)
	}
}

func TestQueueEqualTimestampsKeepSubmissionOrder(t *testing.T) {
	req := require.New(t)

	// A coarse or frozen clock can hand out identical enqueue times; the
	// sequence number keeps ordering strict.
	t0 := time.Now()
	q := New[int]()

	for i := 0; i < 10; i++ {
		q.Push(Item[int]{CallerID: string(rune('a' + i)), EnqueuedAt: t0, Payload: i})
	}

	for i := 0; i < 10; i++ {
		it, ok := q.PopMin()
		req.True(ok)
		req.Equal(i, it.Payload)
	}
}

func TestQueueContains(t *testing.T) {
	req := require.New(t)

	q := New[string]()
	req.False(q.Contains("a"))

	q.Push(Item[string]{CallerID: "a", EnqueuedAt: time.Now()})
	req.True(q.Contains("a"))
	req.False(q.Contains("b"))

	_, ok := q.PopMin()
	req.True(ok)
	req.False(q.Contains("a"))
	req.Equal(0, q.Len())
}

func TestQueuePopEmpty(t *testing.T) {
	req := require.New(t)

	q := New[string]()
	_, ok := q.PopMin()
	req.False(ok)
}

func TestQueueClear(t *testing.T) {
	req := require.New(t)

	t0 := time.Now()
	q := New[string]()
	q.Push(Item[string]{CallerID: "a", EnqueuedAt: t0.Add(time.Second), Payload: "A"})
	q.Push(Item[string]{CallerID: "b", Privileged: true, EnqueuedAt: t0, Payload: "B"})

	discarded := q.Clear()
	req.Len(discarded, 2)
	req.Equal("B", discarded[0].Payload)
	req.Equal("A", discarded[1].Payload)

	req.Equal(0, q.Len())
	req.False(q.Contains("a"))
	req.False(q.Contains("b"))
}

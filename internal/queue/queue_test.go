package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.WaitDequeueTimed(10 * time.Millisecond)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestWaitDequeueTimedTimeout(t *testing.T) {
	q := New[int]()
	start := time.Now()
	_, ok := q.WaitDequeueTimed(20 * time.Millisecond)
	elapsed := time.Since(start)

	require.False(t, ok)
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestWaitDequeueTimedWakesOnEnqueue(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = q.WaitDequeueTimed(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(42)
	wg.Wait()

	require.True(t, ok)
	require.Equal(t, 42, got)
}

func TestTryDequeueNonBlocking(t *testing.T) {
	q := New[string]()
	_, ok := q.TryDequeue()
	require.False(t, ok)

	q.Enqueue("a")
	v, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, "a", v)

	_, ok = q.TryDequeue()
	require.False(t, ok)
}

func TestCloseWakesWaiters(t *testing.T) {
	q := New[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitDequeueTimed(time.Minute)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked waiter")
	}
}

func TestConcurrentProducersConsumeAll(t *testing.T) {
	q := New[int]()
	const perProducer = 200
	const producers = 8

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, ok := q.TryDequeue()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, perProducer*producers, count)
}

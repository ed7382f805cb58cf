package dispatch

import (
	"sync"
	"testing"
)

func TestQueue_Async_PreservesOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() { got = append(got, i) })
	}

	var snapshot []int
	q.Sync(func() { snapshot = append(snapshot, got...) })

	if len(snapshot) != 100 {
		t.Fatalf("Expected 100 tasks to run before Sync, got %d", len(snapshot))
	}
	for i, v := range snapshot {
		if v != i {
			t.Fatalf("Expected task %d at position %d, got %d", i, i, v)
		}
	}
}

func TestQueue_Sync_FromManyGoroutines(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Sync(func() { counter++ })
		}()
	}
	wg.Wait()

	var final int
	q.Sync(func() { final = counter })
	if final != 50 {
		t.Errorf("Expected counter 50, got %d", final)
	}
}

func TestQueue_AsyncFromTask(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	done := make(chan string, 2)
	q.Async(func() {
		q.Async(func() { done <- "second" })
		done <- "first"
	})

	if first := <-done; first != "first" {
		t.Errorf("Expected nested task to run after its parent, got %q first", first)
	}
	<-done
}

func TestQueue_Stop_DrainsAndRejects(t *testing.T) {
	q := NewQueue("test")

	ran := 0
	for i := 0; i < 10; i++ {
		q.Async(func() { ran++ })
	}
	q.Stop()

	if ran != 10 {
		t.Errorf("Expected queued tasks to finish before Stop returns, got %d", ran)
	}

	q.Async(func() { ran++ })
	if q.Sync(func() { ran++ }) {
		t.Error("Expected Sync to report false after Stop")
	}
	if ran != 10 {
		t.Errorf("Expected no tasks to run after Stop, got %d", ran)
	}

	q.Stop()
}

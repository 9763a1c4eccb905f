package natives

import (
	"sync"
	"testing"
)

func TestQueue_DrainRunsInPostOrder(t *testing.T) {
	q := NewQueue()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	if n := q.Drain(); n != 5 {
		t.Fatalf("drained %d jobs, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", got)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after drain")
	}
}

func TestQueue_JobsPostedDuringDrainDeferToNext(t *testing.T) {
	q := NewQueue()
	ran := false
	q.Post(func() {
		q.Post(func() { ran = true })
	})
	q.Drain()
	if ran {
		t.Fatal("nested job ran in the same drain")
	}
	if n := q.Drain(); n != 1 || !ran {
		t.Fatalf("nested job should run on the next drain (n=%d ran=%v)", n, ran)
	}
}

func TestQueue_ConcurrentPost(t *testing.T) {
	q := NewQueue()
	const producers = 8
	const jobsEach = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < jobsEach; i++ {
				q.Post(func() {})
			}
		}()
	}
	wg.Wait()
	if n := q.Drain(); n != producers*jobsEach {
		t.Fatalf("drained %d jobs, want %d", n, producers*jobsEach)
	}
}

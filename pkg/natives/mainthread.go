package natives

import "sync"

// Queue is an explicit re-entry queue for work that must run on a thread
// the host chooses, typically its main thread. Producers call Post from
// any goroutine; the host calls Drain once per tick on the target thread.
// There is no ambient thread-local dispatch.
type Queue struct {
	mu   sync.Mutex
	jobs []func()
}

// NewQueue returns an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Post appends a job. It never blocks on job execution.
func (q *Queue) Post(job func()) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
}

// Drain runs every job queued at the moment of the call, in post order, on
// the calling goroutine, and returns how many ran. Jobs posted while
// draining run on the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()

	for _, job := range jobs {
		job()
	}
	return len(jobs)
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

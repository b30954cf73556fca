package eventbus

import (
	"sync"

	"github.com/erp/platform/internal/domain/event"
)

// task is one deferred (handler, event) pair
type task struct {
	sub *subscription
	evt event.Event
}

// deferredQueue holds async tasks until the next flush
type deferredQueue struct {
	mu    sync.Mutex
	tasks []task
}

func (q *deferredQueue) push(t task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

// drain takes ownership of every queued task. Tasks pushed afterwards go to the next drain.
func (q *deferredQueue) drain() []task {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.tasks
	q.tasks = nil
	return drained
}

// purge drops queued tasks matching pred and returns how many were dropped
func (q *deferredQueue) purge(pred func(task) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if !pred(t) {
			kept = append(kept, t)
		}
	}
	dropped := len(q.tasks) - len(kept)
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = task{}
	}
	q.tasks = kept
	return dropped
}

func (q *deferredQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *deferredQueue) clear() {
	q.mu.Lock()
	q.tasks = nil
	q.mu.Unlock()
}

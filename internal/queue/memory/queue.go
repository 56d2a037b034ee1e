// Package memory provides the in-process task queue feeding the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Queue is a bounded in-memory task queue with context-aware operations.
type Queue struct {
	ch      chan catalog.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue holding up to capacity tasks. Sizing it to the
// whole input lets every task be submitted without blocking.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan catalog.Task, capacity),
	}
}

// Enqueue pushes a task or returns if the context ends first.
func (q *Queue) Enqueue(ctx context.Context, task catalog.Task) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return fmt.Errorf("enqueue %s: %w", task.ID, catalog.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task. Tasks still buffered after Close are returned
// before ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (catalog.Task, error) {
	select {
	case <-ctx.Done():
		return catalog.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return catalog.Task{}, catalog.ErrQueueClosed
		}
		return task, nil
	}
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops further submissions. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

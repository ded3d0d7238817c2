package batch

import (
	"sync"

	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// urlQueue is a FIFO loaded once before workers start. A channel receive
// hands each URL to exactly one worker.
type urlQueue struct {
	ch chan string
}

func newURLQueue(urls []string) *urlQueue {
	q := &urlQueue{ch: make(chan string, len(urls))}
	for _, u := range urls {
		q.ch <- u
	}
	close(q.ch)
	return q
}

// next dequeues without blocking; ok is false once the queue is drained.
func (q *urlQueue) next() (url string, ok bool) {
	select {
	case url, ok = <-q.ch:
		return url, ok
	default:
		return "", false
	}
}

// results is an append-only outcome list shared by workers.
type results struct {
	mu    sync.Mutex
	items []model.Outcome
}

func newResults(capacity int) *results {
	return &results{items: make([]model.Outcome, 0, capacity)}
}

func (r *results) append(o model.Outcome) {
	r.mu.Lock()
	r.items = append(r.items, o)
	r.mu.Unlock()
}

func (r *results) snapshot() []model.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Outcome, len(r.items))
	copy(out, r.items)
	return out
}

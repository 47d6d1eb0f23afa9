package indexer

import "sync"

// queue is a bounded FIFO of file events coalesced per (project, path).
// A new event for a queued file replaces it in place: the last write wins,
// so a delete after a modify leaves only the delete, and the file keeps
// its original position.
type queue struct {
	mu      sync.Mutex
	order   []string
	pending map[string]Event
	limit   int
	ready   chan struct{} // signalled when a full batch is waiting
	space   chan struct{} // signalled when events are taken
	batch   int
}

func newQueue(limit, batch int) *queue {
	return &queue{
		pending: make(map[string]Event),
		limit:   limit,
		batch:   batch,
		ready:   make(chan struct{}, 1),
		space:   make(chan struct{}, 1),
	}
}

func queueKey(ev Event) string { return ev.ProjectID + "\x00" + ev.Path }

// push adds or coalesces ev. It reports false when ev is new and the queue
// is at its limit.
func (q *queue) push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := queueKey(ev)
	if _, ok := q.pending[key]; ok {
		q.pending[key] = ev
		return true
	}
	if len(q.order) >= q.limit {
		return false
	}
	q.pending[key] = ev
	q.order = append(q.order, key)
	if len(q.order) >= q.batch {
		signal(q.ready)
	}
	return true
}

// take removes and returns up to n events in arrival order.
func (q *queue) take(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.order) {
		n = len(q.order)
	}
	out := make([]Event, 0, n)
	for _, key := range q.order[:n] {
		out = append(out, q.pending[key])
		delete(q.pending, key)
	}
	q.order = append(q.order[:0:0], q.order[n:]...)
	if n > 0 {
		signal(q.space)
	}
	if len(q.order) >= q.batch {
		signal(q.ready)
	}
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

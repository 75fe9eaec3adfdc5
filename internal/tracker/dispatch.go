package tracker

import (
	"sync"

	"github.com/edgard/uptimebot/internal/ledger"
)

// dispatcher runs jobs serially per conversation and in parallel across
// conversations. A conversation owns a drain goroutine only while it has work.
type dispatcher struct {
	mu     sync.Mutex
	queues map[ledger.Conversation][]func()
	wg     sync.WaitGroup
	closed bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[ledger.Conversation][]func())}
}

// submit enqueues job for conv. It returns false once the dispatcher is closed.
func (d *dispatcher) submit(conv ledger.Conversation, job func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, draining := d.queues[conv]
	d.queues[conv] = append(q, job)
	if !draining {
		d.wg.Add(1)
		go d.drain(conv)
	}
	return true
}

func (d *dispatcher) drain(conv ledger.Conversation) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[conv]
		if len(q) == 0 {
			delete(d.queues, conv)
			d.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		d.queues[conv] = q[1:]
		d.mu.Unlock()

		job()
	}
}

// close stops accepting jobs and waits for the queued ones to finish.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// wait blocks until every queue submitted so far is drained.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

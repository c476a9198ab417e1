// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package taskqueue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/dmaengine/task"
)

// Node is one position in the FIFO. Once linked by Append, a Node's Task
// and linkage never change — only Queue.Advance moves the head forward —
// so the worker can walk Next() across goroutines without holding the
// queue's lock; the link is an atomic.Pointer so that walk is race-free.
type Node struct {
	Task task.Task
	next atomic.Pointer[Node]
}

// Next returns the following node, or nil at the tail as last observed.
// Safe to call without the queue's lock.
func (n *Node) Next() *Node { return n.next.Load() }

// Queue is the engine's task FIFO: a singly linked list with head/tail
// pointers protected by a mutex. Every Append wakes one Wait call,
// standing in for the source's condition variable with the idiomatic Go
// equivalent — a non-blocking send on a buffered notify channel.
//
// Producers are client goroutines calling the public API; the worker is
// the sole consumer. All linked-list mutation (Append, Advance) happens
// under the lock; reads of already-linked nodes (Head, Node.Next) do not.
type Queue struct {
	mu     sync.Mutex
	head   *Node
	tail   *Node
	notify chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Append adds t to the tail of the FIFO and wakes one waiting consumer.
func (q *Queue) Append(t task.Task) {
	n := &Node{Task: t}
	q.mu.Lock()
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next.Store(n)
	}
	q.tail = n
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Head snapshots the current head of the FIFO. The caller releases the
// lock implicitly on return and may walk forward with Node.Next without
// re-acquiring it.
func (q *Queue) Head() *Node {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head
}

// Advance moves the head forward past n already-scanned-and-recorded
// nodes. It is a no-op if n <= 0. Used by the worker after a batch has
// been recorded, to drop the tasks it consumed from the FIFO.
func (q *Queue) Advance(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	cur := q.head
	for i := 0; i < n && cur != nil; i++ {
		cur = cur.next.Load()
	}
	q.head = cur
	if q.head == nil {
		q.tail = nil
	}
}

// Wait blocks until an Append occurs or timeout elapses, whichever comes
// first. It never returns an error: a timed-out wait simply means the
// worker should re-check the queue itself.
func (q *Queue) Wait(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.notify:
	case <-timer.C:
	}
}

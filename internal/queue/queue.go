// Package queue implements the action queue: a priority-ordered
// pending list, a single in-flight slot, and a bounded execution
// history.
package queue

import (
	"sync"
	"time"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

const DefaultMaxHistory = 100

// ActionQueue holds the actions a session has decided to run: a pending
// list kept sorted by priority (descending, stable), one action actively
// "checked out" via Dequeue, and a fixed-capacity ring of completed
// results.
type ActionQueue struct {
	mu         sync.Mutex
	pending    []*domain.QueuedAction
	current    *domain.QueuedAction
	history    []*domain.QueuedAction
	maxHistory int
}

// New builds an empty ActionQueue. maxHistory <= 0 uses DefaultMaxHistory.
func New(maxHistory int) *ActionQueue {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &ActionQueue{maxHistory: maxHistory}
}

// Enqueue appends action to the pending list and re-sorts by priority
// descending. The sort is stable, so actions of equal priority keep
// their relative enqueue order.
func (q *ActionQueue) Enqueue(action domain.Action) *domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	qa := &domain.QueuedAction{Action: action, EnqueuedAt: nowFunc(), Status: domain.StatusPending}
	q.pending = append(q.pending, qa)
	stableSortByPriorityDesc(q.pending)
	return qa
}

// EnqueueBatch enqueues every action in order, re-sorting once at the end.
func (q *ActionQueue) EnqueueBatch(actions []domain.Action) []*domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.QueuedAction, 0, len(actions))
	for _, a := range actions {
		qa := &domain.QueuedAction{Action: a, EnqueuedAt: nowFunc(), Status: domain.StatusPending}
		q.pending = append(q.pending, qa)
		out = append(out, qa)
	}
	stableSortByPriorityDesc(q.pending)
	return out
}

// Dequeue pops the highest-priority pending action, marks it executing,
// and holds it as Current until CompleteCurrent is called. Dequeue while a
// Current action is already checked out replaces it without completing
// the prior one — callers are expected to call CompleteCurrent before
// dequeuing again.
func (q *ActionQueue) Dequeue() *domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	qa := q.pending[0]
	q.pending = q.pending[1:]
	qa.Status = domain.StatusExecuting
	q.current = qa
	return qa
}

// CompleteCurrent closes out the checked-out action, moving it into the
// bounded history ring, oldest-first-evicted.
func (q *ActionQueue) CompleteCurrent(success bool, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return
	}
	if success {
		q.current.Status = domain.StatusCompleted
	} else {
		q.current.Status = domain.StatusFailed
		q.current.Error = errMsg
	}
	q.history = append(q.history, q.current)
	if len(q.history) > q.maxHistory {
		q.history = q.history[len(q.history)-q.maxHistory:]
	}
	q.current = nil
}

// Peek returns the highest-priority pending action without removing it.
func (q *ActionQueue) Peek() *domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

// ClearPending discards every pending action and returns how many were cleared.
func (q *ActionQueue) ClearPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

// Pending returns a snapshot of the pending list, highest priority first.
func (q *ActionQueue) Pending() []*domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.QueuedAction(nil), q.pending...)
}

// History returns up to limit history entries, most recent first.
func (q *ActionQueue) History(limit int) []*domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.QueuedAction, limit)
	for i := 0; i < limit; i++ {
		out[i] = q.history[n-1-i]
	}
	return out
}

// Current returns the action currently checked out, or nil.
func (q *ActionQueue) Current() *domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Stats is the queue's summary counters.
type Stats struct {
	PendingCount   int
	HistoryCount   int
	CompletedCount int
	FailedCount    int
	HasCurrent     bool
}

func (q *ActionQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{PendingCount: len(q.pending), HistoryCount: len(q.history), HasCurrent: q.current != nil}
	for _, qa := range q.history {
		switch qa.Status {
		case domain.StatusCompleted:
			s.CompletedCount++
		case domain.StatusFailed:
			s.FailedCount++
		}
	}
	return s
}

// stableSortByPriorityDesc is an insertion sort: the pending list is
// never large enough (single-digit counts per tick) to need anything
// fancier, and insertion sort is trivially stable.
func stableSortByPriorityDesc(items []*domain.QueuedAction) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && items[j].Action.Priority > items[j-1].Action.Priority {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

// nowFunc is a seam for deterministic tests.
var nowFunc = time.Now

package scheduler

import "sync"

// UserQueue serializes all job-mutating work for one user. Interest toggles,
// settings updates, and dispatcher sweeps each run their whole operation
// inside Do for the affected user; operations for different users proceed in
// parallel. This is what upholds the one-active-job-per-(program, offset)
// invariant under rapid toggle/untoggle sequences.
type UserQueue struct {
	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewUserQueue() *UserQueue {
	return &UserQueue{users: make(map[string]*sync.Mutex)}
}

// Do runs fn while holding the user's lock. fn must not call Do for the same
// user again.
func (q *UserQueue) Do(userID string, fn func() error) error {
	m := q.lockFor(userID)
	m.Lock()
	defer m.Unlock()
	return fn()
}

func (q *UserQueue) lockFor(userID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.users[userID]
	if !ok {
		m = &sync.Mutex{}
		q.users[userID] = m
	}
	return m
}

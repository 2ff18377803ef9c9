package engine

import "sync"

// CompetitionLocks serializes all mutation of one competition's bracket
// graph. Result processing, Swiss round generation and the group-to-knockout
// transition read the full current-phase state before writing, so the whole
// load-mutate-persist unit runs under the competition's lock; concurrent
// sibling results can then never tear a downstream node's slots.
type CompetitionLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewCompetitionLocks() *CompetitionLocks {
	return &CompetitionLocks{locks: make(map[int]*sync.Mutex)}
}

// Acquire blocks until the competition's lock is held and returns the
// release function.
func (l *CompetitionLocks) Acquire(competitionID int) func() {
	l.mu.Lock()
	lock, ok := l.locks[competitionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[competitionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

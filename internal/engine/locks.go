package engine

import "sync"

// competitionLocks hands out one mutex per competition so that
// mutate → score → rebuild runs as a single unit per competition while
// different competitions proceed in parallel.
type competitionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCompetitionLocks() *competitionLocks {
	return &competitionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the competition's mutex and returns its release func
func (l *competitionLocks) lock(competitionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[competitionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[competitionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

package sync

import (
	gosync "sync"
	"time"
)

// OptimisticUpdate is the most recent optimistic write of one entity.
type OptimisticUpdate struct {
	Fields []string
	At     time.Time
}

// optimisticLog records, per entity and field, the wall-clock time of the
// last optimistic write.
type optimisticLog struct {
	grace time.Duration

	mu      gosync.Mutex
	touched map[string]map[string]time.Time
	// removed holds entities deleted locally, by deletion time.
	removed map[string]time.Time
}

func newOptimisticLog(grace time.Duration) *optimisticLog {
	return &optimisticLog{
		grace:   grace,
		touched: make(map[string]map[string]time.Time),
		removed: make(map[string]time.Time),
	}
}

func (l *optimisticLog) record(id string, at time.Time, fields ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.touched[id]
	if !ok {
		m = make(map[string]time.Time, len(fields))
		l.touched[id] = m
	}
	for _, f := range fields {
		m[f] = at
	}
}

func (l *optimisticLog) last(id string) (OptimisticUpdate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.touched[id]
	if !ok || len(m) == 0 {
		return OptimisticUpdate{}, false
	}
	var u OptimisticUpdate
	for f, at := range m {
		if at.After(u.At) {
			u.At = at
		}
		u.Fields = append(u.Fields, f)
	}
	return u, true
}

// shadowed returns the fields of id whose local value must survive a server
// row committed at committed and received at arrived. A field is shadowed
// while its optimistic write is inside the grace window and newer than the
// commit. A zero commit time shadows every field inside the window.
func (l *optimisticLog) shadowed(id string, committed, arrived time.Time) map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.touched[id]
	if !ok {
		return nil
	}
	var out map[string]bool
	for f, at := range m {
		if arrived.Sub(at) > l.grace {
			delete(m, f)
			continue
		}
		if !committed.IsZero() && !at.After(committed) {
			continue
		}
		if out == nil {
			out = make(map[string]bool)
		}
		out[f] = true
	}
	if len(m) == 0 {
		delete(l.touched, id)
	}
	return out
}

func (l *optimisticLog) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.touched, id)
}

// drop forgets the writes of id and records its local deletion.
func (l *optimisticLog) drop(id string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.touched, id)
	l.removed[id] = at
}

// removedWithin reports whether id was deleted locally inside the grace
// window before arrived.
func (l *optimisticLog) removedWithin(id string, arrived time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.removed[id]
	if !ok {
		return false
	}
	if arrived.Sub(at) > l.grace {
		delete(l.removed, id)
		return false
	}
	return true
}

// pending reports whether id has any write inside the grace window. Rows
// created locally stay pending until their insert is acknowledged.
func (l *optimisticLog) pending(id string, arrived time.Time) bool {
	return len(l.shadowed(id, time.Time{}, arrived)) > 0
}

// prune drops every record older than the grace window.
func (l *optimisticLog) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, m := range l.touched {
		for f, at := range m {
			if now.Sub(at) > l.grace {
				delete(m, f)
			}
		}
		if len(m) == 0 {
			delete(l.touched, id)
		}
	}
	for id, at := range l.removed {
		if now.Sub(at) > l.grace {
			delete(l.removed, id)
		}
	}
}

func (l *optimisticLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touched = make(map[string]map[string]time.Time)
	l.removed = make(map[string]time.Time)
}

// touch records an optimistic write of fields on id.
func (e *Engine) touch(id string, fields ...string) {
	e.optimistic.record(id, e.now(), fields...)
}

// LastOptimisticUpdate returns the last optimistic write of an entity.
func (e *Engine) LastOptimisticUpdate(id string) (OptimisticUpdate, bool) {
	return e.optimistic.last(id)
}

/*
locks.go - Per-key locks

PURPOSE:
  Serialises every read-modify-write of a running total, and every
  correction of one sale event, inside a single process.

LOCK ORDER:
  At most one event key, taken first, then employee keys in sorted order.

SEE ALSO:
  - ledger.go: Submit, Confirm and Correct take these locks
*/
package sales

import (
	"sort"
	"sync"
)

// keyedLocks serialises work per key. Entries are dropped once no goroutine
// holds or waits on them, so the map stays proportional to in-flight work.
//
// Lock order: a caller may hold at most one event key, and must take it
// before any employee keys. Employee keys are always taken sorted.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

func employeeKey(id EmployeeID) string { return "employee:" + string(id) }
func eventKey(id EventID) string       { return "event:" + string(id) }

// lock acquires every key in sorted order and returns the matching unlock.
func (k *keyedLocks) lock(keys ...string) (unlock func()) {
	keys = uniqueSorted(keys)

	held := make([]*refLock, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &refLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.release(keys[i], held[i])
		}
	}
}

func (k *keyedLocks) release(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}

/*
pending.go - Pending confirmations

PURPOSE:
  Holds repeat purchases that need a seller remark before they are
  committed. Nothing here is persisted; a pending sale lives until it is
  confirmed, cancelled, discarded with its session, or swept as expired.

SEE ALSO:
  - ledger.go: Confirm and Cancel
  - api/scheduler.go: Expiry sweep
*/
package sales

import (
	"sync"
	"time"
)

// PendingBook holds repeat purchases awaiting a remark, keyed by session.
// A pending sale belongs to the session that submitted it; another session
// cannot confirm or cancel it.
type PendingBook struct {
	mu      sync.Mutex
	entries map[pendingKey]PendingSale
}

type pendingKey struct {
	session string
	id      string
}

func NewPendingBook() *PendingBook {
	return &PendingBook{entries: make(map[pendingKey]PendingSale)}
}

// Hold stores p for the session.
func (b *PendingBook) Hold(session string, p PendingSale) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[pendingKey{session, p.ID}] = p
}

// Get returns the held sale without removing it.
func (b *PendingBook) Get(session, id string) (PendingSale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.entries[pendingKey{session, id}]
	if !ok {
		return PendingSale{}, ErrPendingNotFound
	}
	return p, nil
}

// Take removes and returns the held sale. Two concurrent confirmations of
// the same pending sale cannot both succeed.
func (b *PendingBook) Take(session, id string) (PendingSale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := pendingKey{session, id}
	p, ok := b.entries[k]
	if !ok {
		return PendingSale{}, ErrPendingNotFound
	}
	delete(b.entries, k)
	return p, nil
}

// Discard drops every pending sale held by the session (logout).
func (b *PendingBook) Discard(session string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.entries {
		if k.session == session {
			delete(b.entries, k)
			n++
		}
	}
	return n
}

// Sweep drops pending sales created before cutoff and returns them.
func (b *PendingBook) Sweep(cutoff time.Time) []PendingSale {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expired []PendingSale
	for k, p := range b.entries {
		if p.CreatedAt.Before(cutoff) {
			expired = append(expired, p)
			delete(b.entries, k)
		}
	}
	return expired
}

// Len returns the number of held sales.
func (b *PendingBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

package sales

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// QUOTA POLICY
// =============================================================================

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		requested int
		want      OutcomeKind
		newTotal  int
	}{
		{"first purchase", 0, 4, OutcomeAutoApproved, 4},
		{"first purchase at cap", 0, 10, OutcomeAutoApproved, 10},
		{"repeat within cap", 3, 2, OutcomeNeedsApproval, 5},
		{"repeat reaching cap", 7, 3, OutcomeNeedsApproval, 10},
		{"overflow", 8, 5, OutcomeRejected, 13},
		{"already at cap", 10, 1, OutcomeRejected, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.current, tt.requested)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.current, got.Current)
			assert.Equal(t, tt.newTotal, got.NewTotal)
			if tt.want == OutcomeRejected {
				assert.Equal(t, "would exceed maximum", got.Reason)
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestDecide_ExhaustiveBound(t *testing.T) {
	// Nothing the policy accepts can take a total past the cap.
	for current := 0; current <= MaxPerEmployee; current++ {
		for q := MinQuantity; q <= MaxQuantity; q++ {
			out := Decide(current, q)
			if out.Kind != OutcomeRejected {
				assert.LessOrEqual(t, out.NewTotal, MaxPerEmployee, "current=%d q=%d", current, q)
			}
		}
	}
}

func TestValidateQuantity(t *testing.T) {
	for _, q := range []int{1, 5, 10} {
		assert.NoError(t, ValidateQuantity(q))
	}
	for _, q := range []int{-1, 0, 11, 100} {
		assert.ErrorIs(t, ValidateQuantity(q), ErrInvalidQuantity)
	}
}

func TestValidateRemark(t *testing.T) {
	assert.ErrorIs(t, ValidateRemark(""), ErrMissingReason)
	assert.ErrorIs(t, ValidateRemark("   "), ErrMissingReason)
	assert.NoError(t, ValidateRemark("buying for family"))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestQuotaExceededError(t *testing.T) {
	err := error(&QuotaExceededError{EmployeeID: "E1", Current: 8, Requested: 5, Max: 10})

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "would exceed maximum")
	assert.True(t, IsClientError(err))
	assert.False(t, IsNotFound(err))
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection refused")

	err := persistenceError("put total", cause)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "put total")

	// Wrapping twice keeps a single marker.
	again := persistenceError("outer", err)
	assert.Equal(t, err, again)

	assert.NoError(t, persistenceError("noop", nil))
}

// =============================================================================
// KEYED LOCKS
// =============================================================================

func TestUniqueSorted(t *testing.T) {
	got := uniqueSorted([]string{"employee:b", "event:1", "employee:a", "employee:b"})
	assert.Equal(t, []string{"employee:a", "employee:b", "event:1"}, got)
}

func TestKeyedLocks_SerialisesSameKey(t *testing.T) {
	locks := newKeyedLocks()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(employeeKey("E1"))
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks, "entries are released once idle")
}

func TestKeyedLocks_OppositeOrderNoDeadlock(t *testing.T) {
	locks := newKeyedLocks()
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locks.lock(employeeKey("A"), employeeKey("B"))()
			}()
			go func() {
				defer wg.Done()
				locks.lock(employeeKey("B"), employeeKey("A"))()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring keys in opposite order")
	}
}

// =============================================================================
// PENDING BOOK
// =============================================================================

func TestPendingBook(t *testing.T) {
	book := NewPendingBook()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	book.Hold("s1", PendingSale{ID: "p1", EmployeeID: "E1", CreatedAt: t0})
	book.Hold("s1", PendingSale{ID: "p2", EmployeeID: "E2", CreatedAt: t0.Add(time.Hour)})
	book.Hold("s2", PendingSale{ID: "p3", EmployeeID: "E3", CreatedAt: t0})
	require.Equal(t, 3, book.Len())

	// Another session cannot see s1's pending sale.
	_, err := book.Get("s2", "p1")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	p, err := book.Get("s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, EmployeeID("E1"), p.EmployeeID)

	// Take removes, so a second take fails.
	_, err = book.Take("s1", "p1")
	require.NoError(t, err)
	_, err = book.Take("s1", "p1")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	// Sweep drops entries created before the cutoff.
	expired := book.Sweep(t0.Add(30 * time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, "p3", expired[0].ID)

	assert.Equal(t, 1, book.Discard("s1"))
	assert.Equal(t, 0, book.Len())
}

// =============================================================================
// SELLER AGGREGATE
// =============================================================================

func TestAggregateSellers(t *testing.T) {
	evs := []SaleEvent{
		{RecordedBy: "bob", Quantity: 2},
		{RecordedBy: "alice", Quantity: 3},
		{RecordedBy: "bob", Quantity: 1},
		{RecordedBy: "carol", Quantity: 3},
	}

	got := AggregateSellers(evs)

	assert.Equal(t, []SellerTotal{
		{RecordedBy: "alice", Quantity: 3, Sales: 1},
		{RecordedBy: "bob", Quantity: 3, Sales: 2},
		{RecordedBy: "carol", Quantity: 3, Sales: 1},
	}, got)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Quantity > got[j].Quantity }))
}

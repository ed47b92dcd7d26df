/*
policy.go - Quota policy

PURPOSE:
  Pure decision function: given an employee's current total and a
  requested quantity, decide whether the sale is rejected, auto-approved,
  or needs a remark from the seller before it can be committed.

DECISION TABLE:
  current + requested > MaxPerEmployee  → Rejected
  current == 0                          → AutoApproved (first purchase)
  otherwise                             → NeedsApproval (repeat purchase)

  Rejection is checked first, so a first purchase can never exceed the cap.
*/
package sales

// OutcomeKind enumerates the three policy outcomes.
type OutcomeKind string

const (
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomeAutoApproved  OutcomeKind = "auto_approved"
	OutcomeNeedsApproval OutcomeKind = "needs_approval"
)

// Outcome is the result of Decide.
type Outcome struct {
	Kind     OutcomeKind
	Current  int
	NewTotal int    // current + requested, also set for rejections
	Reason   string // set for rejections
}

// Decide applies the quota policy. It has no side effects.
func Decide(current, requested int) Outcome {
	newTotal := current + requested
	switch {
	case newTotal > MaxPerEmployee:
		return Outcome{Kind: OutcomeRejected, Current: current, NewTotal: newTotal, Reason: ErrQuotaExceeded.Error()}
	case current == 0:
		return Outcome{Kind: OutcomeAutoApproved, Current: current, NewTotal: newTotal}
	default:
		return Outcome{Kind: OutcomeNeedsApproval, Current: current, NewTotal: newTotal}
	}
}

// ValidateQuantity returns ErrInvalidQuantity for q outside [MinQuantity, MaxQuantity].
func ValidateQuantity(q int) error {
	if q < MinQuantity || q > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

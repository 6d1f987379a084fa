package discovery

import (
	"math"
	"time"
)

// Budget reports how much execution time the current invocation has left.
type Budget interface {
	Remaining() time.Duration
}

// BudgetFunc adapts a function to Budget.
type BudgetFunc func() time.Duration

func (f BudgetFunc) Remaining() time.Duration { return f() }

// DeadlineBudget runs out at a fixed wall-clock deadline.
type DeadlineBudget struct {
	Deadline time.Time
	Now      func() time.Time
}

// NewDeadlineBudget returns a budget that ends d from now.
func NewDeadlineBudget(d time.Duration) DeadlineBudget {
	return DeadlineBudget{Deadline: time.Now().Add(d), Now: time.Now}
}

func (b DeadlineBudget) Remaining() time.Duration {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return b.Deadline.Sub(now())
}

// Unlimited never runs out.
type Unlimited struct{}

func (Unlimited) Remaining() time.Duration { return time.Duration(math.MaxInt64) }

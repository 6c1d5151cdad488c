// Package retry implements the readiness-gated retry discipline shared by the
// cfnet transports.
//
// Every blocking step waits for the descriptor to become ready with a
// per-attempt timeout and retries the identical step when it was not. The
// number of waits an operation may spend is bounded by a Policy, so a stuck
// peer yields a deadline failure (ErrExhausted) after at most
// Policy.Tries × Policy.Timeout, never an unbounded wait.
//
// A Budget is refilled at the start of each logical operation and shared by
// all of its steps:
//
//	budget := retry.NewBudget(retry.DefaultTLSPolicy())
//	budget.Refill()
//	err := retry.Do(budget, func() error {
//	    if !ready() {
//	        return retry.ErrNotReady
//	    }
//	    return step()
//	}, nil)
package retry

package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for encrypted transport operations.
const (
	// DefaultTries is the number of readiness waits an operation may spend.
	DefaultTries = 5

	// DefaultTimeout is the per-attempt readiness timeout.
	DefaultTimeout = 5 * time.Second
)

// Retry errors.
var (
	// ErrNotReady is returned by an operation to signal that the descriptor
	// was not ready within the per-attempt timeout. It is the only retryable
	// error.
	ErrNotReady = errors.New("descriptor not ready")

	// ErrExhausted indicates the retry budget was spent without progress.
	ErrExhausted = errors.New("retry budget exhausted")

	// ErrInvalidPolicy indicates a policy with no tries or no timeout.
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// Policy bounds a blocking operation: at most Tries readiness waits of at
// most Timeout each.
type Policy struct {
	// Tries is the maximum number of readiness waits per operation.
	Tries int

	// Timeout is the per-attempt readiness timeout.
	Timeout time.Duration
}

// DefaultTLSPolicy returns the policy used by encrypted sessions.
func DefaultTLSPolicy() Policy {
	return Policy{
		Tries:   DefaultTries,
		Timeout: DefaultTimeout,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Tries < 1 {
		return fmt.Errorf("%w: tries %d < 1", ErrInvalidPolicy, p.Tries)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout %s <= 0", ErrInvalidPolicy, p.Timeout)
	}
	return nil
}

// MaxBlocking is the longest an operation governed by p can block.
func (p Policy) MaxBlocking() time.Duration {
	return time.Duration(p.Tries) * p.Timeout
}

// Budget tracks the tries left for one logical operation. It implements
// backoff.BackOff with zero delay: the readiness wait itself is the pause.
//
// Reset is a no-op so that a budget can be shared by every step of an
// operation (a handshake spans many socket reads and writes). Call Refill
// when a new operation starts.
type Budget struct {
	mu    sync.Mutex
	tries int
	used  int
}

// NewBudget returns a full budget for the policy.
func NewBudget(p Policy) *Budget {
	return &Budget{tries: p.Tries}
}

// Refill restores the budget for a new operation.
func (b *Budget) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
}

// Used returns the number of tries consumed since the last Refill.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the number of tries left.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tries - b.used
}

// Consume spends one try and reports whether the operation may try again.
func (b *Budget) Consume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used < b.tries {
		b.used++
	}
	return b.used < b.tries
}

// NextBackOff implements backoff.BackOff.
func (b *Budget) NextBackOff() time.Duration {
	if !b.Consume() {
		return backoff.Stop
	}
	return 0
}

// Reset implements backoff.BackOff. It does not refill the budget.
func (b *Budget) Reset() {}

var _ backoff.BackOff = (*Budget)(nil)

// Do runs op until it succeeds, fails with an error other than ErrNotReady,
// or the budget is spent. notify, if set, is called before every retry with
// the number of tries used so far.
func Do(b *Budget, op func() error, notify func(err error, tries int)) error {
	if b == nil || op == nil {
		return fmt.Errorf("%w: nil budget or operation", ErrInvalidPolicy)
	}
	if b.Remaining() == 0 {
		return fmt.Errorf("%w after %d tries", ErrExhausted, b.Used())
	}

	err := backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrNotReady) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, _ time.Duration) {
		if notify != nil {
			notify(err, b.Used())
		}
	})

	if errors.Is(err, ErrNotReady) {
		return fmt.Errorf("%w after %d tries", ErrExhausted, b.Used())
	}
	return err
}

package ledger

import (
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientFunds means the sender's unspent utxos do not cover
	// the requested units and amounts.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySpent means a utxo was spent by a concurrent operation.
	ErrAlreadySpent = errors.New("utxo already spent")

	// ErrNotFound means a utxo, transaction, contract or policy lookup
	// came up empty.
	ErrNotFound = errors.New("not found")

	// ErrPolicyViolation means a burn was attempted on an immutable unit.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrTimeout means WaitForTransactions exceeded its deadline.
	ErrTimeout = errors.New("timeout reached while waiting for transactions")

	// ErrInvariant means an update affected zero rows where exactly one
	// was expected. Fatal, never retried.
	ErrInvariant = errors.New("inconsistent update")
)

// IsRetryable reports whether an error is transient contention worth
// re-attempting with a fresh utxo selection. Validation, policy and
// insufficient funds failures are final and not retried.
func IsRetryable(err error) bool {
	return errors.Cause(err) == ErrAlreadySpent
}

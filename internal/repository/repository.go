// Package repository owns authoritative item and currency records and
// exposes the narrow interface the trade engine consumes: fresh ownership
// reads and a single all-or-nothing cross-transfer primitive.
package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrConflict indicates the repository rejected an atomic cross-transfer
// because of a concurrent conflicting mutation (ownership changed or a
// balance no longer covers the staked amount).
var ErrConflict = errors.New("conflicting repository mutation")

// Stake bundles the items and currency one party hands over in a transfer.
// Both fields may be empty; an empty-vs-empty transfer is a valid no-op
// commit.
type Stake struct {
	Items    []string
	Currency decimal.Decimal
}

// ItemRepository is the engine's view of the item/balance store. Values are
// never cached by callers: every read reflects current state, and the
// transfer is a single failure-atomic operation rather than separate
// debit+credit calls.
type ItemRepository interface {
	// IsOwned reports whether the participant currently holds the item.
	IsOwned(ctx context.Context, participantID, itemRef string) (bool, error)
	// CurrencyBalance returns the participant's current balance. Unknown
	// participants have a zero balance.
	CurrencyBalance(ctx context.Context, participantID string) (decimal.Decimal, error)
	// AtomicCrossTransfer moves giveA from partyA to partyB and giveB from
	// partyB to partyA in one all-or-nothing operation. Any ownership or
	// balance mismatch aborts the whole transfer with ErrConflict.
	AtomicCrossTransfer(ctx context.Context, partyA, partyB string, giveA, giveB Stake) error
}

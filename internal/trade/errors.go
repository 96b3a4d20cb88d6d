package trade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors returned synchronously to the acting participant. None of
// them mutate session state.
var (
	// ErrAlreadyActive is returned when a participant already has a
	// non-terminal session with anyone.
	ErrAlreadyActive = errors.New("participant already has an active session")
	// ErrSelfSession is returned when a participant tries to open a session
	// with themselves.
	ErrSelfSession = errors.New("cannot open a session with yourself")
	// ErrSessionNotFound is returned when the session id is unknown or the
	// session already reached a terminal state and was removed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotParticipant is returned when the acting participant is not one of
	// the session's two parties.
	ErrNotParticipant = errors.New("participant is not part of this session")
	// ErrLocked is returned for any proposal mutation, or a second lock call,
	// after the acting participant locked their proposal.
	ErrLocked = errors.New("proposal is locked")
	// ErrNotOwned is returned when the repository reports the participant does
	// not currently hold the item.
	ErrNotOwned = errors.New("item is not owned by participant")
	// ErrAlreadyStaged is returned when the item is already staged in this
	// session, by either party.
	ErrAlreadyStaged = errors.New("item is already staged in this session")
	// ErrNotStaged is returned when removing an item absent from the
	// participant's proposal.
	ErrNotStaged = errors.New("item is not staged")
	// ErrNegativeCurrency rejects a negative staked currency amount.
	ErrNegativeCurrency = errors.New("staked currency amount cannot be negative")
	// ErrInsufficientBalance is returned when the staked currency exceeds the
	// participant's live balance.
	ErrInsufficientBalance = errors.New("insufficient currency balance")
	// ErrNotConfirming is returned for a confirm call before both parties have
	// locked.
	ErrNotConfirming = errors.New("session is not in the confirming phase")
	// ErrTooLate rejects a cancellation that arrives after settlement began.
	ErrTooLate = errors.New("settlement already started")
)

// Settlement errors. Either aborts the whole session into Failed.
var (
	// ErrStaleOwnership indicates a staged item was no longer owned by its
	// proposer, or a staked balance was no longer covered, at commit time.
	ErrStaleOwnership = errors.New("stake failed re-validation at settlement")
	// ErrRepositoryConflict indicates the repository rejected the atomic
	// cross-transfer, e.g. due to a concurrent conflicting mutation.
	ErrRepositoryConflict = errors.New("repository rejected the transfer")
)

// Violation describes one stake that failed settlement re-validation.
type Violation struct {
	ParticipantID string          `json:"participant_id"`
	ItemRef       string          `json:"item_ref,omitempty"`
	Currency      decimal.Decimal `json:"currency,omitempty"`
	Reason        string          `json:"reason"`
}

func (v Violation) String() string {
	if v.ItemRef != "" {
		return fmt.Sprintf("item %s (%s): %s", v.ItemRef, v.ParticipantID, v.Reason)
	}
	return fmt.Sprintf("currency %s (%s): %s", v.Currency, v.ParticipantID, v.Reason)
}

// RevalidationError aggregates every violating stake found during settlement
// re-validation. It unwraps to ErrStaleOwnership.
type RevalidationError struct {
	Violations []Violation
}

func (e *RevalidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("stake re-validation failed: %s", strings.Join(parts, "; "))
}

func (e *RevalidationError) Unwrap() error { return ErrStaleOwnership }

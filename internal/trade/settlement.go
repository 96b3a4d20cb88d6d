package trade

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/swapdesk/internal/repository"
	"github.com/Aidin1998/swapdesk/pkg/metrics"
)

// Outcome is the result of one settlement attempt.
type Outcome struct {
	// State is StateSettled or StateFailed.
	State State
	// Reason is the human-readable terminal reason reported to both parties.
	Reason string
	// Violations lists every stake that failed re-validation, when State is
	// StateFailed for that cause.
	Violations []Violation
}

// Settler performs the atomic cross-transfer once both parties have
// confirmed. The engine guarantees Settle runs at most once per session; the
// settler itself never mutates session state.
type Settler struct {
	logger *zap.Logger
	repo   repository.ItemRepository
}

// NewSettler creates a settlement executor.
func NewSettler(logger *zap.Logger, repo repository.ItemRepository) *Settler {
	return &Settler{logger: logger.Named("settler"), repo: repo}
}

// Settle re-validates every stake against the repository's current state and
// then requests a single all-or-nothing cross-transfer. Any re-validation
// miss or repository failure aborts the whole settlement; nothing moves.
// Empty stakes on both sides are committed as a degenerate no-op transfer.
func (x *Settler) Settle(ctx context.Context, partyA, partyB string, giveA, giveB repository.Stake) Outcome {
	start := time.Now()
	defer func() {
		metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	var violations []Violation
	for _, side := range []struct {
		id    string
		stake repository.Stake
	}{{partyA, giveA}, {partyB, giveB}} {
		v, err := x.revalidate(ctx, side.id, side.stake)
		if err != nil {
			x.logger.Error("settlement re-validation errored", zap.String("participant_id", side.id), zap.Error(err))
			return Outcome{State: StateFailed, Reason: ErrRepositoryConflict.Error()}
		}
		violations = append(violations, v...)
	}
	if len(violations) > 0 {
		reval := &RevalidationError{Violations: violations}
		x.logger.Warn("settlement aborted", zap.String("party_a", partyA), zap.String("party_b", partyB), zap.Error(reval))
		return Outcome{State: StateFailed, Reason: reval.Error(), Violations: violations}
	}

	if err := x.repo.AtomicCrossTransfer(ctx, partyA, partyB, giveA, giveB); err != nil {
		x.logger.Warn("cross transfer rejected", zap.String("party_a", partyA), zap.String("party_b", partyB), zap.Error(err))
		return Outcome{State: StateFailed, Reason: ErrRepositoryConflict.Error() + ": " + err.Error()}
	}

	x.logger.Info("settlement committed",
		zap.String("party_a", partyA),
		zap.String("party_b", partyB),
		zap.Int("items_a", len(giveA.Items)),
		zap.Int("items_b", len(giveB.Items)))
	return Outcome{State: StateSettled, Reason: "settled"}
}

// revalidate freshly checks every staged item and the staked currency of one
// side.
func (x *Settler) revalidate(ctx context.Context, participantID string, stake repository.Stake) ([]Violation, error) {
	var violations []Violation
	for _, ref := range stake.Items {
		owned, err := x.repo.IsOwned(ctx, participantID, ref)
		if err != nil {
			return nil, err
		}
		if !owned {
			violations = append(violations, Violation{
				ParticipantID: participantID,
				ItemRef:       ref,
				Reason:        "no longer owned by proposer",
			})
		}
	}
	if stake.Currency.IsPositive() {
		balance, err := x.repo.CurrencyBalance(ctx, participantID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(stake.Currency) {
			violations = append(violations, Violation{
				ParticipantID: participantID,
				Currency:      stake.Currency,
				Reason:        "balance no longer sufficient",
			})
		}
	}
	return violations, nil
}

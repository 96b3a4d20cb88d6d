package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/swapdesk/internal/repository"
	"github.com/Aidin1998/swapdesk/pkg/metrics"
)

// DefaultSessionTTL is used when no lifetime is configured.
const DefaultSessionTTL = 30 * time.Minute

// DefaultBulkAddLimit caps bulk adds when no limit is configured.
const DefaultBulkAddLimit = 25

// Options tunes engine behavior.
type Options struct {
	// SessionTTL is the maximum lifetime of a session from creation.
	SessionTTL time.Duration
	// BulkAddLimit caps how many items one bulk add may stage.
	BulkAddLimit int
}

// SkipReason explains why one candidate was skipped during a bulk add.
type SkipReason struct {
	ItemRef string `json:"item_ref"`
	Reason  string `json:"reason"`
}

// Engine drives sessions through their lifecycle: proposal mutation while
// unlocked, the lock/confirm handshake, exactly-once settlement, and
// cancellation. All in-memory transitions happen under the session mutex and
// never suspend; repository reads happen outside it.
type Engine struct {
	logger    *zap.Logger
	repo      repository.ItemRepository
	registry  *Registry
	settler   *Settler
	emitter   Emitter
	ttl       time.Duration
	bulkLimit int
}

// NewEngine creates a session engine. A nil emitter discards events.
func NewEngine(logger *zap.Logger, repo repository.ItemRepository, registry *Registry, emitter Emitter, opts Options) *Engine {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BulkAddLimit <= 0 {
		opts.BulkAddLimit = DefaultBulkAddLimit
	}
	return &Engine{
		logger:    logger.Named("engine"),
		repo:      repo,
		registry:  registry,
		settler:   NewSettler(logger, repo),
		emitter:   emitter,
		ttl:       opts.SessionTTL,
		bulkLimit: opts.BulkAddLimit,
	}
}

// Begin opens a new session between two participants.
func (e *Engine) Begin(ctx context.Context, participantA, participantB string) (*Session, error) {
	return e.registry.Create(participantA, participantB, e.ttl)
}

// Session looks a session up by id.
func (e *Engine) Session(sessionID uuid.UUID) (*Session, error) {
	s, ok := e.registry.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SessionFor looks a session up by participant id.
func (e *Engine) SessionFor(participantID string) (*Session, error) {
	s, ok := e.registry.Find(participantID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// AddItem stages an item into the participant's proposal. The ownership
// check is a fresh repository read; it is re-validated again at settlement.
func (e *Engine) AddItem(ctx context.Context, sessionID uuid.UUID, participantID, itemRef string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	owned, err := e.repo.IsOwned(ctx, participantID, itemRef)
	if err != nil {
		return fmt.Errorf("ownership check failed: %w", err)
	}
	if !owned {
		return ErrNotOwned
	}

	s.mu.Lock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	if s.staged(itemRef) {
		s.mu.Unlock()
		return ErrAlreadyStaged
	}
	p.items[itemRef] = struct{}{}
	snap := p.proposal()
	s.mu.Unlock()

	e.emitProposal(s, participantID, snap)
	return nil
}

// RemoveItem unstages an item from the participant's proposal.
func (e *Engine) RemoveItem(ctx context.Context, sessionID uuid.UUID, participantID, itemRef string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	if _, ok := p.items[itemRef]; !ok {
		s.mu.Unlock()
		return ErrNotStaged
	}
	delete(p.items, itemRef)
	snap := p.proposal()
	s.mu.Unlock()

	e.emitProposal(s, participantID, snap)
	return nil
}

// SetCurrency stakes a currency amount alongside the participant's items.
// The amount replaces any previously staked amount.
func (e *Engine) SetCurrency(ctx context.Context, sessionID uuid.UUID, participantID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeCurrency
	}
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	balance, err := e.repo.CurrencyBalance(ctx, participantID)
	if err != nil {
		return fmt.Errorf("balance check failed: %w", err)
	}
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	s.mu.Lock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	p.currency = amount
	snap := p.proposal()
	s.mu.Unlock()

	e.emitProposal(s, participantID, snap)
	return nil
}

// Clear removes every staged item and zeroes the staked currency for the
// participant in one operation.
func (e *Engine) Clear(ctx context.Context, sessionID uuid.UUID, participantID string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	p.items = make(map[string]struct{})
	p.currency = decimal.Zero
	snap := p.proposal()
	s.mu.Unlock()

	e.emitProposal(s, participantID, snap)
	return nil
}

// BulkAdd stages as many non-duplicate, currently-owned candidates as
// possible up to limit, skipping individual conflicts rather than failing on
// them. A non-positive or oversized limit falls back to the configured cap.
func (e *Engine) BulkAdd(ctx context.Context, sessionID uuid.UUID, participantID string, candidates []string, limit int) (int, []SkipReason, error) {
	s, err := e.Session(sessionID)
	if err != nil {
		return 0, nil, err
	}
	if limit <= 0 || limit > e.bulkLimit {
		limit = e.bulkLimit
	}

	s.mu.Lock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return 0, nil, err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return 0, nil, ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return 0, nil, ErrLocked
	}
	s.mu.Unlock()

	added := 0
	var skipped []SkipReason
	seen := make(map[string]struct{}, len(candidates))
	for _, ref := range candidates {
		if added >= limit {
			skipped = append(skipped, SkipReason{ItemRef: ref, Reason: "limit reached"})
			continue
		}
		if _, dup := seen[ref]; dup {
			skipped = append(skipped, SkipReason{ItemRef: ref, Reason: "duplicate candidate"})
			continue
		}
		seen[ref] = struct{}{}

		owned, err := e.repo.IsOwned(ctx, participantID, ref)
		if err != nil {
			return added, skipped, fmt.Errorf("ownership check failed: %w", err)
		}
		if !owned {
			skipped = append(skipped, SkipReason{ItemRef: ref, Reason: "not owned"})
			continue
		}

		s.mu.Lock()
		switch {
		case s.state.Terminal():
			s.mu.Unlock()
			return added, skipped, ErrSessionNotFound
		case p.locked:
			s.mu.Unlock()
			return added, skipped, ErrLocked
		case s.staged(ref):
			s.mu.Unlock()
			skipped = append(skipped, SkipReason{ItemRef: ref, Reason: "already staged"})
			continue
		}
		p.items[ref] = struct{}{}
		s.mu.Unlock()
		added++
	}

	if added > 0 {
		snap, _ := s.Snapshot(participantID)
		e.emitProposal(s, participantID, snap)
	}
	return added, skipped, nil
}

// Lock finalizes the participant's proposal. A second lock by the same
// participant fails with ErrLocked; once both sides are locked the session
// advances to the confirming phase.
func (e *Engine) Lock(ctx context.Context, sessionID uuid.UUID, participantID string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, other, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	p.locked = true
	evType := EventLocked
	if other.locked {
		s.state = StateConfirming
		evType = EventConfirming
	} else {
		s.state = StateLocked
	}
	snap := p.proposal()
	s.mu.Unlock()

	e.logger.Info("participant locked",
		zap.String("session_id", s.id.String()),
		zap.String("participant_id", participantID),
		zap.Bool("confirming", evType == EventConfirming))
	e.emit(Event{Type: evType, SessionID: s.id, ParticipantID: participantID, Proposal: &snap})
	return nil
}

// Confirm gives the participant's final go-ahead. Duplicate confirms are
// accepted as retries; once both sides have confirmed, settlement runs
// exactly once and the call returns after the session is terminal.
func (e *Engine) Confirm(ctx context.Context, sessionID uuid.UUID, participantID string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, other, err := s.resolve(participantID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.state != StateConfirming {
		s.mu.Unlock()
		return ErrNotConfirming
	}
	p.confirmed = true
	run := other.confirmed && !s.settling
	var giveA, giveB repository.Stake
	if run {
		s.settling = true
		giveA = repository.Stake{Items: s.a.proposal().Items, Currency: s.a.currency}
		giveB = repository.Stake{Items: s.b.proposal().Items, Currency: s.b.currency}
	}
	partyA, partyB := s.a.id, s.b.id
	s.mu.Unlock()

	if !run {
		return nil
	}

	outcome := e.settler.Settle(ctx, partyA, partyB, giveA, giveB)
	e.finish(s, outcome)
	return nil
}

// Cancel aborts the session on behalf of a participant. Cancelling an
// already-terminal session is a no-op; cancelling after settlement began
// fails with ErrTooLate.
func (e *Engine) Cancel(ctx context.Context, sessionID uuid.UUID, participantID string) error {
	s, err := e.Session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, _, err := s.resolve(participantID); err != nil {
		s.mu.Unlock()
		return err
	}
	return e.cancelLocked(s, participantID, fmt.Sprintf("cancelled by %s", participantID), false)
}

// Expire cancels a session past its deadline, attributed to the timeout
// supervisor. Losing the race against a just-completed settlement is a
// no-op.
func (e *Engine) Expire(s *Session) {
	s.mu.Lock()
	// The supervisor may lose the race; both outcomes are fine.
	_ = e.cancelLocked(s, "timeout", "timed out", true)
}

// cancelLocked performs the cancellation transition. The caller must hold
// s.mu; it is released before events are emitted.
func (e *Engine) cancelLocked(s *Session, by, reason string, timeout bool) error {
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if s.settling {
		s.mu.Unlock()
		return ErrTooLate
	}
	s.state = StateCancelled
	s.reason = reason
	s.mu.Unlock()

	e.registry.Remove(s.id)
	metrics.SessionsTerminal.WithLabelValues(StateCancelled.String()).Inc()
	if timeout {
		metrics.TimeoutCancels.Inc()
	}
	e.logger.Info("session cancelled",
		zap.String("session_id", s.id.String()),
		zap.String("cancelled_by", by),
		zap.String("reason", reason))
	ev := Event{Type: EventCancelled, SessionID: s.id, Reason: reason}
	if !timeout {
		ev.ParticipantID = by
	}
	e.emit(ev)
	return nil
}

// finish applies the settlement outcome and makes the session terminal.
func (e *Engine) finish(s *Session, outcome Outcome) {
	s.mu.Lock()
	s.state = outcome.State
	s.reason = outcome.Reason
	s.mu.Unlock()

	e.registry.Remove(s.id)
	metrics.SessionsTerminal.WithLabelValues(outcome.State.String()).Inc()

	evType := EventSettled
	if outcome.State == StateFailed {
		evType = EventFailed
	}
	e.logger.Info("session finished",
		zap.String("session_id", s.id.String()),
		zap.String("outcome", outcome.State.String()),
		zap.String("reason", outcome.Reason))
	e.emit(Event{
		Type:       evType,
		SessionID:  s.id,
		Violations: outcome.Violations,
		Reason:     outcome.Reason,
	})
}

func (e *Engine) emitProposal(s *Session, participantID string, snap Proposal) {
	e.emit(Event{
		Type:          EventProposalChanged,
		SessionID:     s.id,
		ParticipantID: participantID,
		Proposal:      &snap,
	})
}

func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	e.emitter.Emit(ev)
}

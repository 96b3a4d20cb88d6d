// Package trade implements the two-party negotiated exchange session engine:
// proposal staging, the lock/confirm handshake, atomic settlement, and
// timeout cancellation.
package trade

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State represents the session lifecycle state.
type State int32

const (
	// StateOpen is the initial state; both proposals are mutable.
	StateOpen State = iota
	// StateLocked means exactly one participant has locked.
	StateLocked
	// StateConfirming means both participants have locked.
	StateConfirming
	// StateSettled is terminal: the cross-transfer committed.
	StateSettled
	// StateCancelled is terminal: a participant or the timeout supervisor
	// cancelled the session.
	StateCancelled
	// StateFailed is terminal: settlement re-validation or the repository
	// transfer failed after both confirmations.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateLocked:
		return "locked"
	case StateConfirming:
		return "confirming"
	case StateSettled:
		return "settled"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateCancelled || s == StateFailed
}

// Proposal is a read-only snapshot of one participant's staked items and
// currency.
type Proposal struct {
	Items    []string        `json:"items"`
	Currency decimal.Decimal `json:"currency"`
}

// ParticipantView is one party's sub-state within a session view.
type ParticipantView struct {
	ID        string   `json:"id"`
	Locked    bool     `json:"locked"`
	Confirmed bool     `json:"confirmed"`
	Proposal  Proposal `json:"proposal"`
}

// View is a read-only snapshot of a whole session, for the rendering
// collaborator.
type View struct {
	ID        uuid.UUID       `json:"id"`
	State     string          `json:"state"`
	PartyA    ParticipantView `json:"party_a"`
	PartyB    ParticipantView `json:"party_b"`
	CreatedAt time.Time       `json:"created_at"`
	Deadline  time.Time       `json:"deadline"`
	Reason    string          `json:"reason,omitempty"`
}

// party holds one participant's sub-state. The session is a tagged two-slot
// structure: always exactly parties a and b, resolved by id.
type party struct {
	id        string
	locked    bool
	confirmed bool
	items     map[string]struct{}
	currency  decimal.Decimal
}

func newParty(id string) *party {
	return &party{id: id, items: make(map[string]struct{})}
}

func (p *party) proposal() Proposal {
	items := make([]string, 0, len(p.items))
	for ref := range p.items {
		items = append(items, ref)
	}
	return Proposal{Items: items, Currency: p.currency}
}

// Session is one negotiated exchange attempt between exactly two
// participants. It is owned by the registry for its lifetime and never
// persisted: a crash loses the session, which is safe because no partial
// settlement can have occurred.
type Session struct {
	id        uuid.UUID
	createdAt time.Time
	deadline  time.Time

	// mu serializes all in-memory state transitions. It is never held across
	// repository calls.
	mu     sync.Mutex
	state  State
	reason string
	// settling is the commit flag: settlement and cancellation both check it
	// under mu, and whichever sets it first wins.
	settling bool
	a, b     *party
}

func newSession(participantA, participantB string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		id:        uuid.New(),
		createdAt: now,
		deadline:  now.Add(ttl),
		state:     StateOpen,
		a:         newParty(participantA),
		b:         newParty(participantB),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Deadline returns the instant after which the timeout supervisor cancels
// the session.
func (s *Session) Deadline() time.Time { return s.deadline }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Participants returns both participant ids.
func (s *Session) Participants() (string, string) {
	return s.a.id, s.b.id
}

// resolve returns the acting participant's slot and the counterparty's slot.
func (s *Session) resolve(participantID string) (self, other *party, err error) {
	switch participantID {
	case s.a.id:
		return s.a, s.b, nil
	case s.b.id:
		return s.b, s.a, nil
	default:
		return nil, nil, ErrNotParticipant
	}
}

// staged reports whether the item is already staged by either party.
func (s *Session) staged(itemRef string) bool {
	_, inA := s.a.items[itemRef]
	_, inB := s.b.items[itemRef]
	return inA || inB
}

// Snapshot returns the proposal of the given participant.
func (s *Session) Snapshot(participantID string) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, err := s.resolve(participantID)
	if err != nil {
		return Proposal{}, err
	}
	return p.proposal(), nil
}

// View returns a full read-only snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:        s.id,
		State:     s.state.String(),
		PartyA:    ParticipantView{ID: s.a.id, Locked: s.a.locked, Confirmed: s.a.confirmed, Proposal: s.a.proposal()},
		PartyB:    ParticipantView{ID: s.b.id, Locked: s.b.locked, Confirmed: s.b.confirmed, Proposal: s.b.proposal()},
		CreatedAt: s.createdAt,
		Deadline:  s.deadline,
		Reason:    s.reason,
	}
}

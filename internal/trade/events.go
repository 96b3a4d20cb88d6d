package trade

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a session state-change event.
type EventType string

const (
	EventProposalChanged EventType = "proposal_changed"
	EventLocked          EventType = "locked"
	EventConfirming      EventType = "confirming"
	EventSettled         EventType = "settled"
	EventCancelled       EventType = "cancelled"
	EventFailed          EventType = "failed"
)

// Event is emitted on every observable session state change. It carries
// enough data for a presentation layer to render; the engine itself never
// formats user-facing output.
type Event struct {
	Type          EventType   `json:"type"`
	SessionID     uuid.UUID   `json:"session_id"`
	ParticipantID string      `json:"participant_id,omitempty"`
	Proposal      *Proposal   `json:"proposal,omitempty"`
	Violations    []Violation `json:"violations,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Emitter receives session events. Implementations must not block for long;
// the engine calls Emit outside session mutexes but on request goroutines.
type Emitter interface {
	Emit(Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}

package trade

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/swapdesk/pkg/metrics"
)

// Registry tracks every non-terminal session and enforces the one active
// session per participant invariant. All mutations are linearized through a
// single mutex, so concurrent creates racing for the same pair yield exactly
// one success.
type Registry struct {
	logger *zap.Logger

	mu            sync.Mutex
	byID          map[uuid.UUID]*Session
	byParticipant map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:        logger.Named("registry"),
		byID:          make(map[uuid.UUID]*Session),
		byParticipant: make(map[string]*Session),
	}
}

// Create opens a session between the two participants with the given
// lifetime. It fails with ErrAlreadyActive if either participant is already
// party to a non-terminal session, with anyone.
func (r *Registry) Create(participantA, participantB string, ttl time.Duration) (*Session, error) {
	if participantA == participantB {
		return nil, ErrSelfSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byParticipant[participantA]; ok {
		return nil, ErrAlreadyActive
	}
	if _, ok := r.byParticipant[participantB]; ok {
		return nil, ErrAlreadyActive
	}

	s := newSession(participantA, participantB, ttl)
	r.byID[s.id] = s
	r.byParticipant[participantA] = s
	r.byParticipant[participantB] = s

	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Set(float64(len(r.byID)))
	r.logger.Info("session created",
		zap.String("session_id", s.id.String()),
		zap.String("participant_a", participantA),
		zap.String("participant_b", participantB),
		zap.Time("deadline", s.deadline))
	return s, nil
}

// Get looks a session up by id.
func (r *Registry) Get(sessionID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	return s, ok
}

// Find looks a session up by participant id.
func (r *Registry) Find(participantID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byParticipant[participantID]
	return s, ok
}

// Remove drops a session from the registry. Idempotent: removing an unknown
// id is a no-op.
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)
	delete(r.byParticipant, s.a.id)
	delete(r.byParticipant, s.b.id)
	metrics.ActiveSessions.Set(float64(len(r.byID)))
	r.logger.Debug("session removed", zap.String("session_id", sessionID.String()))
}

// Sessions returns a snapshot of all tracked sessions, for the timeout sweep.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

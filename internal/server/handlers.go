package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/swapdesk/internal/trade"
)

type beginSessionRequest struct {
	Initiator string `json:"initiator" binding:"required"`
	Partner   string `json:"partner" binding:"required"`
}

type participantRequest struct {
	Participant string `json:"participant" binding:"required"`
}

type addItemRequest struct {
	Participant string `json:"participant" binding:"required"`
	ItemRef     string `json:"item_ref" binding:"required"`
}

type bulkAddRequest struct {
	Participant string   `json:"participant" binding:"required"`
	ItemRefs    []string `json:"item_refs" binding:"required"`
	Limit       int      `json:"limit"`
}

type setCurrencyRequest struct {
	Participant string          `json:"participant" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// handleBeginSession handles POST /api/v1/sessions
func (s *Server) handleBeginSession(c *gin.Context) {
	var req beginSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := s.engine.Begin(c.Request.Context(), req.Initiator, req.Partner)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.View())
}

// handleGetSession handles GET /api/v1/sessions/:id
func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.View())
}

// handleFindSession handles GET /api/v1/participants/:id/session
func (s *Server) handleFindSession(c *gin.Context) {
	session, err := s.engine.SessionFor(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.View())
}

// handleSnapshot handles GET /api/v1/sessions/:id/proposal?participant=
func (s *Server) handleSnapshot(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	participant := c.Query("participant")
	if participant == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant query parameter is required"})
		return
	}
	snap, err := session.Snapshot(participant)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleAddItem handles POST /api/v1/sessions/:id/items
func (s *Server) handleAddItem(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.AddItem(c.Request.Context(), id, req.Participant, req.ItemRef); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// handleRemoveItem handles DELETE /api/v1/sessions/:id/items/:ref?participant=
func (s *Server) handleRemoveItem(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	participant := c.Query("participant")
	if participant == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant query parameter is required"})
		return
	}
	if err := s.engine.RemoveItem(c.Request.Context(), id, participant, c.Param("ref")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// handleBulkAdd handles POST /api/v1/sessions/:id/items/bulk
func (s *Server) handleBulkAdd(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	var req bulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added, skipped, err := s.engine.BulkAdd(c.Request.Context(), id, req.Participant, req.ItemRefs, req.Limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "skipped": skipped})
}

// handleSetCurrency handles PUT /api/v1/sessions/:id/currency
func (s *Server) handleSetCurrency(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	var req setCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.SetCurrency(c.Request.Context(), id, req.Participant, req.Amount); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "currency set"})
}

// handleClear handles POST /api/v1/sessions/:id/clear
func (s *Server) handleClear(c *gin.Context) {
	s.participantAction(c, s.engine.Clear, "cleared")
}

// handleLock handles POST /api/v1/sessions/:id/lock
func (s *Server) handleLock(c *gin.Context) {
	s.participantAction(c, s.engine.Lock, "locked")
}

// handleConfirm handles POST /api/v1/sessions/:id/confirm
func (s *Server) handleConfirm(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := s.engine.Session(id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.engine.Confirm(c.Request.Context(), id, req.Participant); err != nil {
		s.respondError(c, err)
		return
	}
	// The session may have just gone terminal; report its final view.
	c.JSON(http.StatusOK, session.View())
}

// handleCancel handles POST /api/v1/sessions/:id/cancel
func (s *Server) handleCancel(c *gin.Context) {
	s.participantAction(c, s.engine.Cancel, "cancelled")
}

// participantAction factors the common bind/dispatch shape of the
// single-participant session operations.
func (s *Server) participantAction(c *gin.Context, fn func(ctx context.Context, id uuid.UUID, participant string) error, status string) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := fn(c.Request.Context(), id, req.Participant); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) session(c *gin.Context) (*trade.Session, bool) {
	id, ok := s.sessionID(c)
	if !ok {
		return nil, false
	}
	session, err := s.engine.Session(id)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return session, true
}

// respondError maps taxonomy errors to stable status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trade.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trade.ErrAlreadyActive),
		errors.Is(err, trade.ErrLocked),
		errors.Is(err, trade.ErrAlreadyStaged),
		errors.Is(err, trade.ErrTooLate),
		errors.Is(err, trade.ErrNotConfirming):
		status = http.StatusConflict
	case errors.Is(err, trade.ErrNotOwned),
		errors.Is(err, trade.ErrNotStaged),
		errors.Is(err, trade.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, trade.ErrSelfSession),
		errors.Is(err, trade.ErrNegativeCurrency),
		errors.Is(err, trade.ErrNotParticipant):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

package handlers

import (
	"errors"
	"net/http"

	"detective_backend/internal/domain"
	"detective_backend/internal/session"

	"github.com/gin-gonic/gin"
)

type CreateRoomRequest struct {
	Brief           string `json:"brief"`
	CulpritPlayerID *int64 `json:"culprit_player_id"`
}

// CreateRoom seeds a new game through the oracle. Slow by nature (the oracle
// authors a whole scenario), hence the per-user action limiter on the route.
func (h *Handler) CreateRoom(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if len(req.Brief) > 2048 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "brief too long"})
		return
	}

	orc, err := h.Manager.CreateRoom(c.Request.Context(), userID, req.CulpritPlayerID, req.Brief)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to author a case: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_id": orc.RoomID(),
		"state":   orc.ClientState(),
	})
}

// GetRoom returns the client view: no culprit flag, no unresolved results.
func (h *Handler) GetRoom(c *gin.Context) {
	orc, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id": orc.RoomID(),
		"state":   orc.ClientState(),
	})
}

func (h *Handler) StartGame(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}
	if err := orc.StartGame(c.Request.Context()); err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": orc.ClientState()})
}

type InterrogationRequest struct {
	SuspectID string `json:"suspect_id"`
}

func (h *Handler) StartInterrogation(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}

	var req InterrogationRequest
	if err := c.BindJSON(&req); err != nil || req.SuspectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "suspect_id required"})
		return
	}

	if err := orc.StartInterrogation(c.Request.Context(), req.SuspectID); err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "interrogating", "suspect_id": req.SuspectID})
}

func (h *Handler) EndInterrogation(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}
	if err := orc.EndInterrogation(c.Request.Context()); err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": orc.ClientState()})
}

type LeadRequest struct {
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	Kind         string `json:"kind"`
}

func (h *Handler) CreateLead(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}

	var req LeadRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	leadID, err := orc.CreateNewLead(c.Request.Context(), req.SourceNodeID, req.TargetNodeID, domain.EdgeKind(req.Kind))
	if err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"lead_id": leadID,
		"state":   orc.ClientState(),
	})
}

func (h *Handler) RemoveLead(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}

	if err := orc.RemoveLead(c.Request.Context(), c.Param("leadId")); err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": orc.ClientState()})
}

// RunAnalysis ends the investigation early and resolves the game from the
// current deduction graph.
func (h *Handler) RunAnalysis(c *gin.Context) {
	orc, ok := h.detectiveRoom(c)
	if !ok {
		return
	}
	if err := orc.RunDeductionAnalysis(c.Request.Context()); err != nil {
		h.gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": orc.ClientState()})
}

// room loads the orchestrator for the :id route param.
func (h *Handler) room(c *gin.Context) (*session.Orchestrator, bool) {
	orc, err := h.Manager.Room(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		}
		return nil, false
	}
	return orc, true
}

// detectiveRoom is room plus an ownership check: mutating game operations are
// detective-only.
func (h *Handler) detectiveRoom(c *gin.Context) (*session.Orchestrator, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	orc, ok := h.room(c)
	if !ok {
		return nil, false
	}
	if orc.DetectiveID() != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the detective runs this case"})
		return nil, false
	}
	return orc, true
}

func (h *Handler) gameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownSuspect), errors.Is(err, session.ErrLeadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, session.ErrWrongPhase),
		errors.Is(err, session.ErrInterrogationBusy),
		errors.Is(err, session.ErrNoInterrogation),
		errors.Is(err, domain.ErrNoActiveRound):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "room changed concurrently, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

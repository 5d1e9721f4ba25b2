package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/dtos"
	"github.com/preetsinghmakkar/SkillSwap/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create books a session with a teacher. The caller is the student.
func (h *SessionHandler) Create(c *gin.Context) {
	studentID, ok := requester(c)
	if !ok {
		return
	}

	var req dtos.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), services.NewSession{
		TeacherID:     uuid.MustParse(req.TeacherID),
		StudentID:     studentID,
		Title:         req.Title,
		Skill:         req.Skill,
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) MySessions(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	var q dtos.ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{Error: err.Error()})
		return
	}

	sessions, err := h.sessions.ListForUser(c.Request.Context(), userID, q.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.SessionListResponse{Sessions: sessions})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Confirm(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessions.Confirm(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dtos.CancelSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	session, err := h.sessions.Cancel(c.Request.Context(), sessionID, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Dispute(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dtos.DisputeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.sessions.Dispute(c.Request.Context(), sessionID, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Start joins the caller to the session's call and returns the session
// with its room id.
func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dtos.StartSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), sessionID, userID, req.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// End records the caller leaving. Repeating it on a completed session
// returns the same session.
func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessions.End(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

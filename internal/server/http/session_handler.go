package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	shiperrors "ship/internal/errors"
	"ship/internal/ship/app"
	"ship/internal/ship/ports"
)

// createSessionRequest mirrors the enriched-intent contract on the wire.
type createSessionRequest struct {
	Description      string            `json:"description" binding:"required"`
	ProjectType      string            `json:"project_type"`
	ArchitectureHint string            `json:"architecture_hint"`
	TechHints        []string          `json:"tech_hints"`
	Features         []string          `json:"features"`
	Preferences      map[string]string `json:"preferences"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	session, err := s.orchestrator.Start(c.Request.Context(), ports.EnrichedIntent{
		Description:      req.Description,
		ProjectType:      req.ProjectType,
		ArchitectureHint: req.ArchitectureHint,
		TechHints:        req.TechHints,
		Features:         req.Features,
		Preferences:      req.Preferences,
	})
	if err != nil {
		var ve *shiperrors.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) handleListSessions(c *gin.Context) {
	ids, err := s.orchestrator.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleExecute(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.orchestrator.Execute(c.Request.Context(), sessionID); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID, "status": "executing"})
}

func (s *Server) handleCancel(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.orchestrator.Cancel(c.Request.Context(), sessionID); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID, "status": "cancelling"})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.orchestrator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// renderSessionError maps orchestrator errors onto HTTP statuses.
func (s *Server) renderSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, app.ErrExecutionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "execution already in flight"})
	case errors.Is(err, app.ErrSessionCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "session already completed"})
	case errors.Is(err, app.ErrNotExecuting):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not executing"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

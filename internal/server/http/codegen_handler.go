package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ship/internal/ship/ports"
)

// codegenStatusResponse is the Code-phase-only view of a session.
type codegenStatusResponse struct {
	SessionID string                   `json:"session_id"`
	Phase     ports.Phase              `json:"phase"`
	Status    ports.SessionStatus      `json:"status"`
	Agents    []codegenAgentStatus     `json:"agents"`
	FileCount int                      `json:"file_count"`
	Review    *ports.IntegrationReport `json:"review,omitempty"`
	Error     *ports.SessionError      `json:"error,omitempty"`
}

type codegenAgentStatus struct {
	Agent      ports.AgentType  `json:"agent"`
	Status     ports.TaskStatus `json:"status"`
	Files      int              `json:"files"`
	Attempts   int              `json:"attempts"`
	Error      string           `json:"error,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func (s *Server) handleCodegenStatus(c *gin.Context) {
	session, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderSessionError(c, err)
		return
	}

	resp := codegenStatusResponse{
		SessionID: session.ID,
		Phase:     session.Phase,
		Status:    session.Status,
		Agents:    []codegenAgentStatus{},
		Error:     session.Error,
	}
	if session.CodeResult != nil {
		resp.FileCount = len(session.CodeResult.Files)
		resp.Review = session.CodeResult.Review
		for _, agent := range ports.AllAgentTypes {
			task, ok := session.CodeResult.Tasks[agent]
			if !ok {
				continue
			}
			status := codegenAgentStatus{
				Agent:      agent,
				Status:     task.Status,
				Attempts:   task.Attempts,
				Error:      task.Error,
				StartedAt:  task.StartedAt,
				FinishedAt: task.FinishedAt,
			}
			if task.Output != nil {
				status.Files = len(task.Output.Files)
			}
			resp.Agents = append(resp.Agents, status)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCodegenDownload(c *gin.Context) {
	session, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderSessionError(c, err)
		return
	}
	if session.CodeResult == nil || len(session.CodeResult.Files) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no generated code available yet"})
		return
	}

	archive, err := s.packager.Package(session.CodeResult.Files)
	if err != nil {
		s.logger.Error("Session %s: packaging failed: %v", session.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "packaging failed"})
		return
	}

	filename := fmt.Sprintf("%s.zip", session.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", archive)
}

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/core/diff"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/execution"
	"github.com/colonyops/hivesync/internal/core/task"
)

// Tasks

func (s *Server) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Tasks.List(c.Param("project")))
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var opts board.CreateTaskOptions
	if !bind(c, &opts) {
		return
	}
	opts.ProjectID = c.Param("project")

	t, err := s.app.Tasks.Create(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.app.Tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var opts board.UpdateTaskOptions
	if !bind(c, &opts) {
		return
	}

	t, err := s.app.Tasks.Update(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.app.Tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListAttempts(c *gin.Context) {
	attempts, err := s.app.Tasks.Attempts(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (s *Server) handleCreateAttempt(c *gin.Context) {
	var opts board.CreateAttemptOptions
	if !bind(c, &opts) {
		return
	}

	a, err := s.app.Tasks.CreateAttempt(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleGetAttempt(c *gin.Context) {
	a, ok := s.app.State.Attempt(c.Param("id"))
	if !ok {
		writeError(c, task.ErrAttemptNotFound)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Drafts

func (s *Server) draftStatus(attemptID string) draft.Status {
	d, st := s.app.Drafts.Get(attemptID)
	return draft.Status{Draft: d, State: st}
}

func (s *Server) requireAttempt(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, ok := s.app.State.Attempt(id); !ok {
		writeError(c, task.ErrAttemptNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) handleGetDraft(c *gin.Context) {
	id, ok := s.requireAttempt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.draftStatus(id))
}

func (s *Server) handleEditDraft(c *gin.Context) {
	var content draft.Content
	if !bind(c, &content) {
		return
	}

	id := c.Param("id")
	if _, err := s.app.Drafts.Edit(c.Request.Context(), id, content); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.draftStatus(id))
}

func (s *Server) handleQueueDraft(c *gin.Context) {
	s.draftAction(c, s.app.Drafts.Queue)
}

func (s *Server) handleUnqueueDraft(c *gin.Context) {
	id, ok := s.requireAttempt(c)
	if !ok {
		return
	}
	if _, err := s.app.Drafts.Unqueue(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.draftStatus(id))
}

func (s *Server) handleSendDraft(c *gin.Context) {
	if _, ok := s.requireAttempt(c); !ok {
		return
	}
	s.draftAction(c, s.app.Drafts.Send)
}

func (s *Server) draftAction(c *gin.Context, fn func(ctx context.Context, attemptID string) (draft.Draft, error)) {
	id := c.Param("id")
	if _, err := fn(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.draftStatus(id))
}

// Executions

type startExecutionRequest struct {
	RunReason execution.RunReason `json:"run_reason"`
}

func (s *Server) handleListExecutions(c *gin.Context) {
	id, ok := s.requireAttempt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.app.Executions.List(id))
}

func (s *Server) handleStartExecution(c *gin.Context) {
	var req startExecutionRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}

	p, err := s.app.Executions.Start(c.Request.Context(), c.Param("id"), req.RunReason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetExecution(c *gin.Context) {
	p, err := s.app.Executions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleFinishExecution(c *gin.Context) {
	var opts board.FinishOptions
	if !bind(c, &opts) {
		return
	}

	p, err := s.app.Executions.Finish(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleStopExecution(c *gin.Context) {
	p, err := s.app.Executions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleAppendRawLogs(c *gin.Context) {
	var lines []execution.LogLine
	if !bind(c, &lines) {
		return
	}
	if err := s.app.Executions.AppendRawLogs(c.Request.Context(), c.Param("id"), lines); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAppendNormalizedLogs(c *gin.Context) {
	var entries []execution.NormalizedEntry
	if !bind(c, &entries) {
		return
	}
	if err := s.app.Executions.AppendNormalizedLogs(c.Request.Context(), c.Param("id"), entries); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleResetLogs(c *gin.Context) {
	if err := s.app.Executions.ResetLogs(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Diffs

func (s *Server) handleGetDiff(c *gin.Context) {
	id, ok := s.requireAttempt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.app.Diffs.Get(id))
}

func (s *Server) handleSetDiff(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if strings.HasPrefix(c.ContentType(), "text/") {
		entries, err := s.app.Diffs.SetUnified(ctx, id, c.Request.Body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	var entries []diff.Entry
	if !bind(c, &entries) {
		return
	}
	if err := s.app.Diffs.Set(ctx, id, entries); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.app.Diffs.Get(id))
}

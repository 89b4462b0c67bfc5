// Package server exposes the state store over HTTP: a REST API for
// mutations and one WebSocket stream per subscribed topic.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/core/logging"
)

// Server is the hivesync HTTP server.
type Server struct {
	app      *board.App
	router   *gin.Engine
	upgrader websocket.Upgrader
	log      zerolog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server for app. Call Start to begin listening.
func New(app *board.App) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		app:    app,
		router: router,
		log:    logging.Component("server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	router.Use(gin.Recovery(), requestLogger(s.log))

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stats", s.handleStats)
		api.GET("/stream/*topic", s.handleStream)

		api.GET("/projects/:project/tasks", s.handleListTasks)
		api.POST("/projects/:project/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.GET("/tasks/:id/attempts", s.handleListAttempts)
		api.POST("/tasks/:id/attempts", s.handleCreateAttempt)

		api.GET("/attempts/:id", s.handleGetAttempt)
		api.GET("/attempts/:id/draft", s.handleGetDraft)
		api.PUT("/attempts/:id/draft", s.handleEditDraft)
		api.POST("/attempts/:id/draft/queue", s.handleQueueDraft)
		api.POST("/attempts/:id/draft/unqueue", s.handleUnqueueDraft)
		api.POST("/attempts/:id/draft/send", s.handleSendDraft)

		api.GET("/attempts/:id/executions", s.handleListExecutions)
		api.POST("/attempts/:id/executions", s.handleStartExecution)
		api.GET("/attempts/:id/diff", s.handleGetDiff)
		api.PUT("/attempts/:id/diff", s.handleSetDiff)

		api.GET("/executions/:id", s.handleGetExecution)
		api.POST("/executions/:id/finish", s.handleFinishExecution)
		api.POST("/executions/:id/stop", s.handleStopExecution)
		api.POST("/executions/:id/raw-logs", s.handleAppendRawLogs)
		api.POST("/executions/:id/normalized-logs", s.handleAppendNormalizedLogs)
		api.DELETE("/executions/:id/logs", s.handleResetLogs)
	}

	if app.Config.Server.Pprof {
		router.GET("/debug/pprof/*name", handlePprof)
	}

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.app.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	s.log.Info().Str("addr", listener.Addr().String()).Msg("starting server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones. Stream
// connections are hijacked and end when the hub closes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		evt := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// handlePprof serves the runtime profiles. Index also serves the named
// profiles (heap, goroutine, ...) from the request path.
func handlePprof(c *gin.Context) {
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "profile":
		pprof.Profile(c.Writer, c.Request)
	case "symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Index(c.Writer, c.Request)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Stats.Snapshot())
}

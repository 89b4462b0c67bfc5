package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/colonyops/hivesync/internal/board"
	"github.com/colonyops/hivesync/internal/core/logging"
	"github.com/colonyops/hivesync/internal/core/stream"
)

// Clients never send data frames; anything beyond a close frame is noise.
const maxClientMessage = 512

// checkOrigin admits non-browser clients, same-origin pages and origins
// matching the configured allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.app.Config.OriginAllowed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// handleStream upgrades the request and streams one topic: the snapshot
// first, then every patch in order, until either side goes away.
func (s *Server) handleStream(c *gin.Context) {
	topic, err := stream.ParseTopic(c.Param("topic"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %w", board.ErrInvalidInput, err))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("topic", topic.String()).Msg("stream upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	connID := uuid.NewString()
	ctx := logging.WithTopic(logging.WithConnID(context.Background(), connID), topic.String())

	sub, err := s.app.State.Subscribe(topic, connID)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("subscribe failed")
		s.closeConn(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer s.app.Hub.DetachConn(connID)

	s.log.Info().Ctx(ctx).Msg("stream opened")
	reason := s.pump(ctx, conn, sub)
	s.log.Info().Ctx(ctx).Str("reason", reason).Msg("stream closed")
}

// pump writes envelopes and pings until the subscriber ends or the client
// stops answering. It returns why the stream ended.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, sub *stream.Subscriber) string {
	cfg := s.app.Config.Streams
	pongWait := cfg.PingInterval + cfg.WriteTimeout

	readDone := make(chan error, 1)
	go func() {
		conn.SetReadLimit(maxClientMessage)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readDone <- err
				return
			}
		}
	}()

	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case env := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteJSON(env); err != nil {
				return "write: " + err.Error()
			}

		case <-sub.Done():
			err := sub.Err()
			switch {
			case errors.Is(err, stream.ErrSlowConsumer):
				s.log.Warn().Ctx(ctx).Msg("dropping slow stream consumer")
				s.closeConn(conn, websocket.CloseTryAgainLater, "slow consumer")
			case errors.Is(err, stream.ErrHubClosed):
				s.closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			default:
				s.closeConn(conn, websocket.CloseNormalClosure, "")
			}
			return fmt.Sprintf("subscriber ended: %v", err)

		case <-ping.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return "ping: " + err.Error()
			}

		case err := <-readDone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "client closed"
			}
			return "read: " + err.Error()
		}
	}
}

func (s *Server) closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.app.Config.Streams.WriteTimeout))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// handleLogStream pushes drained log lines as JSON text frames. With
// ?backlog=N the last N kept lines are sent first.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		http.Error(w, "log export not running", http.StatusServiceUnavailable)
		return
	}
	backlog := 0
	if q := r.URL.Query().Get("backlog"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			http.Error(w, "backlog must be a non-negative integer", http.StatusBadRequest)
			return
		}
		backlog = min(v, s.deps.LogHistory)
	}

	logger := xglog.WithContext(r.Context(), s.logger)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Str(xglog.FieldEvent, "api.stream_upgrade_failed").Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	hub := s.deps.Logs.Hub()
	// Subscribe before reading the backlog so no line falls in between.
	lines, unsubscribe := hub.Subscribe()
	defer func() {
		unsubscribe()
		metrics.SetLogSubscribers(hub.Subscribers())
	}()
	metrics.SetLogSubscribers(hub.Subscribers())
	logger.Info().Str(xglog.FieldEvent, "api.stream_opened").Str("remote", r.RemoteAddr).Msg("log stream client connected")

	var lastSeq uint64
	if backlog > 0 {
		for _, l := range hub.Recent(backlog) {
			if err := writeFrame(conn, l); err != nil {
				return
			}
			lastSeq = l.Seq
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Str(xglog.FieldEvent, "api.stream_read_error").Msg("log stream read failed")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return
			}
			if l.Seq <= lastSeq {
				continue
			}
			if err := writeFrame(conn, l); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(v)
}

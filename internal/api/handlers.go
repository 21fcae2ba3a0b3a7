// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/export"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/logexport"
	"github.com/ManuGH/nlbridge/internal/metrics"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version   string           `json:"version,omitempty"`
	Applet    AppletView       `json:"applet"`
	Export    export.Status    `json:"export"`
	Logs      logexport.Status `json:"logs"`
	LedgerLen *int             `json:"ledger_runs,omitempty"`
}

// AppletView summarises readiness detection.
type AppletView struct {
	Ready    bool   `json:"ready"`
	Attempts int    `json:"attempts"`
	State    string `json:"state,omitempty"`
}

// TriggerResponse is the body of POST /api/v1/export.
type TriggerResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Version: s.deps.Version}
	if s.deps.Applet != nil {
		resp.Applet.Ready = s.deps.Applet.Ready()
		resp.Applet.Attempts = s.deps.Applet.Attempts()
	}
	if s.deps.Readiness != nil {
		resp.Applet.State = string(s.deps.Readiness.State())
	}
	if s.deps.Export != nil {
		resp.Export = s.deps.Export.Status()
	}
	if s.deps.Logs != nil {
		resp.Logs = s.deps.Logs.Status()
	}
	if s.deps.Ledger != nil {
		if n, err := s.deps.Ledger.Len(r.Context()); err == nil {
			resp.LedgerLen = &n
		} else {
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "api.ledger_len_failed").Msg("ledger size unavailable")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTrigger starts a manual export on the scheduler loop.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.deps.Export == nil || s.deps.Loop == nil {
		writeJSON(w, http.StatusServiceUnavailable, TriggerResponse{Status: "unavailable"})
		return
	}

	var (
		err       error
		sessionID string
	)
	if callErr := s.deps.Loop.Call(r.Context(), func() {
		err = s.deps.Export.Trigger(export.TriggerManual)
		sessionID = s.deps.Export.Status().SessionID
	}); callErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, TriggerResponse{Status: "unavailable", Error: callErr.Error()})
		return
	}

	logger := xglog.WithContext(r.Context(), s.logger)
	switch {
	case err == nil:
		metrics.RecordExportTrigger("accepted")
		logger.Info().Str(xglog.FieldEvent, "api.export_triggered").Str(xglog.FieldSessionID, sessionID).Msg("manual export started")
		writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "requested", SessionID: sessionID})
	case errors.Is(err, export.ErrBusy):
		metrics.RecordExportTrigger("busy")
		writeJSON(w, http.StatusConflict, TriggerResponse{Status: "busy", SessionID: sessionID, Error: err.Error()})
	case errors.Is(err, export.ErrNotReady):
		metrics.RecordExportTrigger("not_ready")
		writeJSON(w, http.StatusServiceUnavailable, TriggerResponse{Status: "not_ready", Error: err.Error()})
	case errors.Is(err, applet.ErrCommandRejected):
		metrics.RecordExportTrigger("rejected")
		writeJSON(w, http.StatusBadGateway, TriggerResponse{Status: "rejected", Error: err.Error()})
	default:
		metrics.RecordExportTrigger("failed")
		logger.Warn().Err(err).Str(xglog.FieldEvent, "api.export_failed").Msg("manual export failed")
		writeJSON(w, http.StatusBadGateway, TriggerResponse{Status: "failed", Error: err.Error()})
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Export == nil {
		http.Error(w, "no payload retrieved yet", http.StatusNotFound)
		return
	}
	raw, at, ok := s.deps.Export.LastPayload()
	if !ok {
		http.Error(w, "no payload retrieved yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(raw))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := s.deps.LogHistory
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
			return
		}
		n = min(v, s.deps.LogHistory)
	}
	lines := []logexport.Line{}
	if s.deps.Logs != nil {
		lines = append(lines, s.deps.Logs.Hub().Recent(n)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/controller"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// Legacy success messages.
const (
	msgTurnedOn  = "plug turned on"
	msgTurnedOff = "plug turned off"
)

// handleLegacyTurnOn powers the plug on and answers with the legacy envelope.
func (s *Server) handleLegacyTurnOn(w http.ResponseWriter, r *http.Request) {
	s.legacyPower(w, r, s.gateway.PowerOn, msgTurnedOn)
}

// handleLegacyTurnOff powers the plug off and answers with the legacy envelope.
func (s *Server) handleLegacyTurnOff(w http.ResponseWriter, r *http.Request) {
	s.legacyPower(w, r, s.gateway.PowerOff, msgTurnedOff)
}

func (s *Server) legacyPower(w http.ResponseWriter, r *http.Request, op func(context.Context) (plug.Result, error), message string) {
	res, err := op(r.Context())
	if err != nil {
		writeLegacyError(w, http.StatusInternalServerError, "error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, legacyResponse{
		Success:   true,
		Message:   message,
		Method:    string(res.Method),
		Timestamp: res.Timestamp,
	})
}

// handleLegacyStatus returns the plug status. It always answers 200: a
// failed query is served from the cache and the method says so.
func (s *Server) handleLegacyStatus(w http.ResponseWriter, r *http.Request) {
	res := s.gateway.GetStatus(r.Context())
	writeJSON(w, http.StatusOK, legacyResponse{
		Success:   true,
		Status:    res.Status,
		Method:    string(res.Method),
		Timestamp: time.Now().UTC(),
	})
}

// handleGetPlug queries the controller and returns the full result.
func (s *Server) handleGetPlug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.GetStatus(r.Context()))
}

// handlePlugOn powers the plug on.
func (s *Server) handlePlugOn(w http.ResponseWriter, r *http.Request) {
	s.powerOp(w, r, s.gateway.PowerOn)
}

// handlePlugOff powers the plug off.
func (s *Server) handlePlugOff(w http.ResponseWriter, r *http.Request) {
	s.powerOp(w, r, s.gateway.PowerOff)
}

// handlePlugToggle flips the plug based on a live reading.
func (s *Server) handlePlugToggle(w http.ResponseWriter, r *http.Request) {
	s.powerOp(w, r, s.gateway.Toggle)
}

func (s *Server) powerOp(w http.ResponseWriter, r *http.Request, op func(context.Context) (plug.Result, error)) {
	res, err := op(r.Context())
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeControlError maps gateway errors onto HTTP statuses. Every
// ControlError becomes a 5xx.
func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plug.ErrStatusUnknown):
		writeError(w, http.StatusServiceUnavailable, ErrCodeStatusUnknown, err.Error())
	case errors.Is(err, controller.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, plug.ErrControlFailed):
		writeError(w, http.StatusBadGateway, ErrCodeControlFailed, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// handlePlugHistory lists recent operations, newest first.
func (s *Server) handlePlugHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), s.gateway.Identity().DeviceID, limit)
	if err != nil {
		s.logger.Error("listing plug history failed", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	if entries == nil {
		entries = []plug.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

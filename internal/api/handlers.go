// Package api provides HTTP handlers for ReplyDesk dashboard endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/replydesk/replydesk/internal/models"
)

// templatesHandler handles the template collection (GET/POST /templates).
func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.templatesHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		templates := s.st.Templates()
		slog.Debug("Server.templatesHandler: templates fetched", "count", len(templates))
		writeJSONResponse(w, http.StatusOK, models.Success(templates))
	case http.MethodPost:
		var t models.Template
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			slog.Warn("Server.templatesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.st.AddTemplate(t); err != nil {
			slog.Error("Server.templatesHandler: failed to add template", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save template"))
			return
		}
		slog.Info("Server.templatesHandler: template added", "trigger", t.Trigger)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Template added", s.st.Templates()))
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.templatesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// templateByIndexHandler handles DELETE /templates/{index}. Deleting an
// out-of-range index succeeds without changing anything.
func (s *Server) templateByIndexHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.templateByIndexHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		slog.Warn("Server.templateByIndexHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/templates/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Server.templateByIndexHandler: invalid index", "index", raw)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid template index"))
		return
	}

	if err := s.st.RemoveTemplate(index); err != nil {
		slog.Error("Server.templateByIndexHandler: failed to remove template", "error", err, "index", index)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to remove template"))
		return
	}
	slog.Info("Server.templateByIndexHandler: template removed", "index", index)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Template removed", s.st.Templates()))
}

// personaHandler handles the persona singleton (GET/POST/PUT /persona).
// Updates replace the record wholesale.
func (s *Server) personaHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.personaHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		writeJSONResponse(w, http.StatusOK, models.Success(s.st.Persona()))
	case http.MethodPost, http.MethodPut:
		var p models.Persona
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			slog.Warn("Server.personaHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.st.SetPersona(p); err != nil {
			slog.Error("Server.personaHandler: failed to save persona", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save persona"))
			return
		}
		slog.Info("Server.personaHandler: persona updated", "brand", p.Brand)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Persona updated", p))
	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		slog.Warn("Server.personaHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// statusHandler reports the backend connection state (GET /status).
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	state := s.connState
	hasQR := s.lastQR != ""
	s.mu.RUnlock()

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"connection_state": state,
		"ready":            state == models.ConnectionReady,
		"has_qr":           hasQR,
	}))
}

// requestQRHandler re-runs the login challenge (POST /request-qr). The fresh
// QR code is delivered to dashboard clients over the websocket.
func (s *Server) requestQRHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.requestQRHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.msgService.Reconnect(r.Context()); err != nil {
		slog.Error("Server.requestQRHandler: reconnect failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to request new QR code"))
		return
	}
	slog.Info("Server.requestQRHandler: login challenge requested")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("QR code requested", nil))
}

// restartHandler drops and re-establishes the backend connection
// (POST /restart).
func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.restartHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.msgService.Reconnect(r.Context()); err != nil {
		slog.Error("Server.restartHandler: reconnect failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to restart connection"))
		return
	}
	slog.Info("Server.restartHandler: connection restarted")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Connection restarted", nil))
}

// logoutHandler invalidates the backend session and terminates the process
// (POST /logout). The supervisor is expected to restart it; the fresh process
// comes up unpaired and runs the QR flow again.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.logoutHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.msgService.Logout(r.Context()); err != nil {
		slog.Error("Server.logoutHandler: logout failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to log out"))
		return
	}

	slog.Info("Server.logoutHandler: session logged out, terminating process")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Logged out", nil))
	go func() {
		time.Sleep(exitDelay)
		s.exit(0)
	}()
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"connection_state": s.ConnectionState(),
		"template_count":   len(s.st.Templates()),
	}
	if s.hub != nil {
		healthData["dashboard_clients"] = s.hub.ClientCount()
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}

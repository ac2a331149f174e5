package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/replydesk/replydesk/internal/models"
)

// conversationsHandler handles the conversation collection
// (GET /conversations lists summaries, DELETE /conversations clears all).
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.conversationsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		summaries := s.tracker.Summaries()
		slog.Debug("Server.conversationsHandler: summaries fetched", "count", len(summaries))
		writeJSONResponse(w, http.StatusOK, models.Success(summaries))
	case http.MethodDelete:
		s.tracker.Clear()
		slog.Info("Server.conversationsHandler: all conversations cleared")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("All conversations cleared", nil))
	default:
		w.Header().Set("Allow", "GET, DELETE")
		slog.Warn("Server.conversationsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// conversationBySenderHandler handles one sender's conversation
// (GET /conversations/{sender} returns the retained history,
// DELETE /conversations/{sender} drops it).
func (s *Server) conversationBySenderHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.conversationBySenderHandler: processing request", "method", r.Method, "path", r.URL.Path)

	sender := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if sender == "" || strings.Contains(sender, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown conversation endpoint"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		detail, ok := s.tracker.Detail(sender)
		if !ok {
			slog.Debug("Server.conversationBySenderHandler: conversation not found", "sender", sender)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(detail))
	case http.MethodDelete:
		s.tracker.Delete(sender)
		slog.Info("Server.conversationBySenderHandler: conversation deleted", "sender", sender)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation deleted", nil))
	default:
		w.Header().Set("Allow", "GET, DELETE")
		slog.Warn("Server.conversationBySenderHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

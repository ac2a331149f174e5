// Package api exposes the ReplyDesk dashboard HTTP surface.
//
// It serves template and persona management, connection status and session
// control, conversation inspection, and the realtime websocket endpoint. The
// server owns the process-wide connection state, which it derives from the
// messaging backend's lifecycle events.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/replydesk/replydesk/internal/history"
	"github.com/replydesk/replydesk/internal/messaging"
	"github.com/replydesk/replydesk/internal/models"
	"github.com/replydesk/replydesk/internal/notifier"
	"github.com/replydesk/replydesk/internal/store"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the dashboard API.
	DefaultAddr = ":3001"
	// DefaultReadHeaderTimeout bounds how long reading request headers may take.
	DefaultReadHeaderTimeout = 10 * time.Second
	// exitDelay gives the logout response time to reach the client before the
	// process terminates.
	exitDelay = 100 * time.Millisecond
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string // listen address
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the dashboard HTTP surface to the rest of the system.
type Server struct {
	st         store.Store
	tracker    *history.Tracker
	msgService messaging.Service
	hub        *notifier.Hub
	addr       string

	mu        sync.RWMutex
	connState models.ConnectionState
	lastQR    string

	// exit terminates the process after logout; replaced in tests.
	exit func(code int)

	// webhooks registered by the messaging backend (e.g. Twilio inbound).
	webhooks map[string]http.HandlerFunc
}

// NewServer creates a dashboard API server, applying any provided options.
func NewServer(st store.Store, tracker *history.Tracker, msgService messaging.Service, hub *notifier.Hub, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		st:         st,
		tracker:    tracker,
		msgService: msgService,
		hub:        hub,
		addr:       cfg.Addr,
		connState:  models.ConnectionInitializing,
		exit:       os.Exit,
		webhooks:   make(map[string]http.HandlerFunc),
	}
}

// RegisterWebhook mounts an extra handler, used for backend-specific inbound
// webhooks. Must be called before Run.
func (s *Server) RegisterWebhook(path string, handler http.HandlerFunc) {
	s.webhooks[path] = handler
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/templates", s.templatesHandler)
	mux.HandleFunc("/templates/", s.templateByIndexHandler)
	mux.HandleFunc("/persona", s.personaHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/request-qr", s.requestQRHandler)
	mux.HandleFunc("/logout", s.logoutHandler)
	mux.HandleFunc("/restart", s.restartHandler)
	mux.HandleFunc("/conversations", s.conversationsHandler)
	mux.HandleFunc("/conversations/", s.conversationBySenderHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
	for path, handler := range s.webhooks {
		mux.HandleFunc(path, handler)
	}
	return mux
}

// Run starts the HTTP server and blocks until it fails or the context is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ConsumeLifecycle tracks the messaging backend's connection state and fans
// lifecycle changes out to dashboard clients. Blocks until the context is
// cancelled or the lifecycle channel closes.
func (s *Server) ConsumeLifecycle(ctx context.Context) {
	for {
		select {
		case evt, ok := <-s.msgService.Lifecycle():
			if !ok {
				return
			}
			s.applyLifecycle(evt)
		case <-ctx.Done():
			return
		}
	}
}

// applyLifecycle updates connection state and publishes the matching event.
func (s *Server) applyLifecycle(evt models.LifecycleEvent) {
	s.mu.Lock()
	s.connState = evt.State
	switch evt.State {
	case models.ConnectionQRPending:
		s.lastQR = evt.QRCode
	case models.ConnectionReady, models.ConnectionAuthenticated:
		// QR challenge is resolved once the session pairs.
		s.lastQR = ""
	}
	s.mu.Unlock()

	slog.Info("Connection state changed", "state", evt.State)
	if s.hub == nil {
		return
	}
	switch evt.State {
	case models.ConnectionQRPending:
		s.hub.Publish(models.Event{Kind: models.EventQRCodeUpdated, Payload: map[string]string{"qr": evt.QRCode}})
	case models.ConnectionAuthenticated:
		s.hub.Publish(models.Event{Kind: models.EventAuthenticated})
	case models.ConnectionReady:
		s.hub.Publish(models.Event{Kind: models.EventReady})
	case models.ConnectionDisconnected:
		s.hub.Publish(models.Event{Kind: models.EventDisconnected})
	}
	s.hub.Publish(models.Event{Kind: models.EventConnectionState, Payload: map[string]string{"state": string(evt.State)}})
}

// ConnectionState returns the current backend connection state.
func (s *Server) ConnectionState() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

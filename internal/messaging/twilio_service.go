package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/replydesk/replydesk/internal/models"
	"github.com/replydesk/replydesk/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API. Inbound
// messages arrive through the webhook handler instead of a live connection,
// so there is no QR flow; the service reports ready as soon as it starts.
type TwilioService struct {
	client    twiliowhatsapp.Sender
	messages  chan models.InboundMessage
	lifecycle chan models.LifecycleEvent
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:    client,
		messages:  make(chan models.InboundMessage, DefaultChannelBufferSize),
		lifecycle: make(chan models.LifecycleEvent, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number into +<digits> form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start reports the service ready; Twilio needs no persistent connection.
func (s *TwilioService) Start(ctx context.Context) error {
	select {
	case s.lifecycle <- models.LifecycleEvent{State: models.ConnectionReady}:
	default:
	}
	slog.Info("TwilioService started")
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	slog.Info("TwilioService stopped")
	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Messages returns the channel of inbound messages.
func (s *TwilioService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// Lifecycle returns the channel of connection state changes.
func (s *TwilioService) Lifecycle() <-chan models.LifecycleEvent {
	return s.lifecycle
}

// Logout is unsupported for Twilio; there is no session to invalidate.
func (s *TwilioService) Logout(ctx context.Context) error {
	slog.Debug("TwilioService Logout ignored (no session)")
	return nil
}

// Reconnect is a no-op for Twilio.
func (s *TwilioService) Reconnect(ctx context.Context) error {
	return nil
}

// WebhookHandler handles inbound Twilio webhook requests, emitting parsed
// messages into the Messages channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{From: from, Body: body, Time: time.Now().Unix()}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.From)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	select {
	case s.messages <- msg:
		slog.Debug("TwilioService inbound message forwarded", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService messages channel blocked, dropping message", "from", msg.From)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

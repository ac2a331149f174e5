package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/replydesk/replydesk/internal/models"
	"github.com/replydesk/replydesk/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client // full client for event handling, nil for mocks
	messages  chan models.InboundMessage
	lifecycle chan models.LifecycleEvent
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
// When the sender is a full whatsapp.Client, inbound messages and lifecycle
// events are forwarded; with a mock sender only outbound delivery works.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		messages:  make(chan models.InboundMessage, DefaultChannelBufferSize),
		lifecycle: make(chan models.LifecycleEvent, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number into +<digits> form.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the message event handler, connects the client, and begins
// forwarding lifecycle events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})

	go s.forwardLifecycle(ctx)

	if err := s.waClient.Connect(ctx); err != nil {
		return err
	}
	slog.Info("WhatsAppService started")
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a message through the WhatsApp client.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()
	return s.client.SendMessage(ctx, to, body)
}

// Messages returns the channel of inbound messages.
func (s *WhatsAppService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// Lifecycle returns the channel of connection state changes.
func (s *WhatsAppService) Lifecycle() <-chan models.LifecycleEvent {
	return s.lifecycle
}

// Logout invalidates the WhatsApp session.
func (s *WhatsAppService) Logout(ctx context.Context) error {
	if s.waClient == nil {
		return nil
	}
	return s.waClient.Logout(ctx)
}

// Reconnect drops the connection and connects again, re-running the QR flow
// when the session is not paired.
func (s *WhatsAppService) Reconnect(ctx context.Context) error {
	if s.waClient == nil {
		return nil
	}
	return s.waClient.Reconnect(ctx)
}

// forwardLifecycle copies client lifecycle events onto the service channel
// until the service stops.
func (s *WhatsAppService) forwardLifecycle(ctx context.Context) {
	for {
		select {
		case evt, ok := <-s.waClient.Lifecycle():
			if !ok {
				return
			}
			select {
			case s.lifecycle <- evt:
			default:
				slog.Warn("WhatsAppService lifecycle channel blocked, dropping event", "state", evt.State)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleIncomingMessage converts text messages from the backend into inbound
// messages for the router. Own messages, group chats, and non-text payloads
// are ignored.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	msg := models.InboundMessage{
		From: "+" + evt.Info.Sender.User,
		Body: messageText,
		Time: evt.Info.Timestamp.Unix(),
	}

	select {
	case s.messages <- msg:
		slog.Debug("WhatsAppService inbound message forwarded", "from", msg.From, "body_length", len(msg.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService messages channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
	}
}

// EmitMessage injects an inbound message, bypassing the WhatsApp client.
// Only used by tests running against a mock sender.
func (s *WhatsAppService) EmitMessage(msg models.InboundMessage) {
	select {
	case s.messages <- msg:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService messages channel blocked, dropping injected message", "from", msg.From)
	}
}

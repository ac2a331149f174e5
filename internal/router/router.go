// Package router decides how each inbound message is answered.
//
// Templates are checked first: the message body is matched case-insensitively
// as a substring against each trigger in list order, and the first hit
// short-circuits the AI entirely. Only when no template matches does the
// router call the completion backend, seeded with the persona system prompt
// and the sender's retained history. Every exchange is recorded in history
// and pushed to dashboard clients.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/replydesk/replydesk/internal/history"
	"github.com/replydesk/replydesk/internal/models"
)

// Fixed reply texts for the AI path.
const (
	// FallbackReply is sent when the completion backend returns empty content.
	FallbackReply = "Anlayamadım 😅"
	// UnavailableReply is sent when the completion backend errors. No retry.
	UnavailableReply = "AI servisine şu anda ulaşılamıyor. Daha sonra tekrar deneyin."
)

// TemplateSource provides the current template list and persona.
type TemplateSource interface {
	Templates() []models.Template
	Persona() models.Persona
}

// ReplyGenerator produces an AI reply from a system prompt and history.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, systemPrompt string, turns []models.ConversationTurn) (string, error)
}

// Sender delivers an outbound message.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Notifier pushes realtime events to dashboard clients.
type Notifier interface {
	Publish(event models.Event)
}

// Router consumes inbound messages and produces replies.
type Router struct {
	store    TemplateSource
	genai    ReplyGenerator
	sender   Sender
	notifier Notifier
	tracker  *history.Tracker
}

// NewRouter creates a message router. The notifier may be nil when no
// dashboard push is wanted.
func NewRouter(store TemplateSource, genai ReplyGenerator, sender Sender, notifier Notifier, tracker *history.Tracker) *Router {
	return &Router{
		store:    store,
		genai:    genai,
		sender:   sender,
		notifier: notifier,
		tracker:  tracker,
	}
}

// Run consumes inbound messages until the channel closes or the context is
// cancelled. Messages are processed sequentially in arrival order.
func (r *Router) Run(ctx context.Context, messages <-chan models.InboundMessage) {
	slog.Info("Router started")
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				slog.Info("Router stopped: message channel closed")
				return
			}
			r.Handle(ctx, msg)
		case <-ctx.Done():
			slog.Info("Router stopped", "reason", ctx.Err())
			return
		}
	}
}

// Handle resolves and delivers the reply for one inbound message.
func (r *Router) Handle(ctx context.Context, msg models.InboundMessage) {
	reply, record := r.resolveReply(ctx, msg)

	if err := r.sender.SendMessage(ctx, msg.From, reply); err != nil {
		slog.Error("Failed to send reply", "to", msg.From, "error", err)
		return
	}

	if record {
		r.tracker.Append(msg.From, models.ConversationTurn{Role: models.RoleAssistant, Content: reply})
	}
	if r.notifier != nil {
		r.notifier.Publish(models.Event{
			Kind: models.EventMessageExchanged,
			Payload: models.MessageExchange{
				Sender:   msg.From,
				Inbound:  msg.Body,
				Outbound: reply,
			},
		})
	}
	slog.Info("Reply delivered", "to", msg.From, "reply_length", len(reply))
}

// resolveReply records the inbound turn and picks the reply text: first
// matching template, else AI completion. The second return reports whether the
// reply belongs in history; the apology for a failed backend does not.
func (r *Router) resolveReply(ctx context.Context, msg models.InboundMessage) (string, bool) {
	r.tracker.Append(msg.From, models.ConversationTurn{Role: models.RoleUser, Content: msg.Body})

	if reply, matched := r.matchTemplate(msg.Body); matched {
		slog.Debug("Template matched", "from", msg.From)
		return reply, true
	}
	return r.generateReply(ctx, msg.From)
}

// matchTemplate returns the reply of the first template whose trigger is a
// case-insensitive substring of the body. An empty trigger matches everything.
func (r *Router) matchTemplate(body string) (string, bool) {
	lowered := strings.ToLower(body)
	for _, t := range r.store.Templates() {
		if strings.Contains(lowered, strings.ToLower(t.Trigger)) {
			return t.Reply, true
		}
	}
	return "", false
}

// generateReply asks the completion backend for a reply using the persona
// system prompt and the sender's retained history. Failures map to fixed
// reply texts; a failed AI call is never retried.
func (r *Router) generateReply(ctx context.Context, sender string) (string, bool) {
	prompt := SystemPrompt(r.store.Persona())
	reply, err := r.genai.GenerateReply(ctx, prompt, r.tracker.Turns(sender))
	if err != nil {
		slog.Error("Completion backend failed", "sender", sender, "error", err)
		return UnavailableReply, false
	}
	if reply == "" {
		return FallbackReply, true
	}
	return reply, true
}

// SystemPrompt renders the persona into the assistant system instruction.
func SystemPrompt(p models.Persona) string {
	return fmt.Sprintf("Sen %s markasının resmi WhatsApp asistanısın.\nAdres: %s\nTarz: %s\n%s",
		p.Brand, p.Address, p.Tone, p.ExtraInstructions)
}

// Package history tracks per-sender conversation logs for the message router.
//
// History exists only in process memory and is lost on restart. Each sender's
// log is capped; once the cap is reached the oldest turn is evicted on every
// append. The router owns the tracker and passes it explicitly rather than
// relying on ambient global state.
package history

import (
	"log/slog"
	"sync"
	"time"

	"github.com/replydesk/replydesk/internal/models"
)

// MaxTurnsPerSender caps how many turns are retained for one sender.
const MaxTurnsPerSender = 20

type conversation struct {
	turns       []models.ConversationTurn
	lastUpdated time.Time
}

// Tracker holds bounded conversation logs keyed by sender identifier.
type Tracker struct {
	mu            sync.Mutex
	conversations map[string]*conversation
}

// NewTracker creates an empty conversation tracker.
func NewTracker() *Tracker {
	return &Tracker{conversations: make(map[string]*conversation)}
}

// Append records a turn for the sender, evicting the oldest turn first once
// the cap is exceeded.
func (t *Tracker) Append(sender string, turn models.ConversationTurn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conversations[sender]
	if !ok {
		c = &conversation{}
		t.conversations[sender] = c
	}
	c.turns = append(c.turns, turn)
	if len(c.turns) > MaxTurnsPerSender {
		c.turns = c.turns[1:]
		slog.Debug("history evicted oldest turn", "sender", sender, "cap", MaxTurnsPerSender)
	}
	c.lastUpdated = time.Now()
}

// Turns returns a copy of the retained turns for the sender in chronological
// order. An unknown sender yields an empty slice.
func (t *Tracker) Turns(sender string) []models.ConversationTurn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conversations[sender]
	if !ok {
		return nil
	}
	out := make([]models.ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Summaries returns one dashboard summary per known sender, keyed by sender.
func (t *Tracker) Summaries() map[string]models.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.Conversation, len(t.conversations))
	for sender, c := range t.conversations {
		last := ""
		if n := len(c.turns); n > 0 {
			last = c.turns[n-1].Content
		}
		out[sender] = models.Conversation{
			Phone:           sender,
			LastMessage:     last,
			LastMessageTime: c.lastUpdated,
			MessageCount:    len(c.turns),
		}
	}
	return out
}

// Detail returns the full retained history for one sender.
func (t *Tracker) Detail(sender string) (models.ConversationDetail, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conversations[sender]
	if !ok {
		return models.ConversationDetail{}, false
	}
	turns := make([]models.ConversationTurn, len(c.turns))
	copy(turns, c.turns)
	return models.ConversationDetail{Phone: sender, MessageCount: len(turns), History: turns}, true
}

// Delete drops one sender's history.
func (t *Tracker) Delete(sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conversations, sender)
}

// Clear drops all history.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversations = make(map[string]*conversation)
}

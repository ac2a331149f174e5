package notifier

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/replydesk/replydesk/internal/models"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitForClients(t, h, 1)
	return conn
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connected clients, got %d", want, h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishReachesConnectedClient(t *testing.T) {
	h := NewHub()
	conn := dialTestHub(t, h)

	h.Publish(models.Event{Kind: models.EventReady})
	h.Publish(models.Event{
		Kind:    models.EventMessageExchanged,
		Payload: models.MessageExchange{Sender: "+905551112233", Inbound: "merhaba", Outbound: "Hoş geldiniz"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first models.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if first.Kind != models.EventReady {
		t.Errorf("expected ready event first, got %q", first.Kind)
	}

	var second struct {
		Kind    models.EventKind       `json:"kind"`
		Payload models.MessageExchange `json:"payload"`
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if second.Kind != models.EventMessageExchanged || second.Payload.Outbound != "Hoş geldiniz" {
		t.Errorf("unexpected message event: %+v", second)
	}
}

func TestPublishWithoutClientsIsFireAndForget(t *testing.T) {
	h := NewHub()
	// Must not block or panic with no subscribers.
	h.Publish(models.Event{Kind: models.EventDisconnected})
	if got := h.ClientCount(); got != 0 {
		t.Errorf("expected no clients, got %d", got)
	}
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	h := NewHub()
	conn := dialTestHub(t, h)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected client removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

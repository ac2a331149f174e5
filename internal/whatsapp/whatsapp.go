// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in
// ReplyDesk.
//
// It provides methods for sending messages, handles the QR login flow, and
// surfaces session lifecycle changes as events.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	// Database drivers for the whatsmeow session store.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/replydesk/replydesk/internal/models"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/replydesk/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
	// lifecycleBufferSize bounds the lifecycle event channel.
	lifecycleBufferSize = 16
)

// Sender is an interface for sending WhatsApp messages (for production and testing)
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the client to use a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient  *whatsmeow.Client
	container *sqlstore.Container
	cfg       Opts
	lifecycle chan models.LifecycleEvent
}

// NewClient creates a new WhatsApp client, applying any provided options.
// The session store driver is auto-detected from the DSN (sqlite or postgres).
// The client is not connected yet; call Connect.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp session store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get device from session store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp session store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	c := &Client{
		waClient:  waClient,
		container: container,
		cfg:       cfg,
		lifecycle: make(chan models.LifecycleEvent, lifecycleBufferSize),
	}
	waClient.AddEventHandler(c.handleEvent)
	return c, nil
}

// Lifecycle returns the channel of connection state changes.
func (c *Client) Lifecycle() <-chan models.LifecycleEvent {
	return c.lifecycle
}

// emit forwards a lifecycle event without ever blocking the whatsmeow event
// loop; stale events are dropped when the consumer lags.
func (c *Client) emit(evt models.LifecycleEvent) {
	select {
	case c.lifecycle <- evt:
	default:
		slog.Warn("WhatsApp lifecycle channel full, dropping event", "state", evt.State)
	}
}

// handleEvent maps whatsmeow session events onto lifecycle states.
func (c *Client) handleEvent(rawEvt interface{}) {
	switch rawEvt.(type) {
	case *events.PairSuccess:
		slog.Info("WhatsApp session paired")
		c.emit(models.LifecycleEvent{State: models.ConnectionAuthenticated})
	case *events.Connected:
		slog.Info("WhatsApp connected")
		c.emit(models.LifecycleEvent{State: models.ConnectionReady})
	case *events.Disconnected:
		slog.Warn("WhatsApp disconnected")
		c.emit(models.LifecycleEvent{State: models.ConnectionDisconnected})
	case *events.LoggedOut:
		slog.Warn("WhatsApp session logged out remotely")
		c.emit(models.LifecycleEvent{State: models.ConnectionDisconnected})
	case *events.StreamReplaced:
		slog.Warn("WhatsApp stream replaced by another session")
		c.emit(models.LifecycleEvent{State: models.ConnectionDisconnected})
	}
}

// Connect establishes the WhatsApp session. When no stored session exists the
// QR login flow runs in the background: each code is rendered to the
// configured writer and surfaced as a qr_pending lifecycle event for the
// dashboard.
func (c *Client) Connect(ctx context.Context) error {
	if c.waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, err := c.waClient.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := c.waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		go c.consumeQRChannel(qrChan)
		return nil
	}

	slog.Debug("WhatsApp already logged in, connecting to server")
	if err := c.waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	return nil
}

// consumeQRChannel renders login codes and emits lifecycle events until the
// login flow finishes.
func (c *Client) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	writer := io.Writer(os.Stdout)
	if c.cfg.QRPath != "" {
		f, err := os.Create(c.cfg.QRPath)
		if err != nil {
			slog.Error("Failed to create QR file, falling back to stdout", "error", err, "path", c.cfg.QRPath)
		} else {
			defer f.Close()
			writer = f
		}
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if c.cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
			c.emit(models.LifecycleEvent{State: models.ConnectionQRPending, QRCode: evt.Code})
		} else {
			slog.Debug("WhatsApp login event", "event", evt.Event)
		}
	}
}

// Reconnect tears down the current connection and connects again, re-running
// the QR flow when the session is not paired. Used by the dashboard's
// request-qr and restart actions.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.waClient.IsConnected() {
		c.waClient.Disconnect()
	}
	return c.Connect(ctx)
}

// Logout invalidates the stored session and disconnects.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.waClient.Logout(ctx); err != nil {
		slog.Error("WhatsApp logout failed", "error", err)
		return fmt.Errorf("failed to log out of WhatsApp: %w", err)
	}
	slog.Info("WhatsApp session logged out")
	return nil
}

// Disconnect closes the connection without invalidating the session.
func (c *Client) Disconnect() {
	c.waClient.Disconnect()
}

// IsLoggedIn reports whether a paired, connected session exists.
func (c *Client) IsLoggedIn() bool {
	return c.waClient.IsLoggedIn()
}

// SendMessage sends a WhatsApp text message to the specified recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return models.ErrEmptyBody
	}
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	jid := types.NewJID(strings.TrimPrefix(to, "+"), JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// MockClient implements Sender without a real WhatsApp connection (for tests).
type MockClient struct {
	Sent []MockMessage
	Err  error
}

// MockMessage records one SendMessage call.
type MockMessage struct {
	To   string
	Body string
}

// NewMockClient creates an empty mock sender.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message, or returns the configured error.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, MockMessage{To: to, Body: body})
	return nil
}

// Package models defines the core data structures for ReplyDesk.
//
// It includes types for reply templates, the assistant persona, conversation
// history, connection lifecycle state, and realtime events, which are shared
// across modules.
package models

import (
	"errors"
	"time"
)

// Template maps a trigger phrase to a canned reply. Triggers are matched as
// case-insensitive substrings of the inbound message body; list order is
// significant (first match wins) and duplicate triggers are allowed. An empty
// trigger matches every message.
type Template struct {
	Trigger string `json:"trigger"`
	Reply   string `json:"reply"`
}

// Persona describes the brand voice used to seed AI-generated replies.
// It is a singleton record replaced wholesale on update.
type Persona struct {
	Brand             string `json:"brand"`
	Address           string `json:"address"`
	Tone              string `json:"tone"`
	ExtraInstructions string `json:"extra_instructions"`
}

// Default persona values used when no persona file exists yet.
func DefaultPersona() Persona {
	return Persona{
		Brand:             "XYZ Şirketi",
		Address:           "Örnek Mah. 123, İstanbul",
		Tone:              "Samimi, kısa ve anlaşılır",
		ExtraInstructions: "Asla spam yapma, her zaman yardımcı ol.",
	}
}

// Role identifies which side of a conversation produced a turn.
type Role string

const (
	// RoleUser marks a turn authored by the WhatsApp sender.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by ReplyDesk (template or AI).
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single entry in a sender's conversation history.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation summarizes one sender's history for the dashboard list view.
type Conversation struct {
	Phone           string    `json:"phone"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	MessageCount    int       `json:"messageCount"`
}

// ConversationDetail is the full retained history for one sender.
type ConversationDetail struct {
	Phone        string             `json:"phone"`
	MessageCount int                `json:"messageCount"`
	History      []ConversationTurn `json:"history"`
}

// InboundMessage is a message received from the messaging backend.
type InboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// ConnectionState tracks the messaging backend session lifecycle. It is
// process-wide and mutated only by lifecycle events from the backend.
type ConnectionState string

const (
	// ConnectionInitializing means the client is starting up.
	ConnectionInitializing ConnectionState = "initializing"
	// ConnectionQRPending means a QR login challenge is waiting to be scanned.
	ConnectionQRPending ConnectionState = "qr_pending"
	// ConnectionAuthenticated means the session was paired but is not yet ready.
	ConnectionAuthenticated ConnectionState = "authenticated"
	// ConnectionReady means the session is connected and messages flow.
	ConnectionReady ConnectionState = "ready"
	// ConnectionDisconnected means the session dropped or was logged out.
	ConnectionDisconnected ConnectionState = "disconnected"
)

// LifecycleEvent reports a connection state change from the messaging
// backend. QRCode is set only while a login challenge is pending.
type LifecycleEvent struct {
	State  ConnectionState `json:"state"`
	QRCode string          `json:"qr_code,omitempty"`
}

// EventKind enumerates the realtime events pushed to dashboard clients.
type EventKind string

const (
	// EventQRCodeUpdated carries a fresh QR login code payload.
	EventQRCodeUpdated EventKind = "qr_code_updated"
	// EventAuthenticated signals a successful pairing.
	EventAuthenticated EventKind = "authenticated"
	// EventReady signals the session is connected and operational.
	EventReady EventKind = "ready"
	// EventDisconnected signals the session dropped.
	EventDisconnected EventKind = "disconnected"
	// EventMessageExchanged carries one inbound/outbound message pair.
	EventMessageExchanged EventKind = "message_exchanged"
	// EventConnectionState carries a full connection state snapshot.
	EventConnectionState EventKind = "connection_state"
)

// Event is a single realtime notification. Delivery is fire-and-forget with
// no ordering guarantee across kinds and no replay for late subscribers.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageExchange is the payload of an EventMessageExchanged event.
type MessageExchange struct {
	Sender   string `json:"sender"`
	Inbound  string `json:"inbound"`
	Outbound string `json:"outbound"`
}

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
	ErrMalformedStore = errors.New("store file is malformed")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

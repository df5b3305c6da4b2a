package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is sent after a document has been anonymized
	EventTypeRedaction EventType = "redaction_completed"
	// EventTypeValidationFailed is sent when residual PII survives anonymization
	EventTypeValidationFailed EventType = "validation_failed"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RedactionEvent describes a completed anonymization. It carries counts and
// category labels only, never document text or names.
type RedactionEvent struct {
	DocumentRef    string         `json:"document_ref,omitempty"`
	OriginalLength int            `json:"original_length"`
	NamesRedacted  int            `json:"names_redacted"`
	PIIRedacted    map[string]int `json:"pii_redacted"`
	Clean          bool           `json:"is_clean"`
	Cached         bool           `json:"cached"`
	ProcessingMS   float64        `json:"processing_ms"`
}

// ValidationFailedEvent reports how many residual issues were found
type ValidationFailedEvent struct {
	DocumentRef string `json:"document_ref,omitempty"`
	Issues      int    `json:"issues"`
	Blocked     bool   `json:"blocked"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	ClientIP     string        `json:"client_ip"`
	UserAgent    string        `json:"user_agent,omitempty"`
	Duration     time.Duration `json:"duration"`
	RequestSize  int64         `json:"request_size"`
	ResponseSize int64         `json:"response_size"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	conn        *websocket.Conn
	send        chan Event
	events      map[EventType]bool
	ConnectedAt time.Time
	IP          string
	UserAgent   string
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int64     `json:"active_connections"`
	TotalMessages     int64     `json:"total_messages"`
	TotalBroadcasts   int64     `json:"total_broadcasts"`
	DroppedEvents     int64     `json:"dropped_events"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}

// Package feed serves conductor's live job-event feed over WebSocket.
// Clients exchange frame-based messages: subscribe to stream topics,
// replenish flow-control credits, and issue one-shot pipeline requests
// (schedule, cancel, inspect). Events published by the stream broker are
// pushed as event frames. The wire format is JSON by default; clients
// may negotiate MessagePack on the hello frame.
package feed

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the feed message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g. "job.schedule").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Topic identifies the subscription topic for event frames.
	Topic string `json:"topic,omitempty" msgpack:"topic,omitempty"`

	// Credits replenishes flow-control credits (backpressure).
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Well-known methods ──────────────────────────────

const (
	// MethodHello negotiates the wire format; must be the first frame.
	MethodHello = "hello"

	// Pipeline methods.
	MethodJobSchedule = "job.schedule"
	MethodJobCancel   = "job.cancel"
	MethodJobGet      = "job.get"
	MethodJobCurrent  = "job.current"
	MethodJobQueued   = "job.queued"
	MethodJobTimeline = "job.timeline"

	// Settings methods. Updates propagate to the scheduler so a changed
	// auto-optimize flag or idle delay takes effect immediately.
	MethodSettingsGet    = "settings.get"
	MethodSettingsUpdate = "settings.update"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"

	// MethodStats reports broker statistics.
	MethodStats = "stats"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeNotFound       = 404
	ErrCodeMethodNotFound = 405
	ErrCodeConflict       = 409
	ErrCodeInternal       = 500
)

// ── Request/Response payloads ───────────────────────

// HelloRequest is the first frame a client sends.
type HelloRequest struct {
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// HelloResponse confirms the negotiated format and session.
type HelloResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// JobScheduleRequest enqueues a pipeline job.
type JobScheduleRequest struct {
	Type        string         `json:"type"`
	StartAt     *time.Time     `json:"start_at,omitempty"`
	MaxRetries  int            `json:"max_retries,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// JobScheduleResponse confirms job creation.
type JobScheduleResponse struct {
	JobID        string `json:"job_id"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	ScheduledFor string `json:"scheduled_for"`
}

// JobCancelRequest cancels a job.
type JobCancelRequest struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

// JobCancelResponse reports whether the cancellation took effect.
type JobCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// JobGetRequest retrieves a job by ID.
type JobGetRequest struct {
	JobID string `json:"job_id"`
}

// JobListRequest bounds list responses.
type JobListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// SettingsGetRequest reads one pipeline setting.
type SettingsGetRequest struct {
	Key string `json:"key"`
}

// SettingsUpdateRequest writes one pipeline setting.
type SettingsUpdateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsResponse echoes a setting after a get or update.
type SettingsResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SubscribeRequest subscribes to a stream topic.
type SubscribeRequest struct {
	Topic   string `json:"topic"`
	Credits int    `json:"credits,omitempty"` // initial credits (0 = default)
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Topic string `json:"topic"`
}

// ── Frame constructors ──────────────────────────────

// NewRequestFrame creates a request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameErr,
		CorrelID:  correlID,
		Error:     &ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription topic.
func NewEventFrame(topic string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameEvent,
		Topic:     topic,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID. A timestamp with
// nanosecond precision is unique enough for a single connection.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000")
}

func generateFrameID() string { return GenerateFrameID() }

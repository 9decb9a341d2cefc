// Package stream provides a real-time event broker for conductor
// lifecycle events. It bridges the ext.Extension system to connected
// clients via topic-based pub/sub; the feed package serves these events
// over WebSocket.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobScheduled EventType = "job.scheduled"
	EventJobStarted   EventType = "job.started"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"

	// EventIdleOptimize fires when the idle timer schedules maintenance.
	EventIdleOptimize EventType = "optimize.idle"

	// EventCronFired fires when a recurring schedule enqueues a job.
	EventCronFired EventType = "cron.fired"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity-specific channel this event was published on.
	Topic string `json:"topic,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type"`
	Status       string `json:"status"`
	Description  string `json:"description,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
	NextRunAt    string `json:"next_run_at,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// CronEventData is the payload for cron fire events.
type CronEventData struct {
	EntryName string `json:"entry_name"`
	JobID     string `json:"job_id"`
}

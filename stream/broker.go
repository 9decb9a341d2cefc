package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobScheduled = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobSucceeded = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.JobCancelled = (*Broker)(nil)
	_ ext.IdleOptimize = (*Broker)(nil)
	_ ext.CronFired    = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker receives scheduler lifecycle events through the ext hook
// interfaces and fans them out to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (the feed server).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

func (b *Broker) publish(evt *Event, jobType string) {
	delivered := b.topics.Broadcast(resolveTopics(evt, jobType), evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming
// error: payload types contain only marshalable fields).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func (b *Broker) publishJob(evtType EventType, j *job.Job, mutate func(*JobEventData)) {
	data := JobEventData{
		JobID:       j.ID.String(),
		JobType:     string(j.Type),
		Status:      string(j.Status),
		Description: j.Description,
	}
	if mutate != nil {
		mutate(&data)
	}
	b.publish(&Event{
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data:      mustMarshal(data),
	}, string(j.Type))
}

// ── Lifecycle hooks ─────────────────────────────────

func (b *Broker) OnJobScheduled(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobScheduled, j, func(d *JobEventData) {
		d.ScheduledFor = j.ScheduledFor.Format(time.RFC3339)
	})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, j, func(d *JobEventData) {
		d.Attempt = j.Attempts
		d.MaxRetries = j.MaxRetries
	})
	return nil
}

func (b *Broker) OnJobSucceeded(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publishJob(EventJobSucceeded, j, func(d *JobEventData) {
		d.ElapsedMs = elapsed.Milliseconds()
	})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	b.publishJob(EventJobRetrying, j, func(d *JobEventData) {
		d.Attempt = attempt
		d.MaxRetries = j.MaxRetries
		d.NextRunAt = nextRunAt.Format(time.RFC3339)
		d.Error = j.LastError
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.publishJob(EventJobFailed, j, func(d *JobEventData) {
		d.Attempt = j.Attempts
		d.MaxRetries = j.MaxRetries
		d.Error = jobErr.Error()
	})
	return nil
}

func (b *Broker) OnJobCancelled(_ context.Context, j *job.Job, reason string) error {
	b.publishJob(EventJobCancelled, j, func(d *JobEventData) {
		d.CancelReason = reason
	})
	return nil
}

func (b *Broker) OnIdleOptimize(_ context.Context, j *job.Job) error {
	b.publishJob(EventIdleOptimize, j, nil)
	return nil
}

func (b *Broker) OnCronFired(_ context.Context, entryName string, jobID id.JobID) error {
	b.publish(&Event{
		Type:      EventCronFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(CronEventData{
			EntryName: entryName,
			JobID:     jobID.String(),
		}),
	}, "")
	return nil
}

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}

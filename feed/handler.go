package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
	"github.com/quantfold/conductor/stream"
)

// Pipeline is the scheduler surface the feed exposes to clients.
type Pipeline interface {
	ScheduleJob(ctx context.Context, t job.Type, opts ...job.Option) (*job.Job, error)
	CancelJob(ctx context.Context, jobID id.JobID, reason string) bool
	GetJob(jobID id.JobID) (*job.Job, error)
	CurrentJob() *job.Job
	QueuedJobs() []*job.Job
	RecentJobs(limit int) []*job.Job
	JobTimeline(limit int) []*job.Job
	RefreshAutoOptimizeSettings(ctx context.Context) error
}

// Handler routes request frames to pipeline and subscription operations.
type Handler struct {
	pipeline Pipeline
	broker   *stream.Broker
	settings store.SettingsStore
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSettingsStore enables the settings.get/settings.update methods.
// Without it they answer with a method-not-found error.
func WithSettingsStore(s store.SettingsStore) HandlerOption {
	return func(h *Handler) { h.settings = s }
}

// NewHandler creates a frame handler backed by the given pipeline and
// stream broker.
func NewHandler(pipeline Pipeline, broker *stream.Broker, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		pipeline: pipeline,
		broker:   broker,
		logger:   logger.With("component", "feed"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes a request frame and returns the response frame.
// Always returns a frame: errors become error frames.
func (h *Handler) Handle(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	if frame.Type != FrameRequest {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, fmt.Sprintf("unexpected frame type %q", frame.Type))
	}

	switch frame.Method {
	case MethodSubscribe:
		return h.handleSubscribe(frame, conn)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame, conn)
	case MethodJobSchedule:
		return h.handleJobSchedule(ctx, frame)
	case MethodJobCancel:
		return h.handleJobCancel(ctx, frame)
	case MethodJobGet:
		return h.handleJobGet(frame)
	case MethodJobCurrent:
		return h.mustResponse(frame, h.pipeline.CurrentJob())
	case MethodJobQueued:
		return h.mustResponse(frame, h.pipeline.QueuedJobs())
	case MethodJobTimeline:
		return h.handleJobTimeline(frame)
	case MethodSettingsGet:
		return h.handleSettingsGet(ctx, frame)
	case MethodSettingsUpdate:
		return h.handleSettingsUpdate(ctx, frame)
	case MethodStats:
		return h.mustResponse(frame, h.broker.Stats())
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", frame.Method))
	}
}

func (h *Handler) handleSubscribe(frame *Frame, conn *Connection) *Frame {
	var req SubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed subscribe payload")
	}
	if err := stream.ValidateTopic(req.Topic); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}

	h.broker.SubscribeTo(conn.ID, req.Topic)
	if req.Credits > 0 && conn.Subscriber != nil {
		conn.Subscriber.AddCredits(int64(req.Credits))
	}
	h.logger.Debug("topic subscribed", "conn", conn.ID, "topic", req.Topic)
	return h.mustResponse(frame, map[string]any{"topic": req.Topic, "subscribed": true})
}

func (h *Handler) handleUnsubscribe(frame *Frame, conn *Connection) *Frame {
	var req UnsubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed unsubscribe payload")
	}

	h.broker.Unsubscribe(conn.ID, req.Topic)
	h.logger.Debug("topic unsubscribed", "conn", conn.ID, "topic", req.Topic)
	return h.mustResponse(frame, map[string]any{"topic": req.Topic, "subscribed": false})
}

func (h *Handler) handleJobSchedule(ctx context.Context, frame *Frame) *Frame {
	var req JobScheduleRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed job.schedule payload")
	}

	var opts []job.Option
	if req.StartAt != nil {
		opts = append(opts, job.WithStartAt(*req.StartAt))
	}
	if req.MaxRetries > 0 {
		opts = append(opts, job.WithMaxRetries(req.MaxRetries))
	}
	if req.Description != "" {
		opts = append(opts, job.WithDescription(req.Description))
	}
	if req.Metadata != nil {
		opts = append(opts, job.WithMetadata(req.Metadata))
	}

	j, err := h.pipeline.ScheduleJob(ctx, job.Type(req.Type), opts...)
	if err != nil {
		switch {
		case errors.Is(err, conductor.ErrUnknownType), errors.Is(err, conductor.ErrNoHandler):
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
		case errors.Is(err, conductor.ErrShutdown):
			return NewErrorFrame(frame.ID, ErrCodeConflict, err.Error())
		default:
			return NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
		}
	}

	return h.mustResponse(frame, JobScheduleResponse{
		JobID:        j.ID.String(),
		Type:         string(j.Type),
		Status:       string(j.Status),
		ScheduledFor: j.ScheduledFor.Format(time.RFC3339Nano),
	})
}

func (h *Handler) handleJobCancel(ctx context.Context, frame *Frame) *Frame {
	var req JobCancelRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed job.cancel payload")
	}
	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled via feed"
	}

	cancelled := h.pipeline.CancelJob(ctx, jobID, reason)
	return h.mustResponse(frame, JobCancelResponse{Cancelled: cancelled})
}

func (h *Handler) handleJobGet(frame *Frame) *Frame {
	var req JobGetRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed job.get payload")
	}
	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}

	j, err := h.pipeline.GetJob(jobID)
	if err != nil {
		if errors.Is(err, conductor.ErrJobNotFound) {
			return NewErrorFrame(frame.ID, ErrCodeNotFound, err.Error())
		}
		return NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
	}
	return h.mustResponse(frame, j)
}

func (h *Handler) handleJobTimeline(frame *Frame) *Frame {
	var req JobListRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed job.timeline payload")
		}
	}
	return h.mustResponse(frame, h.pipeline.JobTimeline(req.Limit))
}

func (h *Handler) handleSettingsGet(ctx context.Context, frame *Frame) *Frame {
	if h.settings == nil {
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "settings store not configured")
	}
	var req SettingsGetRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.Key == "" {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed settings.get payload")
	}

	value, err := h.settings.GetSetting(ctx, req.Key)
	if err != nil {
		if errors.Is(err, conductor.ErrSettingNotFound) {
			return NewErrorFrame(frame.ID, ErrCodeNotFound, err.Error())
		}
		return NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
	}
	return h.mustResponse(frame, SettingsResponse{Key: req.Key, Value: value})
}

func (h *Handler) handleSettingsUpdate(ctx context.Context, frame *Frame) *Frame {
	if h.settings == nil {
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "settings store not configured")
	}
	var req SettingsUpdateRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.Key == "" {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "malformed settings.update payload")
	}

	if err := h.settings.SetSetting(ctx, req.Key, req.Value); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
	}
	// The scheduler re-reads the store so flag and delay changes take
	// effect without a restart.
	if err := h.pipeline.RefreshAutoOptimizeSettings(ctx); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, err.Error())
	}
	h.logger.Info("setting updated", "key", req.Key)
	return h.mustResponse(frame, SettingsResponse{Key: req.Key, Value: req.Value})
}

// mustResponse wraps data in a response frame, degrading to an internal
// error frame if the payload cannot be marshalled.
func (h *Handler) mustResponse(req *Frame, data any) *Frame {
	resp, err := NewResponseFrame(req.ID, data)
	if err != nil {
		h.logger.Error("marshal response", "method", req.Method, "error", err)
		return NewErrorFrame(req.ID, ErrCodeInternal, "response encoding failed")
	}
	return resp
}

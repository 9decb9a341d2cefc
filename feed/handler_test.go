package feed_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/conductor"
	"github.com/quantfold/conductor/feed"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
	"github.com/quantfold/conductor/store/memory"
	"github.com/quantfold/conductor/stream"
)

// fakePipeline is an in-memory Pipeline for handler tests.
type fakePipeline struct {
	jobs      map[id.JobID]*job.Job
	cancelled map[id.JobID]string
	refreshes int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		jobs:      make(map[id.JobID]*job.Job),
		cancelled: make(map[id.JobID]string),
	}
}

func (p *fakePipeline) ScheduleJob(_ context.Context, t job.Type, opts ...job.Option) (*job.Job, error) {
	if !t.Valid() {
		return nil, conductor.ErrUnknownType
	}
	o := job.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	j := &job.Job{
		ID:           id.NewJobID(),
		Type:         t,
		Status:       job.StatusQueued,
		ScheduledFor: time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
		Description:  o.Description,
		Metadata:     o.Metadata,
	}
	p.jobs[j.ID] = j
	return j, nil
}

func (p *fakePipeline) CancelJob(_ context.Context, jobID id.JobID, reason string) bool {
	if _, ok := p.jobs[jobID]; !ok {
		return false
	}
	p.cancelled[jobID] = reason
	return true
}

func (p *fakePipeline) GetJob(jobID id.JobID) (*job.Job, error) {
	j, ok := p.jobs[jobID]
	if !ok {
		return nil, conductor.ErrJobNotFound
	}
	return j, nil
}

func (p *fakePipeline) CurrentJob() *job.Job     { return nil }
func (p *fakePipeline) QueuedJobs() []*job.Job   { return nil }
func (p *fakePipeline) RecentJobs(int) []*job.Job { return nil }

func (p *fakePipeline) RefreshAutoOptimizeSettings(context.Context) error {
	p.refreshes++
	return nil
}

func (p *fakePipeline) JobTimeline(int) []*job.Job {
	out := make([]*job.Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j)
	}
	return out
}

func newTestHandler(t *testing.T, p feed.Pipeline, opts ...feed.HandlerOption) (*feed.Handler, *stream.Broker) {
	t.Helper()
	broker := stream.NewBroker(slog.Default())
	return feed.NewHandler(p, broker, slog.Default(), opts...), broker
}

func requestFrame(t *testing.T, method string, payload any) *feed.Frame {
	t.Helper()
	f, err := feed.NewRequestFrame(feed.GenerateFrameID(), method, payload)
	if err != nil {
		t.Fatalf("build request frame: %v", err)
	}
	return f
}

func TestHandler_JobScheduleAndGet(t *testing.T) {
	p := newFakePipeline()
	h, _ := newTestHandler(t, p)
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodJobSchedule, feed.JobScheduleRequest{
		Type:        "sync",
		Description: "manual sync",
	}), conn)
	if resp.Type != feed.FrameResponse {
		t.Fatalf("schedule: got frame type %q, error=%v", resp.Type, resp.Error)
	}

	var scheduled feed.JobScheduleResponse
	if err := json.Unmarshal(resp.Data, &scheduled); err != nil {
		t.Fatalf("decode schedule response: %v", err)
	}
	if scheduled.Type != "sync" || scheduled.Status != "queued" {
		t.Fatalf("unexpected schedule response: %+v", scheduled)
	}

	resp = h.Handle(context.Background(), requestFrame(t, feed.MethodJobGet, feed.JobGetRequest{
		JobID: scheduled.JobID,
	}), conn)
	if resp.Type != feed.FrameResponse {
		t.Fatalf("get: got frame type %q, error=%v", resp.Type, resp.Error)
	}
	var fetched job.Job
	if err := json.Unmarshal(resp.Data, &fetched); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if fetched.Description != "manual sync" {
		t.Fatalf("fetched wrong job: %+v", fetched)
	}
}

func TestHandler_JobGetNotFound(t *testing.T) {
	h, _ := newTestHandler(t, newFakePipeline())
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodJobGet, feed.JobGetRequest{
		JobID: id.NewJobID().String(),
	}), conn)
	if resp.Type != feed.FrameErr || resp.Error == nil || resp.Error.Code != feed.ErrCodeNotFound {
		t.Fatalf("expected 404 error frame, got %+v", resp)
	}
}

func TestHandler_ScheduleUnknownTypeRejected(t *testing.T) {
	h, _ := newTestHandler(t, newFakePipeline())
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodJobSchedule, feed.JobScheduleRequest{
		Type: "massage",
	}), conn)
	if resp.Type != feed.FrameErr || resp.Error.Code != feed.ErrCodeBadRequest {
		t.Fatalf("expected 400 error frame, got %+v", resp)
	}
}

func TestHandler_CancelReportsOutcome(t *testing.T) {
	p := newFakePipeline()
	h, _ := newTestHandler(t, p)
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	j, err := p.ScheduleJob(context.Background(), job.TypeBacktest)
	if err != nil {
		t.Fatal(err)
	}

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodJobCancel, feed.JobCancelRequest{
		JobID: j.ID.String(),
	}), conn)
	var cancelled feed.JobCancelResponse
	if err := json.Unmarshal(resp.Data, &cancelled); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if !cancelled.Cancelled {
		t.Fatal("expected cancellation to succeed")
	}
	if p.cancelled[j.ID] != "cancelled via feed" {
		t.Fatalf("default reason not applied: %q", p.cancelled[j.ID])
	}
}

func TestHandler_SubscribeValidatesTopic(t *testing.T) {
	h, broker := newTestHandler(t, newFakePipeline())
	sub := broker.Subscribe("c1")
	conn := feed.NewConnection("c1", feed.JSONCodec{}, sub)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodSubscribe, feed.SubscribeRequest{
		Topic: "bogus topic!!",
	}), conn)
	if resp.Type != feed.FrameErr || resp.Error.Code != feed.ErrCodeBadRequest {
		t.Fatalf("expected 400 for invalid topic, got %+v", resp)
	}

	resp = h.Handle(context.Background(), requestFrame(t, feed.MethodSubscribe, feed.SubscribeRequest{
		Topic: stream.TopicJobs,
	}), conn)
	if resp.Type != feed.FrameResponse {
		t.Fatalf("expected subscribe to succeed, got %+v", resp)
	}
	if n := broker.Topics().SubscriberCount(stream.TopicJobs); n != 1 {
		t.Fatalf("topic subscriber count = %d, want 1", n)
	}
}

func TestHandler_UnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t, newFakePipeline())
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, "job.teleport", nil), conn)
	if resp.Type != feed.FrameErr || resp.Error.Code != feed.ErrCodeMethodNotFound {
		t.Fatalf("expected 405 error frame, got %+v", resp)
	}
}

func TestHandler_SettingsUpdateRefreshesScheduler(t *testing.T) {
	p := newFakePipeline()
	st := memory.New()
	h, _ := newTestHandler(t, p, feed.WithSettingsStore(st))
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodSettingsUpdate, feed.SettingsUpdateRequest{
		Key:   store.KeyAutoOptimizeEnabled,
		Value: "false",
	}), conn)
	if resp.Type != feed.FrameResponse {
		t.Fatalf("update: got frame type %q, error=%v", resp.Type, resp.Error)
	}

	got, err := st.GetSetting(context.Background(), store.KeyAutoOptimizeEnabled)
	if err != nil || got != "false" {
		t.Fatalf("setting not persisted: %q %v", got, err)
	}
	if p.refreshes != 1 {
		t.Fatalf("scheduler refresh called %d times, want 1", p.refreshes)
	}

	resp = h.Handle(context.Background(), requestFrame(t, feed.MethodSettingsGet, feed.SettingsGetRequest{
		Key: store.KeyAutoOptimizeEnabled,
	}), conn)
	var setting feed.SettingsResponse
	if err := json.Unmarshal(resp.Data, &setting); err != nil {
		t.Fatalf("decode settings response: %v", err)
	}
	if setting.Value != "false" {
		t.Fatalf("settings.get = %+v, want value %q", setting, "false")
	}
}

func TestHandler_SettingsRequireConfiguredStore(t *testing.T) {
	p := newFakePipeline()
	h, _ := newTestHandler(t, p)
	conn := feed.NewConnection("c1", feed.JSONCodec{}, nil)

	resp := h.Handle(context.Background(), requestFrame(t, feed.MethodSettingsUpdate, feed.SettingsUpdateRequest{
		Key: store.KeyIdleDelay, Value: "10m",
	}), conn)
	if resp.Type != feed.FrameErr || resp.Error.Code != feed.ErrCodeMethodNotFound {
		t.Fatalf("expected 405 without a settings store, got %+v", resp)
	}
	if p.refreshes != 0 {
		t.Fatalf("refresh called %d times with no store, want 0", p.refreshes)
	}

	resp = h.Handle(context.Background(), requestFrame(t, feed.MethodSettingsGet, feed.SettingsGetRequest{
		Key: store.KeyIdleDelay,
	}), conn)
	if resp.Type != feed.FrameErr || resp.Error.Code != feed.ErrCodeMethodNotFound {
		t.Fatalf("expected 405 without a settings store, got %+v", resp)
	}
}

func TestGetCodec_Negotiation(t *testing.T) {
	c, err := feed.GetCodec("")
	if err != nil || c.Name() != "json" {
		t.Fatalf("empty format should default to json, got %v %v", c, err)
	}
	c, err = feed.GetCodec("msgpack")
	if err != nil || c.Name() != "msgpack" || !c.Binary() {
		t.Fatalf("msgpack negotiation failed: %v %v", c, err)
	}
	if _, err := feed.GetCodec("bson"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

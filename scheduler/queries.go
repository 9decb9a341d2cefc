package scheduler

import (
	"sort"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// CurrentJob returns a snapshot of the running job, or nil when idle.
func (s *Scheduler) CurrentJob() *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.rec.j.Clone()
}

// GetJob returns a snapshot of the job with the given id.
func (s *Scheduler) GetJob(jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID.String()]
	if !ok {
		return nil, conductor.ErrJobNotFound
	}
	return rec.j.Clone(), nil
}

// QueuedJobs returns snapshots of all queued jobs in execution order:
// earliest ScheduledFor first, CreatedAt breaking ties.
func (s *Scheduler) QueuedJobs() []*job.Job {
	s.mu.Lock()
	var recs []*record
	for _, rec := range s.order {
		if rec.j.Status == job.StatusQueued {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, k int) bool { return dueBefore(recs[i], recs[k]) })
	out := make([]*job.Job, len(recs))
	for i, rec := range recs {
		out[i] = rec.j.Clone()
	}
	s.mu.Unlock()
	return out
}

// RecentJobs returns snapshots of the most recently created jobs, newest
// first. limit <= 0 returns all of them.
func (s *Scheduler) RecentJobs(limit int) []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*job.Job, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.order[i].j.Clone())
	}
	return out
}

// JobTimeline returns the pipeline's activity view: the running job
// first, then queued jobs in execution order, then terminal jobs newest
// finish first. limit caps the terminal portion; limit <= 0 means no cap.
func (s *Scheduler) JobTimeline(limit int) []*job.Job {
	s.mu.Lock()

	var active []*record
	var queued []*record
	var done []*record
	for _, rec := range s.order {
		switch {
		case rec.j.Status == job.StatusRunning:
			active = append(active, rec)
		case rec.j.Status == job.StatusQueued:
			queued = append(queued, rec)
		default:
			done = append(done, rec)
		}
	}
	sort.SliceStable(queued, func(i, k int) bool { return dueBefore(queued[i], queued[k]) })
	sort.SliceStable(done, func(i, k int) bool {
		a, b := done[i].j.FinishedAt, done[k].j.FinishedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	if limit > 0 && len(done) > limit {
		done = done[:limit]
	}

	out := make([]*job.Job, 0, len(active)+len(queued)+len(done))
	for _, rec := range active {
		out = append(out, rec.j.Clone())
	}
	for _, rec := range queued {
		out = append(out, rec.j.Clone())
	}
	for _, rec := range done {
		out = append(out, rec.j.Clone())
	}
	s.mu.Unlock()
	return out
}

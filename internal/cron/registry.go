package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is one unit of scheduled work. Run must be safe to repeat.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job   Job
	every time.Duration
}

// Registry holds the jobs a worker runs, in registration order. A job with a
// cadence only runs once that much time passed since its last start in this
// process; jobs without one run every cycle.
type Registry struct {
	entries []scheduled
	names   map[string]int
}

// NewRegistry registers jobs to run every cycle. nil jobs are ignored and a
// repeated name keeps the first registration.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: map[string]int{}}
	for _, job := range jobs {
		_ = r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) error {
	return r.RegisterEvery(job, 0)
}

// RegisterEvery adds job with a minimum gap between runs.
func (r *Registry) RegisterEvery(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("cron job is nil")
	}
	if every < 0 {
		return fmt.Errorf("cron job %s: negative cadence %s", job.Name(), every)
	}
	if r.names == nil {
		r.names = map[string]int{}
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("cron job %s already registered", job.Name())
	}
	r.names[job.Name()] = len(r.entries)
	r.entries = append(r.entries, scheduled{job: job, every: every})
	return nil
}

// Jobs returns a copy of every registered job.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now, given when each job
// last started.
func (r *Registry) Due(lastStart map[string]time.Time, now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		last, ran := lastStart[e.job.Name()]
		if e.every == 0 || !ran || now.Sub(last) >= e.every {
			due = append(due, e.job)
		}
	}
	return due
}

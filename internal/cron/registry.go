package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Job is one unit of scheduled work. Name labels its logs and metrics.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry runs jobs in registration order. The zero value is ready to use.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return errors.New("job required")
	}
	name := job.Name()
	if name == "" {
		return errors.New("job name required")
	}
	if slices.ContainsFunc(r.jobs, func(j Job) bool { return j.Name() == name }) {
		return fmt.Errorf("job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy, so callers cannot reorder the registry.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

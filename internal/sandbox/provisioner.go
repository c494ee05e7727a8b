package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// Job is a snapshot of a background provisioning job.
type Job struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Stack     string                   `json:"stack"`
	State     constants.ProvisionState `json:"state"`
	Record    *domain.SandboxRecord    `json:"record,omitempty"`
	Error     string                   `json:"error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`

	err error
}

// Provisioner runs Manager.Ensure on background workers so image builds and
// container creation do not block the caller, who polls the job instead.
type Provisioner struct {
	mgr    Manager
	sem    *semaphore.Weighted
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewProvisioner creates a Provisioner running at most workers jobs at a time.
func NewProvisioner(mgr Manager, workers int, logger zerolog.Logger) *Provisioner {
	if workers < 1 {
		workers = 1
	}
	return &Provisioner{
		mgr:    mgr,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
		jobs:   make(map[string]*Job),
	}
}

// Submit queues an Ensure of name with stack and returns the job id. The job
// outlives ctx cancellation of the caller.
func (p *Provisioner) Submit(ctx context.Context, name, stack string) string {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Stack:     stack,
		State:     constants.ProvisionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(bg, job.ID)
	}()

	p.logger.Debug().Str("job_id", job.ID).Str("sandbox", name).Str("stack", stack).Msg("provisioning job submitted")
	return job.ID
}

func (p *Provisioner) run(ctx context.Context, id string) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.finish(id, nil, err)
		return
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	job := p.jobs[id]
	job.State = constants.ProvisionRunning
	job.UpdatedAt = time.Now().UTC()
	name, stack := job.Name, job.Stack
	p.mu.Unlock()

	start := time.Now()
	rec, err := p.mgr.Ensure(ctx, name, stack)
	p.finish(id, rec, err)

	ev := p.logger.Info()
	if err != nil {
		ev = p.logger.Error().Err(err)
	}
	ev.Str("job_id", id).Str("sandbox", name).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("provisioning job finished")
}

func (p *Provisioner) finish(id string, rec *domain.SandboxRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job := p.jobs[id]
	job.UpdatedAt = time.Now().UTC()
	if err != nil {
		job.State = constants.ProvisionFailed
		job.Error = err.Error()
		job.err = err
		return
	}
	job.State = constants.ProvisionReady
	job.Record = rec
}

// Status returns a snapshot of the job.
func (p *Provisioner) Status(id string) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", forgeerrors.ErrJobNotFound, id)
	}
	return *job, nil
}

// Wait polls the job every interval until it reaches a terminal state.
func (p *Provisioner) Wait(ctx context.Context, id string, interval time.Duration) (*domain.SandboxRecord, error) {
	if interval <= 0 {
		interval = constants.ProvisionPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := p.Status(id)
		if err != nil {
			return nil, err
		}
		switch job.State {
		case constants.ProvisionReady:
			return job.Record, nil
		case constants.ProvisionFailed:
			return nil, fmt.Errorf("%w: %s: %w", forgeerrors.ErrProvisionFailed, job.Name, job.err)
		case constants.ProvisionPending, constants.ProvisionRunning:
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown waits for in-flight jobs to finish or ctx to end.
func (p *Provisioner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

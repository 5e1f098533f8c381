/*
Package jobs coordinates recalculation work.

PURPOSE:
  Serializes concurrent recalculation requests per policy, runs jobs on a
  bounded worker pool, and handles the retry/failure lifecycle.

STATE MACHINE:
  QUEUED -> RUNNING -> {DONE, FAILED}

  At most one job may be live (QUEUED or RUNNING) for a policy at any
  time. Enqueueing a policy that already has a live job coalesces into it
  and returns the existing job ID, never a duplicate.

RETRY POLICY:
  Transient errors (version conflict, persistence failure) are retried
  with capped exponential backoff, up to MaxAttempts. Deterministic
  defects (unknown policy, invalid risk score, layer misconfiguration)
  fail immediately: retrying cannot change a data or config defect.

CANCELLATION:
  A job may be canceled only while QUEUED. Once RUNNING it runs to
  completion; partial writes are never flushed, so there is nothing to
  interrupt mid-computation.

USAGE:
  coord := jobs.NewCoordinator(recalc, store, 4)
  coord.Start()
  defer coord.Stop()
  jobID, _ := coord.Enqueue(ctx, policyID, asOf, "RISK_SCORE_UPDATED")
*/
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsure/premium-engine/engine"
)

// =============================================================================
// JOB - Transient work-queue record
// =============================================================================

type JobID string

type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

type Job struct {
	ID       JobID
	PolicyID engine.PolicyID
	AsOf     time.Time
	Trigger  string
	Status   Status
	Message  string
	Attempts int

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Recalc *engine.Recalculator
	Audit  engine.AuditLog

	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	mu      sync.Mutex
	jobs    map[JobID]*Job
	live    map[engine.PolicyID]JobID // QUEUED or RUNNING job per policy
	queue   chan JobID
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewCoordinator creates a coordinator over the given recalculator. The
// audit log receives an entry for every terminal failure; it is normally
// the same store the recalculator writes to.
func NewCoordinator(recalc *engine.Recalculator, audit engine.AuditLog, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		Recalc:      recalc,
		Audit:       audit,
		Workers:     workers,
		MaxAttempts: 5,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		jobs:        make(map[JobID]*Job),
		live:        make(map[engine.PolicyID]JobID),
		queue:       make(chan JobID, 1024),
	}
}

// Start launches the worker pool. A stopped coordinator may be started
// again; jobs still queued from before the stop are picked up.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true
	c.stop = make(chan struct{})

	stop := c.stop
	for i := 0; i < c.Workers; i++ {
		c.wg.Add(1)
		go c.worker(stop)
	}
	log.Printf("[Coordinator] Started with %d workers", c.Workers)
}

// Stop shuts the pool down. Running jobs finish; queued jobs stay queued
// and are picked up if the pool is started again.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stop := c.stop
	c.mu.Unlock()

	close(stop)
	c.wg.Wait()
	log.Println("[Coordinator] Stopped")
}

// Enqueue submits a recalculation for a policy. If the policy already has
// a live job, the request coalesces into it and the existing job ID is
// returned.
func (c *Coordinator) Enqueue(_ context.Context, policyID engine.PolicyID, asOf time.Time, trigger string) (JobID, error) {
	c.mu.Lock()

	if existing, ok := c.live[policyID]; ok {
		if job := c.jobs[existing]; job != nil && (job.Status == StatusQueued || job.Status == StatusRunning) {
			c.mu.Unlock()
			return existing, nil
		}
	}

	job := &Job{
		ID:        JobID(uuid.NewString()),
		PolicyID:  policyID,
		AsOf:      asOf,
		Trigger:   trigger,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	c.jobs[job.ID] = job
	c.live[policyID] = job.ID
	c.mu.Unlock()

	select {
	case c.queue <- job.ID:
		return job.ID, nil
	default:
		// Queue full: roll the record back so a later enqueue can retry.
		c.mu.Lock()
		delete(c.jobs, job.ID)
		delete(c.live, policyID)
		c.mu.Unlock()
		return "", fmt.Errorf("recalculation queue full")
	}
}

// GetJob returns a copy of the job record or ErrJobNotFound.
func (c *Coordinator) GetJob(id JobID) (Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return Job{}, engine.ErrJobNotFound
	}
	return *job, nil
}

// Cancel aborts a job that has not started yet. Once RUNNING, a job runs
// to completion and cannot be canceled.
func (c *Coordinator) Cancel(id JobID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return engine.ErrJobNotFound
	}
	if job.Status != StatusQueued {
		return fmt.Errorf("job %s is %s, only queued jobs can be canceled", id, job.Status)
	}
	c.finishLocked(job, StatusFailed, "canceled while queued")
	return nil
}

// =============================================================================
// WORKERS
// =============================================================================

func (c *Coordinator) worker(stop <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		case id := <-c.queue:
			c.process(id)
		}
	}
}

func (c *Coordinator) process(id JobID) {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok || job.Status != StatusQueued {
		// Canceled while queued.
		c.mu.Unlock()
		return
	}
	started := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &started
	policyID, asOf, trigger := job.PolicyID, job.AsOf, job.Trigger
	c.mu.Unlock()

	ctx := context.Background()

	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		c.mu.Lock()
		job.Attempts = attempt
		c.mu.Unlock()

		result, err := c.Recalc.Recalculate(ctx, policyID, asOf, trigger)
		if err == nil {
			message := fmt.Sprintf("snapshot %s written", result.Snapshot.ID)
			if result.Skipped {
				message = "skipped: unchanged risk state"
			}
			c.mu.Lock()
			c.finishLocked(job, StatusDone, message)
			c.mu.Unlock()
			return
		}

		lastErr = err
		if !engine.IsRetryable(err) {
			break
		}
		if attempt < c.MaxAttempts {
			backoff := c.backoff(attempt)
			log.Printf("[Coordinator] Job %s attempt %d failed (%v), retrying in %v", id, attempt, err, backoff)
			time.Sleep(backoff)
		}
	}

	c.fail(ctx, job, lastErr)
}

func (c *Coordinator) fail(ctx context.Context, job *Job, cause error) {
	c.mu.Lock()
	c.finishLocked(job, StatusFailed, cause.Error())
	policyID, trigger := job.PolicyID, job.Trigger
	c.mu.Unlock()

	log.Printf("[Coordinator] Job %s failed: %v", job.ID, cause)

	// Policy history shows every attempt, not just successes.
	entry := engine.AuditEntry{
		ID:        uuid.NewString(),
		PolicyID:  policyID,
		Reason:    engine.AuditFailed + ": " + cause.Error(),
		Trigger:   trigger,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Audit.AppendAudit(ctx, entry); err != nil {
		log.Printf("[Coordinator] Failed to record audit entry for job %s: %v", job.ID, err)
	}
}

// finishLocked moves a job to a terminal state and releases the policy's
// live slot. Caller holds c.mu.
func (c *Coordinator) finishLocked(job *Job, status Status, message string) {
	finished := time.Now().UTC()
	job.Status = status
	job.Message = message
	job.FinishedAt = &finished
	if c.live[job.PolicyID] == job.ID {
		delete(c.live, job.PolicyID)
	}
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.BaseBackoff << (attempt - 1)
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

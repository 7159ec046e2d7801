package connect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a background job
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobWarned    JobStatus = "warned" // skipped because an input file is missing
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// JobFunc is the work of a job. A non-nil Warning marks the job as skipped.
type JobFunc func(ctx context.Context) (*Warning, error)

// Job is a unit of background work such as a matrix rescale
type Job struct {
	ID      string
	Name    string
	Started time.Time

	mu       sync.RWMutex
	status   JobStatus
	err      error
	warning  *Warning
	finished time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// JobInfo is a serializable view of a job
type JobInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Status   JobStatus `json:"status"`
	Error    string    `json:"error,omitempty"`
	Warning  *Warning  `json:"warning,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
}

// Done is closed when the job finishes
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the job to stop
func (j *Job) Cancel() {
	j.cancel()
}

// Status returns the current status
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Err returns the failure cause of a failed or canceled job
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Warning returns the warning of a skipped job
func (j *Job) Warning() *Warning {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.warning
}

// Info returns a snapshot of the job
func (j *Job) Info() JobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	info := JobInfo{
		ID:       j.ID,
		Name:     j.Name,
		Status:   j.status,
		Warning:  j.warning,
		Started:  j.Started,
		Finished: j.finished,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

func (j *Job) finish(w *Warning, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		j.status = JobCanceled
		j.err = err
	case err != nil:
		j.status = JobFailed
		j.err = err
	case w != nil:
		j.status = JobWarned
		j.warning = w
	default:
		j.status = JobSucceeded
	}
}

// JobRunner starts jobs on their own goroutines and keeps their history
type JobRunner struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	onFinished func(*Job)
	wg         sync.WaitGroup
}

// NewJobRunner creates a runner. onFinished, when non-nil, is called from
// the job goroutine after each job completes and before Done is closed.
func NewJobRunner(onFinished func(*Job)) *JobRunner {
	return &JobRunner{
		jobs:       make(map[string]*Job),
		onFinished: onFinished,
	}
}

// Submit starts fn in the background and returns immediately
func (r *JobRunner) Submit(ctx context.Context, name string, fn JobFunc) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:      uuid.NewString(),
		Name:    name,
		Started: time.Now(),
		status:  JobRunning,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	log.Printf("[JOB] %s started (%s)", name, job.ID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		w, err := runJob(jobCtx, fn)
		job.finish(w, err)

		switch job.Status() {
		case JobFailed, JobCanceled:
			log.Printf("[JOB] %s %s: %v", name, job.Status(), err)
		case JobWarned:
			log.Printf("[JOB] %s skipped: %s", name, w.Message)
		default:
			log.Printf("[JOB] %s finished in %v", name, time.Since(job.Started).Round(time.Millisecond))
		}

		if r.onFinished != nil {
			r.onFinished(job)
		}
		close(job.done)
	}()

	return job
}

// runJob converts a panic in fn into a job failure
func runJob(ctx context.Context, fn JobFunc) (w *Warning, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// Get returns a job by ID
func (r *JobRunner) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// List returns all jobs, oldest first
func (r *JobRunner) List() []JobInfo {
	r.mu.RLock()
	infos := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		infos = append(infos, j.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(a, b int) bool {
		return infos[a].Started.Before(infos[b].Started)
	})
	return infos
}

// Wait blocks until every submitted job has finished
func (r *JobRunner) Wait() {
	r.wg.Wait()
}

// Package jobs runs training calls in the background and lets callers poll
// their status, progress and log.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/training"
	"github.com/google/uuid"
	"github.com/tevino/abool"
	"go.uber.org/zap"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var (
	ErrManagerClosed = errors.New("job manager is closed")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
)

type Job struct {
	ID          string
	Type        string
	Description string
	Status      JobStatus
	Stage       training.Stage
	Progress    float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       error
	Result      *training.Result
	Logs        []string

	cancelFunc context.CancelFunc
	done       chan struct{}
	mu         sync.RWMutex
}

type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed *abool.AtomicBool
	logger *zap.SugaredLogger
}

func NewManager(logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		closed: abool.New(),
		logger: logger,
	}
}

// createJob registers a pending job and reserves its slot in the wait
// group, all under m.mu. It fails once Close has started.
func (m *Manager) createJob(jobType, description string, cancel context.CancelFunc) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.IsSet() {
		return nil, ErrManagerClosed
	}

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Description: description,
		Status:      JobPending,
		StartTime:   time.Now(),
		Logs:        []string{},
		cancelFunc:  cancel,
		done:        make(chan struct{}),
	}

	m.jobs[job.ID] = job
	m.wg.Add(1)
	return job, nil
}

// SubmitTraining starts cfg on ds in its own goroutine and returns at once.
// ds must not be modified until the job has finished. Cancelling ctx or
// calling CancelJob stops the run at the next stage boundary.
func (m *Manager) SubmitTraining(ctx context.Context, ds *data.Dataset, cfg training.Config) (*Job, error) {
	jobCtx, cancel := context.WithCancel(ctx)
	job, err := m.createJob("train", fmt.Sprintf("Training %s model", cfg.Algorithm), cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	log := m.logger.With("job_id", job.ID, "algorithm", cfg.Algorithm)
	log.Infow("Training job queued", "rows", ds.Len())

	trainer := training.NewTrainer(
		training.WithLogger(log),
		training.WithProgress(func(p training.Progress) {
			job.setProgress(p)
		}),
	)

	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()

		job.SetStatus(JobRunning)
		job.AddLog(fmt.Sprintf("Starting training of %s model on %d rows", cfg.Algorithm, ds.Len()))

		result, err := trainer.TrainDataset(jobCtx, ds, cfg)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			job.AddLog("Training cancelled")
			job.SetStatus(JobCancelled)
			log.Infow("Training job cancelled")
		case err != nil:
			job.AddLog(fmt.Sprintf("Training failed: %v", err))
			job.SetError(err)
			log.Errorw("Training job failed", "error", err)
		default:
			job.SetResult(result)
			job.AddLog(fmt.Sprintf("Training completed. Accuracy: %.4f", result.Report.Accuracy))
			job.SetStatus(JobCompleted)
			log.Infow("Training job completed", "accuracy", result.Report.Accuracy)
		}
	}()

	return job, nil
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns every job, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].StartTime.Before(jobs[j].StartTime)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// CancelJob asks a pending or running job to stop. The status changes to
// cancelled once the job observes the request.
func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job.mu.RLock()
	status, cancel := job.Status, job.cancelFunc
	job.mu.RUnlock()

	if status != JobRunning && status != JobPending {
		return fmt.Errorf("%w: %s is %s", ErrJobNotRunning, jobID, status)
	}

	if cancel != nil {
		cancel()
	}
	job.AddLog("Cancellation requested")
	return nil
}

// Close rejects new submissions, cancels running jobs and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	first := m.closed.SetToIf(false, true)
	m.mu.Unlock()
	if !first {
		return
	}

	for _, job := range m.ListJobs() {
		job.mu.RLock()
		cancel := job.cancelFunc
		job.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
	}
	m.wg.Wait()
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	if status == JobCompleted || status == JobFailed || status == JobCancelled {
		now := time.Now()
		j.EndTime = &now
	}
}

func (j *Job) setProgress(p training.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = p.Stage
	j.Progress = p.Fraction()
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = err
	j.Status = JobFailed
	now := time.Now()
	j.EndTime = &now
}

func (j *Job) SetResult(result *training.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = result
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

func (j *Job) GetStage() training.Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return logs
}

// Wait blocks until the job finishes or ctx is done and returns the
// training result or the error that ended the job.
func (j *Job) Wait(ctx context.Context) (*training.Result, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	switch j.Status {
	case JobCompleted:
		return j.Result, nil
	case JobCancelled:
		return nil, context.Canceled
	default:
		return nil, j.Error
	}
}

// Done is closed when the job reaches a final status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

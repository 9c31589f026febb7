// Package cron runs named maintenance jobs at fixed intervals.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobStatus is the outcome of a job's most recent run.
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Job is a periodic task. Intervals are rounded up to whole seconds.
type Job struct {
	Name        string
	Description string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
}

type jobState struct {
	Job
	entry     robfig.EntryID
	mu        sync.Mutex
	status    JobStatus
	message   string
	lastRunAt *time.Time
}

// Snapshot describes a registered job.
type Snapshot struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message,omitempty"`
	NextRunAt   time.Time  `json:"next_run_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

type Scheduler struct {
	logger *zap.Logger
	cron   *robfig.Cron

	mu   sync.RWMutex
	ctx  context.Context
	jobs map[string]*jobState
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("Cron")
	return &Scheduler{
		logger: logger,
		cron:   robfig.New(robfig.WithLogger(cronLogger{logger.Sugar()})),
		ctx:    context.Background(),
		jobs:   make(map[string]*jobState),
	}
}

// Register adds a job. Call before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Fn == nil || job.Interval <= 0 {
		return fmt.Errorf("invalid job %q", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	js := &jobState{Job: job, status: StatusIdle}
	js.entry = s.cron.Schedule(robfig.Every(job.Interval), robfig.FuncJob(func() {
		s.execute(s.runContext(), js)
	}))
	s.jobs[job.Name] = js
	return nil
}

// Start begins scheduling. Jobs stop being scheduled when ctx is done, and
// runs already in flight are left to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", n))
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	}()
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// execute runs the job unless a previous run is still in flight.
func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	js.mu.Lock()
	if js.status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.status = StatusRunning
	js.mu.Unlock()

	started := time.Now()
	err := js.Fn(ctx)

	js.mu.Lock()
	js.lastRunAt = &started
	if err != nil {
		js.status = StatusFailed
		js.message = err.Error()
	} else {
		js.status = StatusSucceeded
		js.message = ""
	}
	js.mu.Unlock()

	if err != nil {
		s.logger.Warn("job failed", zap.String("job", js.Name), zap.Error(err))
		return
	}
	s.logger.Debug("job finished", zap.String("job", js.Name), zap.Duration("took", time.Since(started)))
}

// RunNow runs a job synchronously and returns its resulting snapshot.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Snapshot, error) {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %q not found", name)
	}
	s.execute(ctx, js)
	snap := s.snapshot(js)
	return &snap, nil
}

// List returns all jobs sorted by name.
func (s *Scheduler) List() []Snapshot {
	s.mu.RLock()
	states := make([]*jobState, 0, len(s.jobs))
	for _, js := range s.jobs {
		states = append(states, js)
	}
	s.mu.RUnlock()

	items := make([]Snapshot, 0, len(states))
	for _, js := range states {
		items = append(items, s.snapshot(js))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (s *Scheduler) snapshot(js *jobState) Snapshot {
	// Next is zero until the scheduler is running.
	entry := s.cron.Entry(js.entry)
	next := entry.Next
	if next.IsZero() && entry.Schedule != nil {
		next = entry.Schedule.Next(time.Now())
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	return Snapshot{
		Name:        js.Name,
		Description: js.Description,
		Status:      js.status,
		Message:     js.message,
		NextRunAt:   next,
		LastRunAt:   js.lastRunAt,
	}
}

// cronLogger routes the scheduler's own messages to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

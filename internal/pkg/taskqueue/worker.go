package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HandlerFunc runs one attempt of a task. A handler may rewrite task.Payload
// before returning an error; the rewritten payload is what the next attempt
// sees. Wrap the error with backoff.Permanent to fail without retrying.
type HandlerFunc func(ctx context.Context, task *Task) (result interface{}, err error)

const (
	defaultMaxAttempts     = 5
	defaultPollTimeout     = 2 * time.Second
	defaultInitialInterval = 5 * time.Second
	defaultMaxInterval     = 10 * time.Minute
)

// Worker pulls ready tasks and runs the handler registered for their type,
// rescheduling failures with exponential backoff.
type Worker struct {
	svc         *Service
	logger      *zap.Logger
	maxAttempts int
	pollTimeout time.Duration
	initial     time.Duration
	maxInterval time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithBackoff sets the first retry delay and the cap on later delays.
func WithBackoff(initial, max time.Duration) WorkerOption {
	return func(w *Worker) {
		if initial > 0 {
			w.initial = initial
		}
		if max > 0 {
			w.maxInterval = max
		}
	}
}

func NewWorker(svc *Service, logger *zap.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		svc:         svc,
		logger:      logger.Named("TaskWorker"),
		maxAttempts: defaultMaxAttempts,
		pollTimeout: defaultPollTimeout,
		initial:     defaultInitialInterval,
		maxInterval: defaultMaxInterval,
		handlers:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle registers fn for taskType, replacing any earlier registration.
func (w *Worker) Handle(taskType string, fn HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = fn
}

// Run requeues tasks orphaned by an earlier shutdown, then processes tasks
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("max_attempts", w.maxAttempts))
	if n, err := w.svc.RequeueOrphans(ctx); err != nil {
		w.logger.Warn("requeue orphaned tasks failed", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("requeued orphaned tasks", zap.Int("count", n))
	}
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}
		if _, err := w.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("queue poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext promotes due retries, then waits up to the poll timeout for one
// task and runs it. It reports whether a task was handled.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if _, err := w.svc.promoteDue(ctx, time.Now()); err != nil {
		return false, err
	}
	id, err := w.svc.pop(ctx, w.pollTimeout)
	if err != nil || id == "" {
		return false, err
	}
	// From here on the task is ours; its outcome must be stored even if ctx
	// is cancelled. Anything left on the running list is recovered by
	// RequeueOrphans.
	store := context.WithoutCancel(ctx)
	task, err := w.svc.GetByID(store, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.Status.Finished() {
		return false, w.svc.ack(store, id)
	}
	return true, w.run(ctx, store, task)
}

// run executes one attempt. ctx bounds the handler; store is used for the
// bookkeeping around it.
func (w *Worker) run(ctx, store context.Context, task *Task) error {
	w.mu.RLock()
	fn, ok := w.handlers[task.Type]
	w.mu.RUnlock()

	log := w.logger.With(zap.String("task_id", task.ID), zap.String("type", task.Type))
	if !ok {
		log.Warn("no handler registered")
		if err := w.svc.UpdateStatus(store, task.ID, TaskFailed, nil, fmt.Sprintf("no handler for %q", task.Type)); err != nil {
			return err
		}
		return w.svc.ack(store, task.ID)
	}

	task.Attempts++
	task.Status = TaskRunning
	task.NextRunAt = nil
	if err := w.svc.save(store, task); err != nil {
		return err
	}

	result, runErr := w.invoke(ctx, fn, task)
	if runErr == nil {
		log.Info("task completed", zap.Int("attempt", task.Attempts))
		if err := w.svc.UpdateStatus(store, task.ID, TaskCompleted, result, ""); err != nil {
			return err
		}
		return w.svc.ack(store, task.ID)
	}

	task.Error = runErr.Error()
	if ctx.Err() != nil {
		log.Info("task interrupted by shutdown, requeued", zap.Int("attempt", task.Attempts), zap.Error(runErr))
		task.Attempts--
		return w.svc.requeue(store, task)
	}

	var permanent *backoff.PermanentError
	if errors.As(runErr, &permanent) || task.Attempts >= w.maxAttempts {
		log.Error("task failed", zap.Int("attempt", task.Attempts), zap.Error(runErr))
		task.Status = TaskFailed
		if err := w.svc.save(store, task); err != nil {
			return err
		}
		return w.svc.ack(store, task.ID)
	}

	delay := w.RetryDelay(task.Attempts)
	log.Warn("task attempt failed, retrying",
		zap.Int("attempt", task.Attempts),
		zap.Duration("delay", delay),
		zap.Error(runErr),
	)
	task.Status = TaskRetrying
	if err := w.svc.schedule(store, task, time.Now().Add(delay)); err != nil {
		return err
	}
	return w.svc.ack(store, task.ID)
}

func (w *Worker) invoke(ctx context.Context, fn HandlerFunc, task *Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, task)
}

// RetryDelay returns the wait before the retry that follows the given attempt.
func (w *Worker) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	b.MaxInterval = w.maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

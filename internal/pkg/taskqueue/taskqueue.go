package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisc "github.com/newsroom/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskRetrying  TaskStatus = "retrying"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNotPending   = errors.New("can only cancel pending tasks")
)

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	Attempts  int             `json:"attempts"`
	NextRunAt *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	keyPrefix   = "newsroom:task:"
	keyIndex    = "newsroom:tasks:index"   // sorted set: score=created_at, member=task_id
	keyDedupSet = "newsroom:tasks:dedup:"  // hash: dedup_key -> task_id
	keyReady    = "newsroom:tasks:ready"   // list of runnable task ids
	keyRunning  = "newsroom:tasks:running" // ids popped by a worker and not yet settled
	keyDelayed  = "newsroom:tasks:delayed" // sorted set: score=next_run_at
	taskTTL     = 7 * 24 * time.Hour       // tasks expire after 7 days
)

// Service manages the Redis-backed task queue.
type Service struct {
	rc *redisc.Client
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue stores a new task and makes it runnable. When dedupKey is set and an
// unfinished task of the same type holds it, that task is returned instead.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*Task, error) {
	if dedupKey != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+taskType, dedupKey).Result()
		if err == nil && existing != "" {
			if task, err := s.GetByID(ctx, existing); err == nil && task != nil {
				return task, nil
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	pipe.LPush(ctx, keyReady, task.ID)
	if dedupKey != "" {
		pipe.HSet(ctx, keyDedupSet+taskType, dedupKey, task.ID)
		pipe.Expire(ctx, keyDedupSet+taskType, taskTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return task, nil
}

// GetByID retrieves a task by its ID. Returns (nil, nil) when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = time.Now()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	if task.Status.Finished() && task.DedupKey != "" {
		pipe.HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateStatus sets a task's status and optional result/error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	task.Status = status
	task.Error = errMsg
	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return err
		}
	}
	return s.save(ctx, task)
}

// schedule moves a task to the delayed set until runAt.
func (s *Service) schedule(ctx context.Context, task *Task, runAt time.Time) error {
	task.NextRunAt = &runAt
	if err := s.save(ctx, task); err != nil {
		return err
	}
	return s.rc.Raw().ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: task.ID,
	}).Err()
}

// promoteDue moves delayed tasks whose time has come onto the ready list.
func (s *Service) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		// Only the caller that removes the member gets to push it.
		removed, err := s.rc.Raw().ZRem(ctx, keyDelayed, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := s.rc.Raw().LPush(ctx, keyReady, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// pop blocks up to timeout for a ready task id and parks it on the running
// list until ack. Returns "" on timeout.
func (s *Service) pop(ctx context.Context, timeout time.Duration) (string, error) {
	id, err := s.rc.Raw().BLMove(ctx, keyReady, keyRunning, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// ack drops id from the running list once its outcome is stored.
func (s *Service) ack(ctx context.Context, id string) error {
	return s.rc.Raw().LRem(ctx, keyRunning, 1, id).Err()
}

// requeue stores task as pending and moves it from the running list back to
// the ready list in one transaction.
func (s *Service) requeue(ctx context.Context, task *Task) error {
	task.Status = TaskPending
	task.NextRunAt = nil
	task.UpdatedAt = time.Now()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.LRem(ctx, keyRunning, 1, task.ID)
	pipe.LPush(ctx, keyReady, task.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// RequeueOrphans puts tasks left on the running list by a worker that stopped
// mid-task back on the ready list. Call it before workers start. The attempt
// that was cut short is not counted.
func (s *Service) RequeueOrphans(ctx context.Context) (int, error) {
	ids, err := s.rc.Raw().LRange(ctx, keyRunning, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			return requeued, err
		}
		if task == nil || task.Status.Finished() {
			if err := s.ack(ctx, id); err != nil {
				return requeued, err
			}
			continue
		}
		if task.Status == TaskRunning && task.Attempts > 0 {
			task.Attempts--
		}
		if err := s.requeue(ctx, task); err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// List returns tasks matching optional filters, ordered by creation time descending.
func (s *Service) List(ctx context.Context, page, size int, taskType *string, status *TaskStatus) ([]*Task, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var tasks []*Task
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil || task == nil {
			continue
		}
		if taskType != nil && task.Type != *taskType {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, task)
	}

	total := int64(len(tasks))
	start := (page - 1) * size
	end := start + size
	if start >= len(tasks) {
		return []*Task{}, total, nil
	}
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

// Cancel marks a waiting task as cancelled. The worker drops cancelled tasks.
func (s *Service) Cancel(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status != TaskPending && task.Status != TaskRetrying {
		return ErrNotPending
	}
	if err := s.rc.Raw().ZRem(ctx, keyDelayed, id).Err(); err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return s.UpdateStatus(ctx, id, TaskCancelled, nil, "cancelled by user")
}

// DeleteByID removes a single task by ID.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Del(ctx, s.taskKey(id))
	pipe.ZRem(ctx, keyIndex, id)
	pipe.ZRem(ctx, keyDelayed, id)
	pipe.LRem(ctx, keyReady, 0, id)
	pipe.LRem(ctx, keyRunning, 0, id)
	if task.DedupKey != "" {
		pipe.HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteCompleted removes finished tasks created before beforeMS (0 = all)
// and returns how many were removed.
func (s *Service) DeleteCompleted(ctx context.Context, beforeMS int64) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if task == nil {
			// record expired, drop the dangling index entry
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if !task.Status.Finished() {
			continue
		}
		if beforeMS > 0 && task.CreatedAt.UnixMilli() >= beforeMS {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}

// Package scheduler runs the economy's periodic sweeps. Each run takes a
// named lock first so that only one replica executes a task at a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	locker Locker
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []*Task
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. A nil locker runs every task unguarded.
func New(locker Locker, logger *slog.Logger) *Scheduler {
	if locker == nil {
		locker = LocalLocker{}
	}
	return &Scheduler{locker: locker, logger: logger}
}

// AddTask registers fn to run every interval. Non-positive intervals disable
// the task.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		s.logger.Info("task disabled", "task", name)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &Task{Name: name, Interval: interval, Fn: fn})
}

// Start launches every task. Each runs once immediately, then on its ticker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels all tasks and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, task *Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.Run(ctx, task)
	for {
		select {
		case <-ticker.C:
			s.Run(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

// Run executes task once under its lock. It reports whether the task ran.
func (s *Scheduler) Run(ctx context.Context, task *Task) bool {
	release, ok, err := s.locker.TryLock(ctx, "economy:task:"+task.Name, task.Interval)
	if err != nil {
		s.logger.WarnContext(ctx, "task lock failed", "task", task.Name, "error", err)
		return false
	}
	if !ok {
		s.logger.DebugContext(ctx, "task held elsewhere", "task", task.Name)
		return false
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "task unlock failed", "task", task.Name, "error", err)
		}
	}()

	start := time.Now()
	if err := task.Fn(ctx); err != nil {
		s.logger.ErrorContext(ctx, "task failed", "task", task.Name, "error", err)
		return true
	}
	s.logger.DebugContext(ctx, "task finished", "task", task.Name, "duration", time.Since(start))
	return true
}

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Task 周期性后台任务
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler 按固定间隔执行后台任务
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler 创建调度器
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// AddTask 注册任务，必须在 Start 之前调用
func (s *Scheduler) AddTask(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// TaskCount 已注册任务数
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Start 为每个任务启动一个 goroutine，ctx 取消或调用 Stop 时退出
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.tasks {
		if task.Interval <= 0 {
			fmt.Printf("⚠️  Task '%s' skipped: interval must be positive\n", task.Name)
			continue
		}
		s.wg.Add(1)
		go s.runTask(ctx, task)
		fmt.Printf("🔄 Scheduled task '%s' every %s\n", task.Name, task.Interval)
	}
}

// Stop 停止所有任务并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	fmt.Printf("✅ Scheduler stopped\n")
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task.Run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

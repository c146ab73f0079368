package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tmdbhelper/services/cache"
	"tmdbhelper/services/trakt"
)

// Task is a periodic warm-up job. A zero Interval disables the task.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// TaskStatus is the in-memory state of a task.
type TaskStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	LastRunAt *time.Time    `json:"lastRunAt,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("task is already running")
)

// Service runs warm-up tasks on their intervals in the background.
type Service struct {
	tasks         []Task
	checkInterval time.Duration
	now           func() time.Time

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	taskMu      sync.RWMutex
	taskRunning map[string]bool
	status      map[string]*TaskStatus
}

// NewService creates a scheduler over tasks. checkInterval below one second
// falls back to one minute.
func NewService(checkInterval time.Duration, tasks ...Task) *Service {
	if checkInterval < time.Second {
		checkInterval = time.Minute
	}
	s := &Service{
		checkInterval: checkInterval,
		now:           time.Now,
		taskRunning:   make(map[string]bool),
		status:        make(map[string]*TaskStatus),
	}
	for _, t := range tasks {
		if t.Run == nil || t.Interval <= 0 {
			continue
		}
		s.tasks = append(s.tasks, t)
		s.status[t.Name] = &TaskStatus{Name: t.Name, Interval: t.Interval}
	}
	return s
}

// Start begins the scheduler background loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop()

	log.Printf("[scheduler] started with %d tasks", len(s.tasks))
	return nil
}

// Stop cancels running tasks and waits for them until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run check immediately on start
	s.checkAndRunTasks()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunTasks()
		}
	}
}

func (s *Service) checkAndRunTasks() {
	for _, task := range s.tasks {
		if !s.claim(task, true) {
			continue
		}
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.executeTask(s.ctx, t)
		}(task)
	}
}

// claim marks task as running. When due is set the task must also be past
// its interval.
func (s *Service) claim(task Task, due bool) bool {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.taskRunning[task.Name] {
		return false
	}
	if st := s.status[task.Name]; due && st.LastRunAt != nil && s.now().Sub(*st.LastRunAt) < task.Interval {
		return false
	}
	s.taskRunning[task.Name] = true
	return true
}

// executeTask runs a claimed task and records the outcome.
func (s *Service) executeTask(ctx context.Context, task Task) {
	defer func() {
		s.taskMu.Lock()
		delete(s.taskRunning, task.Name)
		s.taskMu.Unlock()
	}()

	start := s.now()
	err := task.Run(ctx)
	s.updateTaskStatus(task.Name, start, err)
}

func (s *Service) updateTaskStatus(name string, ranAt time.Time, err error) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	st := s.status[name]
	st.LastRunAt = &ranAt
	st.Skipped = false
	st.LastError = ""

	switch {
	case err == nil:
		log.Printf("[scheduler] task %s completed", name)
	case errors.Is(err, cache.ErrNotAuthorized), errors.Is(err, trakt.ErrNoToken):
		st.Skipped = true
	default:
		st.LastError = err.Error()
		log.Printf("[scheduler] task %s failed: %v", name, err)
	}
}

// RunTaskNow triggers immediate execution of a task.
func (s *Service) RunTaskNow(name string) error {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	for _, task := range s.tasks {
		if task.Name != name {
			continue
		}
		if !s.claim(task, false) {
			return ErrTaskRunning
		}
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.executeTask(ctx, t)
		}(task)
		return nil
	}
	return ErrTaskNotFound
}

// GetTaskStatus returns a snapshot of every task in registration order.
func (s *Service) GetTaskStatus() []TaskStatus {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := *s.status[t.Name]
		st.Running = s.taskRunning[t.Name]
		out = append(out, st)
	}
	return out
}

// IsTaskRunning checks if a specific task is currently running
func (s *Service) IsTaskRunning(name string) bool {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()
	return s.taskRunning[name]
}

// Wait blocks until every task started so far has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// convertd/task/manager.go
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"convertd/config"
	"convertd/events"
)

// Runner executes one task end to end. The started callback must be invoked
// every time the task spawns a new external process, carrying its pid.
type Runner interface {
	Run(ctx context.Context, t *Task, started func(pid int)) error
}

// Controller performs lifecycle operations on an external process.
type Controller interface {
	Suspend(pid int) error
	Resume(pid int) error
	Terminate(pid int) error
}

// Snapshot is a point-in-time view of the scheduler's queue registries.
type Snapshot struct {
	Queued  []string `json:"queued"`
	Running []string `json:"running"`
}

// Manager owns the pending queue, the active-task registry, the cancellation
// set, and the concurrency limit. All queue bookkeeping lives inside a single
// control loop fed by lifecycle messages; only the pid and cancellation maps
// are shared with the externally-callable control operations, under a mutex.
type Manager struct {
	runner     Runner
	controller Controller
	bus        *events.Bus
	logger     *zap.Logger

	msgs      chan managerMessage
	done      chan struct{}
	startOnce sync.Once

	maxConcurrency atomic.Int64

	mu         sync.Mutex
	activePIDs map[string]int
	cancelled  map[string]struct{}
}

func NewManager(cfg *config.Config, runner Runner, controller Controller, bus *events.Bus, logger *zap.Logger) *Manager {
	m := &Manager{
		runner:     runner,
		controller: controller,
		bus:        bus,
		logger:     logger,
		msgs:       make(chan managerMessage, 32),
		done:       make(chan struct{}),
		activePIDs: make(map[string]int),
		cancelled:  make(map[string]struct{}),
	}
	limit := cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	m.maxConcurrency.Store(int64(limit))
	return m
}

// Start launches the control loop. It runs until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.loop(ctx)
	})
	m.logger.Info("task manager started",
		zap.Int("maxConcurrency", m.GetMaxConcurrency()))
}

type loopState struct {
	queue     []*Task
	queuedIDs map[string]struct{}
	running   map[string]struct{}
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)

	st := &loopState{
		queuedIDs: make(map[string]struct{}),
		running:   make(map[string]struct{}),
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.msgs:
			switch msg := msg.(type) {
			case enqueueMsg:
				m.handleEnqueue(ctx, st, msg.task)
			case startedMsg:
				m.handleStarted(ctx, st, msg.id, msg.pid)
			case completedMsg:
				m.handleDone(ctx, st, msg.id, nil)
			case failedMsg:
				m.handleDone(ctx, st, msg.id, msg.err)
			case snapshotMsg:
				msg.reply <- snapshotOf(st)
			}
		}
	}
}

func (m *Manager) handleEnqueue(ctx context.Context, st *loopState, t *Task) {
	// A fresh enqueue always clears a stale cancellation mark.
	m.mu.Lock()
	delete(m.cancelled, t.ID)
	m.mu.Unlock()

	if _, running := st.running[t.ID]; running {
		m.logger.Debug("duplicate enqueue ignored", zap.String("task", t.ID))
		return
	}
	if _, queued := st.queuedIDs[t.ID]; queued {
		m.logger.Debug("duplicate enqueue ignored", zap.String("task", t.ID))
		return
	}

	st.queuedIDs[t.ID] = struct{}{}
	st.queue = append(st.queue, t)
	m.drain(ctx, st)
}

// handleStarted records the pid of a freshly spawned process, or terminates
// it if the task was cancelled between dequeue and spawn.
func (m *Manager) handleStarted(ctx context.Context, st *loopState, id string, pid int) {
	m.mu.Lock()
	_, isCancelled := m.cancelled[id]
	m.mu.Unlock()

	if isCancelled {
		if pid > 0 {
			if err := m.controller.Terminate(pid); err != nil {
				m.logger.Warn("terminate cancelled task",
					zap.String("task", id), zap.Int("pid", pid), zap.Error(err))
			}
		}
		delete(st.running, id)
		m.mu.Lock()
		delete(m.activePIDs, id)
		m.mu.Unlock()
		m.drain(ctx, st)
		return
	}

	m.mu.Lock()
	m.activePIDs[id] = pid
	m.mu.Unlock()
}

func (m *Manager) handleDone(ctx context.Context, st *loopState, id string, taskErr error) {
	if taskErr != nil {
		m.logger.Warn("task failed", zap.String("task", id), zap.Error(taskErr))
		m.bus.Publish(events.Log(id, "[ERROR] "+taskErr.Error()))
		m.bus.Publish(events.Error(id, taskErr.Error()))
	} else {
		m.logger.Info("task completed", zap.String("task", id))
	}

	delete(st.running, id)
	m.mu.Lock()
	delete(m.cancelled, id)
	delete(m.activePIDs, id)
	m.mu.Unlock()

	m.drain(ctx, st)
}

// drain starts queued tasks while free slots remain. Tasks cancelled while
// queued are discarded without ever starting.
func (m *Manager) drain(ctx context.Context, st *loopState) {
	limit := int(m.maxConcurrency.Load())
	if limit < 1 {
		limit = 1
	}

	for len(st.running) < limit && len(st.queue) > 0 {
		t := st.queue[0]
		st.queue = st.queue[1:]
		delete(st.queuedIDs, t.ID)

		m.mu.Lock()
		_, isCancelled := m.cancelled[t.ID]
		delete(m.cancelled, t.ID)
		m.mu.Unlock()
		if isCancelled {
			m.logger.Info("dropping cancelled task from queue", zap.String("task", t.ID))
			continue
		}

		st.running[t.ID] = struct{}{}
		m.launch(ctx, t)
	}
}

func (m *Manager) launch(ctx context.Context, t *Task) {
	m.logger.Info("starting task", zap.String("task", t.ID), zap.String("input", t.InputPath))
	go func() {
		err := m.runner.Run(ctx, t, func(pid int) {
			_ = m.send(startedMsg{id: t.ID, pid: pid})
		})
		if err != nil {
			_ = m.send(failedMsg{id: t.ID, err: err})
			return
		}
		_ = m.send(completedMsg{id: t.ID})
	}()
}

func (m *Manager) send(msg managerMessage) error {
	select {
	case m.msgs <- msg:
		return nil
	case <-m.done:
		return fmt.Errorf("%w: scheduler loop is not running", ErrChannel)
	}
}

// Enqueue submits a task to the control loop. Enqueueing an id that is
// already queued or running is a no-op.
func (m *Manager) Enqueue(t *Task) error {
	return m.send(enqueueMsg{task: t})
}

// Snapshot returns the ids currently queued and running, sorted.
func (m *Manager) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if err := m.send(snapshotMsg{reply: reply}); err != nil {
		return Snapshot{Queued: []string{}, Running: []string{}}
	}
	select {
	case s := <-reply:
		return s
	case <-m.done:
		return Snapshot{Queued: []string{}, Running: []string{}}
	}
}

func snapshotOf(st *loopState) Snapshot {
	s := Snapshot{Queued: make([]string, 0, len(st.queue)), Running: make([]string, 0, len(st.running))}
	for _, t := range st.queue {
		s.Queued = append(s.Queued, t.ID)
	}
	for id := range st.running {
		s.Running = append(s.Running, id)
	}
	sort.Strings(s.Running)
	return s
}

func (m *Manager) GetMaxConcurrency() int {
	return int(m.maxConcurrency.Load())
}

// SetMaxConcurrency adjusts the live limit. It never preempts running tasks;
// a lower limit takes effect as running tasks finish.
func (m *Manager) SetMaxConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1", ErrInvalidInput)
	}
	m.maxConcurrency.Store(int64(n))
	m.logger.Info("max concurrency updated", zap.Int("maxConcurrency", n))
	return nil
}

// activePID looks up the currently relevant process for a task. A recorded
// pid of zero means the worker has not reported a real process yet.
func (m *Manager) activePID(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, ok := m.activePIDs[id]
	if !ok || pid == 0 {
		return 0, false
	}
	return pid, true
}

// Pause suspends the task's active process.
func (m *Manager) Pause(id string) error {
	pid, ok := m.activePID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return m.controller.Suspend(pid)
}

// Resume continues a previously paused task.
func (m *Manager) Resume(id string) error {
	pid, ok := m.activePID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return m.controller.Resume(pid)
}

// Cancel marks the task cancelled and terminates its active process if one
// is known. Task-scoped scratch storage is cleaned up either way. Cancelling
// an unknown id is not an error; the mark still catches a task that is
// between dequeue and spawn.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	m.cancelled[id] = struct{}{}
	pid, hasPID := m.activePIDs[id]
	m.mu.Unlock()

	var err error
	if hasPID && pid > 0 {
		err = m.controller.Terminate(pid)
	}
	CleanupTempDir(id)
	return err
}

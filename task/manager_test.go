// convertd/task/manager_test.go
package task

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"convertd/config"
	"convertd/events"
)

// scriptedRunner lets tests control exactly when a task reports its process
// and when it finishes.
type scriptedRunner struct {
	mu      sync.Mutex
	runs    []string
	release map[string]chan error
	started map[string]func(pid int)
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		release: make(map[string]chan error),
		started: make(map[string]func(pid int)),
	}
}

func (r *scriptedRunner) Run(ctx context.Context, t *Task, started func(pid int)) error {
	r.mu.Lock()
	ch := make(chan error, 1)
	r.runs = append(r.runs, t.ID)
	r.release[t.ID] = ch
	r.started[t.ID] = started
	r.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *scriptedRunner) runCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, run := range r.runs {
		if run == id {
			n++
		}
	}
	return n
}

func (r *scriptedRunner) isRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.release[id]
	return ok
}

func (r *scriptedRunner) reportStarted(id string, pid int) {
	r.mu.Lock()
	started := r.started[id]
	r.mu.Unlock()
	started(pid)
}

func (r *scriptedRunner) finish(id string, err error) {
	r.mu.Lock()
	ch := r.release[id]
	delete(r.release, id)
	r.mu.Unlock()
	ch <- err
}

type fakeController struct {
	mu         sync.Mutex
	suspended  []int
	resumed    []int
	terminated []int
}

func (c *fakeController) Suspend(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = append(c.suspended, pid)
	return nil
}

func (c *fakeController) Resume(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = append(c.resumed, pid)
	return nil
}

func (c *fakeController) Terminate(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = append(c.terminated, pid)
	return nil
}

func (c *fakeController) terminatedPIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.terminated...)
}

func newTestManager(t *testing.T, maxConcurrency int) (*Manager, *scriptedRunner, *fakeController, *events.Bus) {
	t.Helper()
	runner := newScriptedRunner()
	controller := &fakeController{}
	bus := events.NewBus(64)
	cfg := &config.Config{MaxConcurrency: maxConcurrency}
	m := NewManager(cfg, runner, controller, bus, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	return m, runner, controller, bus
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func testTask(id string) *Task {
	return &Task{ID: id, InputPath: "input.mp4", Config: DefaultConversionConfig()}
}

func TestManagerHonorsConcurrencyLimit(t *testing.T) {
	m, runner, _, _ := newTestManager(t, 1)

	require.NoError(t, m.Enqueue(testTask("a")))
	require.NoError(t, m.Enqueue(testTask("b")))

	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	// b must wait for a to finish.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, runner.runCount("b"))
	snap := m.Snapshot()
	assert.Equal(t, []string{"b"}, snap.Queued)
	assert.Equal(t, []string{"a"}, snap.Running)

	runner.finish("a", nil)
	waitFor(t, func() bool { return runner.isRunning("b") }, "task b should start after a completes")
}

func TestManagerDeduplicatesEnqueue(t *testing.T) {
	m, runner, _, _ := newTestManager(t, 2)

	require.NoError(t, m.Enqueue(testTask("a")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	require.NoError(t, m.Enqueue(testTask("a")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, runner.runCount("a"))

	runner.finish("a", nil)
	waitFor(t, func() bool { return len(m.Snapshot().Running) == 0 }, "task a should finish")
	assert.Equal(t, 1, runner.runCount("a"))
}

func TestManagerCancelQueuedTaskNeverStarts(t *testing.T) {
	m, runner, controller, bus := newTestManager(t, 1)

	sub, cancelSub := bus.Subscribe()
	defer cancelSub()

	require.NoError(t, m.Enqueue(testTask("a")))
	require.NoError(t, m.Enqueue(testTask("b")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	require.NoError(t, m.Cancel("b"))
	runner.finish("a", nil)

	waitFor(t, func() bool {
		snap := m.Snapshot()
		return len(snap.Queued) == 0 && len(snap.Running) == 0
	}, "queue should drain")

	assert.Zero(t, runner.runCount("b"))
	assert.Empty(t, controller.terminatedPIDs())

	// A cancelled-before-start task produces no terminal event.
	for {
		select {
		case ev := <-sub:
			assert.NotEqual(t, "b", ev.TaskID)
		default:
			return
		}
	}
}

func TestManagerCancelBeforeStartedReportTerminatesProcess(t *testing.T) {
	m, runner, controller, _ := newTestManager(t, 1)

	require.NoError(t, m.Enqueue(testTask("a")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	// Cancel lands after dequeue but before the worker reports its pid.
	require.NoError(t, m.Cancel("a"))
	runner.reportStarted("a", 4242)

	waitFor(t, func() bool {
		return len(controller.terminatedPIDs()) == 1
	}, "late-reported process should be terminated")
	assert.Equal(t, []int{4242}, controller.terminatedPIDs())

	// The worker observes the kill as an error; capacity must be reclaimed.
	runner.finish("a", errors.New("signal: killed"))
	require.NoError(t, m.Enqueue(testTask("b")))
	waitFor(t, func() bool { return runner.isRunning("b") }, "next task should start")
}

func TestManagerCancelRunningTask(t *testing.T) {
	m, runner, controller, bus := newTestManager(t, 1)

	sub, cancelSub := bus.Subscribe()
	defer cancelSub()

	require.NoError(t, m.Enqueue(testTask("a")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")
	runner.reportStarted("a", 555)
	waitFor(t, func() bool {
		_, ok := m.activePID("a")
		return ok
	}, "pid should be recorded")

	require.NoError(t, m.Cancel("a"))
	assert.Equal(t, []int{555}, controller.terminatedPIDs())

	runner.finish("a", errors.New("encoder exited with code -1"))

	var sawError bool
	waitFor(t, func() bool {
		for {
			select {
			case ev := <-sub:
				if ev.Type == events.TypeError && ev.TaskID == "a" {
					sawError = true
				}
			default:
				return sawError
			}
		}
	}, "error event should be emitted")
}

func TestManagerPauseResume(t *testing.T) {
	m, runner, controller, _ := newTestManager(t, 1)

	require.NoError(t, m.Enqueue(testTask("a")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	// No pid reported yet: the task is not controllable.
	err := m.Pause("a")
	require.ErrorIs(t, err, ErrTaskNotFound)

	runner.reportStarted("a", 777)
	waitFor(t, func() bool {
		_, ok := m.activePID("a")
		return ok
	}, "pid should be recorded")

	require.NoError(t, m.Pause("a"))
	require.NoError(t, m.Resume("a"))
	assert.Equal(t, []int{777}, controller.suspended)
	assert.Equal(t, []int{777}, controller.resumed)

	err = m.Pause("unknown")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestManagerConcurrencyAccessors(t *testing.T) {
	m, _, _, _ := newTestManager(t, 2)

	err := m.SetMaxConcurrency(0)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 2, m.GetMaxConcurrency())

	require.NoError(t, m.SetMaxConcurrency(4))
	assert.Equal(t, 4, m.GetMaxConcurrency())
}

func TestManagerRaisedLimitAppliesOnNextDrain(t *testing.T) {
	m, runner, _, _ := newTestManager(t, 1)

	require.NoError(t, m.Enqueue(testTask("a")))
	require.NoError(t, m.Enqueue(testTask("b")))
	require.NoError(t, m.Enqueue(testTask("c")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	require.NoError(t, m.SetMaxConcurrency(2))
	runner.finish("a", nil)

	waitFor(t, func() bool {
		return runner.isRunning("b") && runner.isRunning("c")
	}, "both queued tasks should start once a slot frees under the raised limit")
}

func TestManagerLoweredLimitHoldsQueueUntilEnoughSlotsFree(t *testing.T) {
	m, runner, _, _ := newTestManager(t, 2)

	require.NoError(t, m.Enqueue(testTask("a")))
	require.NoError(t, m.Enqueue(testTask("b")))
	require.NoError(t, m.Enqueue(testTask("c")))
	waitFor(t, func() bool {
		return runner.isRunning("a") && runner.isRunning("b")
	}, "two tasks should run at the initial limit")

	require.NoError(t, m.SetMaxConcurrency(1))
	runner.finish("a", nil)

	// One task still runs, which already saturates the lowered limit.
	waitFor(t, func() bool { return len(m.Snapshot().Running) == 1 }, "task a should finish")
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, runner.runCount("c"))
	snap := m.Snapshot()
	assert.Equal(t, []string{"c"}, snap.Queued)
	assert.Equal(t, []string{"b"}, snap.Running)

	runner.finish("b", nil)
	waitFor(t, func() bool { return runner.isRunning("c") }, "queued task should start once running drops below the lowered limit")
}

func TestManagerCancelRemovesTempDir(t *testing.T) {
	m, _, _, _ := newTestManager(t, 1)

	dir := TempDirFor("scratch-task")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, m.Cancel("scratch-task"))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestManagerFailureFreesSlot(t *testing.T) {
	m, runner, _, _ := newTestManager(t, 1)

	require.NoError(t, m.Enqueue(testTask("a")))
	require.NoError(t, m.Enqueue(testTask("b")))
	waitFor(t, func() bool { return runner.isRunning("a") }, "task a should start")

	runner.finish("a", errors.New("encoder exited with code 1"))
	waitFor(t, func() bool { return runner.isRunning("b") }, "failure should trigger a re-drain")
}

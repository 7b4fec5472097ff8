package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ytget/yt-manager/internal/model"
)

// stubRunner hands each run to the test through a channel; the test drives
// completion by emitting events on the handle.
type stubRunner struct {
	runs chan runHandle
}

type runHandle struct {
	task model.Task
	ctx  context.Context
	emit func(taskEvent)
}

func newStubRunner() *stubRunner {
	return &stubRunner{runs: make(chan runHandle, 16)}
}

func (r *stubRunner) Run(ctx context.Context, task model.Task, emit func(taskEvent)) {
	r.runs <- runHandle{task: task, ctx: ctx, emit: emit}
}

func (r *stubRunner) next(t *testing.T) runHandle {
	t.Helper()
	select {
	case h := <-r.runs:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a worker to be bound")
		return runHandle{}
	}
}

func (r *stubRunner) expectNone(t *testing.T) {
	t.Helper()
	select {
	case h := <-r.runs:
		t.Fatalf("unexpected worker bound for task %s", h.task.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func (h runHandle) complete() {
	h.emit(taskEvent{taskID: h.task.ID, kind: evCompleted, output: "/dl/out.mp4"})
}

func (h runHandle) cancelled() {
	h.emit(taskEvent{taskID: h.task.ID, kind: evCancelled})
}

func mustStatus(t *testing.T, s *Scheduler, id string, expected model.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		task, ok := s.Get(id)
		if !ok {
			t.Fatalf("task %s not found", id)
		}
		if task.Status == expected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s status = %s, expected %s", id, task.Status, expected)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func submitN(s *Scheduler, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		task := s.Submit(AddTaskParams{URL: "https://youtube.com/watch?v=x", Kind: model.KindVideoAudio})
		ids[i] = task.ID
	}
	return ids
}

func TestScheduler_SubmitRegistersPendingTask(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 2, nil)
	defer s.Close()

	var added model.Task
	s.TaskAdded.Subscribe(func(task model.Task) { added = task })

	task := s.Submit(AddTaskParams{URL: "https://x"})

	if task.Status != model.TaskStatusPending {
		t.Errorf("submitted task status = %s, expected Pending", task.Status)
	}
	if task.OutputFormat != "mp4" {
		t.Errorf("default output format = %s, expected mp4", task.OutputFormat)
	}
	if added.ID != task.ID {
		t.Errorf("TaskAdded published id %s, expected %s", added.ID, task.ID)
	}
	if _, ok := s.Get(task.ID); !ok {
		t.Error("submitted task not retrievable")
	}
	runner.expectNone(t)
}

func TestScheduler_StartBindsUpToCeiling(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 2, nil)
	defer s.Close()

	ids := submitN(s, 3)
	for _, id := range ids {
		if err := s.Start(id); err != nil {
			t.Fatalf("Start(%s) error: %v", id, err)
		}
	}

	h1 := runner.next(t)
	h2 := runner.next(t)
	runner.expectNone(t)

	mustStatus(t, s, ids[0], model.TaskStatusDownloading)
	mustStatus(t, s, ids[1], model.TaskStatusDownloading)
	mustStatus(t, s, ids[2], model.TaskStatusQueued)

	h1.complete()
	h2.complete()
	runner.next(t).complete()
}

func TestScheduler_QueueIsFIFO(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 3)
	for _, id := range ids {
		if err := s.Start(id); err != nil {
			t.Fatalf("Start error: %v", err)
		}
	}

	h1 := runner.next(t)
	if h1.task.ID != ids[0] {
		t.Fatalf("first bound task = %s, expected %s", h1.task.ID, ids[0])
	}

	h1.complete()
	h2 := runner.next(t)
	if h2.task.ID != ids[1] {
		t.Errorf("second bound task = %s, expected FIFO order %s", h2.task.ID, ids[1])
	}
	mustStatus(t, s, ids[0], model.TaskStatusCompleted)

	h2.complete()
	h3 := runner.next(t)
	if h3.task.ID != ids[2] {
		t.Errorf("third bound task = %s, expected %s", h3.task.ID, ids[2])
	}
	h3.complete()
	mustStatus(t, s, ids[2], model.TaskStatusCompleted)
}

func TestScheduler_StartIsIdempotentWhileActive(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 1)
	if err := s.Start(ids[0]); err != nil {
		t.Fatal(err)
	}
	h := runner.next(t)

	if err := s.Start(ids[0]); err != nil {
		t.Fatalf("re-Start of an active task errored: %v", err)
	}
	runner.expectNone(t)
	h.complete()
}

func TestScheduler_CancelQueuedNeverBindsWorker(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 2)
	_ = s.Start(ids[0])
	_ = s.Start(ids[1])
	h := runner.next(t)

	if err := s.Cancel(ids[1]); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	mustStatus(t, s, ids[1], model.TaskStatusCancelled)

	h.complete()
	runner.expectNone(t)
}

func TestScheduler_CancelPendingTask(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 1)
	if err := s.Cancel(ids[0]); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	mustStatus(t, s, ids[0], model.TaskStatusCancelled)
}

func TestScheduler_CancelActiveIsCooperative(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 1)
	_ = s.Start(ids[0])
	h := runner.next(t)

	if err := s.Cancel(ids[0]); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	select {
	case <-h.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker context not cancelled")
	}

	// the record stays Downloading until the worker acknowledges
	task, _ := s.Get(ids[0])
	if task.Status != model.TaskStatusDownloading {
		t.Errorf("status before acknowledgement = %s, expected Downloading", task.Status)
	}

	h.cancelled()
	mustStatus(t, s, ids[0], model.TaskStatusCancelled)
}

func TestScheduler_RestartTerminalTask(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 1)
	_ = s.Start(ids[0])
	h := runner.next(t)
	h.emit(taskEvent{taskID: ids[0], kind: evFailed, message: "boom"})
	mustStatus(t, s, ids[0], model.TaskStatusFailed)

	if err := s.Start(ids[0]); err != nil {
		t.Fatalf("re-Start error: %v", err)
	}
	h2 := runner.next(t)
	if h2.task.ErrorMessage != "" || h2.task.Progress != 0 {
		t.Errorf("restarted task not reset: err=%q progress=%v", h2.task.ErrorMessage, h2.task.Progress)
	}
	h2.complete()
	mustStatus(t, s, ids[0], model.TaskStatusCompleted)
}

func TestScheduler_ProgressUpdates(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 1)
	_ = s.Start(ids[0])
	h := runner.next(t)

	h.emit(taskEvent{taskID: ids[0], kind: evProgress, progress: 40, speed: "1.0 MB/s", eta: "00:30"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		task, _ := s.Get(ids[0])
		if task.Progress == 40 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress = %v, expected 40", task.Progress)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// stale lower progress must not move the bar backwards
	h.emit(taskEvent{taskID: ids[0], kind: evProgress, progress: 20})
	h.emit(taskEvent{taskID: ids[0], kind: evTitle, title: "resolved"})
	mustTitle := func() {
		deadline := time.Now().Add(2 * time.Second)
		for {
			task, _ := s.Get(ids[0])
			if task.Title == "resolved" {
				if task.Progress != 40 {
					t.Errorf("progress regressed to %v", task.Progress)
				}
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("title update never applied")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	mustTitle()
	h.complete()
}

func TestScheduler_LowerCeilingNeverRaises(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 2, nil)
	defer s.Close()

	ids := submitN(s, 3)
	for _, id := range ids {
		_ = s.Start(id)
	}
	h1 := runner.next(t)
	h2 := runner.next(t)
	mustStatus(t, s, ids[2], model.TaskStatusQueued)

	s.LowerCeiling(1)
	s.LowerCeiling(4) // ignored

	// one slot frees, but the lowered ceiling keeps the queue waiting
	h1.complete()
	runner.expectNone(t)
	mustStatus(t, s, ids[2], model.TaskStatusQueued)

	h2.complete()
	h3 := runner.next(t)
	if h3.task.ID != ids[2] {
		t.Errorf("bound %s, expected %s", h3.task.ID, ids[2])
	}
	h3.complete()
}

func TestScheduler_UnknownTask(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	if err := s.Start("task-missing"); err == nil {
		t.Error("Start of an unknown task should error")
	}
	if err := s.Cancel("task-missing"); err == nil {
		t.Error("Cancel of an unknown task should error")
	}
}

func TestScheduler_AllReturnsCreationOrder(t *testing.T) {
	runner := newStubRunner()
	s := New(runner, 1, nil)
	defer s.Close()

	ids := submitN(s, 3)
	all := s.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d tasks, expected 3", len(all))
	}
	for i, task := range all {
		if task.ID != ids[i] {
			t.Errorf("All()[%d] = %s, expected %s", i, task.ID, ids[i])
		}
	}
}

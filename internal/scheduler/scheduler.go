// Package scheduler owns the download-task lifecycle: registration, bounded
// concurrency, FIFO queueing, cancellation, and worker dispatch.
//
// All task-state mutation happens on a single coordinator goroutine that
// consumes operations and asynchronous worker events from one channel, so no
// task record is ever mutated from two contexts at once. Subscribers receive
// value snapshots and must not call back into the scheduler from a handler.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ytget/yt-manager/internal/events"
	"github.com/ytget/yt-manager/internal/model"
	"github.com/ytget/yt-manager/internal/tune"
)

// backlogFactor triggers the capacity advisory: when active+queued exceeds
// ceiling×backlogFactor a warning is logged. Submissions are never rejected.
const backlogFactor = 5

type eventKind int

const (
	evStatus eventKind = iota
	evProgress
	evTitle
	evCompleted
	evFailed
	evCancelled
)

// taskEvent is what a worker reports back to the coordinator.
type taskEvent struct {
	taskID   string
	kind     eventKind
	status   model.TaskStatus
	progress float64
	speed    string
	eta      string
	title    string
	output   string
	segments []string
	message  string
}

// Runner executes one task and reports through emit. Exactly one terminal
// event must be emitted per run.
type Runner interface {
	Run(ctx context.Context, task model.Task, emit func(taskEvent))
}

// AddTaskParams describes a task to register.
type AddTaskParams struct {
	URL          string
	Kind         model.TaskKind
	OutputFormat string
	Split        model.SplitConfig
}

// Scheduler is the task registry and dispatcher. Duplicate-URL prevention is
// a caller responsibility.
type Scheduler struct {
	runner  Runner
	log     *slog.Logger
	ceiling int

	tasks  map[string]*model.Task
	queue  []string // FIFO of queued task ids
	active map[string]context.CancelFunc

	ops  chan func()
	quit chan struct{}
	done chan struct{}

	// TaskAdded and TaskUpdated fire on registration and on every field
	// change or status transition, with immutable snapshots.
	TaskAdded   events.Bus[model.Task]
	TaskUpdated events.Bus[model.Task]
}

// New creates a scheduler with the given worker runner and concurrency
// ceiling and starts its coordinator.
func New(runner Runner, ceiling int, log *slog.Logger) *Scheduler {
	if ceiling < 1 {
		ceiling = 1
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		runner:  runner,
		log:     log,
		ceiling: ceiling,
		tasks:   make(map[string]*model.Task),
		active:  make(map[string]context.CancelFunc),
		ops:     make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			// drain events already posted so workers are not stuck sending
			for {
				select {
				case fn := <-s.ops:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the coordinator and waits for it.
func (s *Scheduler) do(fn func()) {
	doneCh := make(chan struct{})
	s.ops <- func() {
		fn()
		close(doneCh)
	}
	<-doneCh
}

// Close cancels all active workers, waits for them to report, and stops the
// coordinator.
func (s *Scheduler) Close() {
	s.do(func() {
		for _, cancel := range s.active {
			cancel()
		}
	})
	// Wait for the active set to drain; terminal events release the slots.
	for {
		var remaining int
		s.do(func() { remaining = len(s.active) })
		if remaining == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	close(s.quit)
	<-s.done
}

// Submit registers a new task; no side effects beyond bookkeeping and the
// TaskAdded event.
func (s *Scheduler) Submit(p AddTaskParams) model.Task {
	var snap model.Task
	s.do(func() {
		t := &model.Task{
			ID:           model.NewTaskID(),
			URL:          p.URL,
			Kind:         p.Kind,
			OutputFormat: p.OutputFormat,
			Status:       model.TaskStatusPending,
			CreatedAt:    time.Now(),
			Split:        p.Split,
		}
		if t.Kind == "" {
			t.Kind = model.KindVideoAudio
		}
		if t.OutputFormat == "" {
			t.OutputFormat = "mp4"
		}
		s.tasks[t.ID] = t
		s.checkBacklog()
		snap = t.Clone()
		s.TaskAdded.Publish(snap)
	})
	return snap
}

// Start begins (or queues) the task. Starting an already active or queued
// task is a no-op; starting a terminal task re-enters it as a fresh
// submission of the same task id.
func (s *Scheduler) Start(id string) error {
	var err error
	s.do(func() {
		t, ok := s.tasks[id]
		if !ok {
			err = &TaskNotFoundError{TaskID: id}
			return
		}
		if t.Status == model.TaskStatusQueued || t.Status.IsActive() {
			return
		}
		if t.Status.IsTerminal() {
			t.Status = model.TaskStatusPending
			t.Progress = 0
			t.Speed = ""
			t.ETA = ""
			t.ErrorMessage = ""
			t.OutputPath = ""
			t.Segments = nil
			t.StartedAt = time.Time{}
			t.CompletedAt = time.Time{}
			s.publishUpdate(t)
		}
		s.checkBacklog()
		if len(s.active) < s.ceiling {
			s.bind(t)
			return
		}
		s.setStatus(t, model.TaskStatusQueued)
		s.queue = append(s.queue, t.ID)
	})
	return err
}

// Cancel requests cooperative cancellation of an active task, or removes a
// queued/pending task immediately without ever binding a worker.
func (s *Scheduler) Cancel(id string) error {
	var err error
	s.do(func() {
		t, ok := s.tasks[id]
		if !ok {
			err = &TaskNotFoundError{TaskID: id}
			return
		}
		if cancel, running := s.active[id]; running {
			cancel()
			return
		}
		switch t.Status {
		case model.TaskStatusQueued:
			s.removeFromQueue(id)
			fallthrough
		case model.TaskStatusPending:
			s.setStatus(t, model.TaskStatusCancelled)
			t.CompletedAt = time.Now()
			s.publishUpdate(t)
		}
	})
	return err
}

// LowerCeiling reduces the concurrency ceiling; it never raises it. Active
// workers above a lowered ceiling finish normally, and the freed slots are
// simply not refilled.
func (s *Scheduler) LowerCeiling(n int) {
	s.do(func() {
		s.ceiling = tune.Lower(s.ceiling, n)
	})
}

// Get returns a snapshot of the task.
func (s *Scheduler) Get(id string) (model.Task, bool) {
	var snap model.Task
	var ok bool
	s.do(func() {
		var t *model.Task
		if t, ok = s.tasks[id]; ok {
			snap = t.Clone()
		}
	})
	return snap, ok
}

// All returns snapshots of every task in creation order.
func (s *Scheduler) All() []model.Task {
	var out []model.Task
	s.do(func() {
		out = make([]model.Task, 0, len(s.tasks))
		for _, t := range s.tasks {
			out = append(out, t.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- coordinator-side helpers (must only run inside do/loop) ---

func (s *Scheduler) bind(t *model.Task) {
	s.setStatus(t, model.TaskStatusDownloading)
	t.StartedAt = time.Now()
	s.publishUpdate(t)

	ctx, cancel := context.WithCancel(context.Background())
	s.active[t.ID] = cancel
	snapshot := t.Clone()
	go s.runner.Run(ctx, snapshot, s.postEvent)
}

// postEvent hands a worker event to the coordinator. Called from worker
// goroutines.
func (s *Scheduler) postEvent(ev taskEvent) {
	s.ops <- func() { s.applyEvent(ev) }
}

func (s *Scheduler) applyEvent(ev taskEvent) {
	t, ok := s.tasks[ev.taskID]
	if !ok {
		return
	}
	switch ev.kind {
	case evTitle:
		t.Title = ev.title
		s.publishUpdate(t)
	case evProgress:
		if t.Status != model.TaskStatusDownloading {
			return
		}
		if ev.progress > t.Progress {
			t.Progress = ev.progress
		}
		t.Speed = ev.speed
		t.ETA = ev.eta
		s.publishUpdate(t)
	case evStatus:
		s.setStatus(t, ev.status)
		s.publishUpdate(t)
	case evCompleted:
		s.setStatus(t, model.TaskStatusCompleted)
		t.Progress = 100
		t.OutputPath = ev.output
		t.Segments = ev.segments
		t.CompletedAt = time.Now()
		s.publishUpdate(t)
		s.release(ev.taskID)
	case evFailed:
		s.setStatus(t, model.TaskStatusFailed)
		t.ErrorMessage = ev.message
		t.CompletedAt = time.Now()
		s.publishUpdate(t)
		s.release(ev.taskID)
	case evCancelled:
		s.setStatus(t, model.TaskStatusCancelled)
		t.CompletedAt = time.Now()
		s.publishUpdate(t)
		s.release(ev.taskID)
	}
}

// release frees the task's worker slot and pulls the next FIFO-eligible
// queued task, respecting the current ceiling.
func (s *Scheduler) release(id string) {
	if cancel, ok := s.active[id]; ok {
		cancel()
		delete(s.active, id)
	}
	for len(s.active) < s.ceiling && len(s.queue) > 0 {
		nextID := s.queue[0]
		s.queue = s.queue[1:]
		next, ok := s.tasks[nextID]
		if !ok || next.Status != model.TaskStatusQueued {
			continue
		}
		s.bind(next)
	}
}

// setStatus applies a transition, dropping anything that would violate the
// state machine.
func (s *Scheduler) setStatus(t *model.Task, next model.TaskStatus) {
	if t.Status == next {
		return
	}
	if !t.Status.CanTransitionTo(next) {
		s.log.Warn("dropping illegal status transition",
			slog.String("task_id", t.ID),
			slog.String("from", t.Status.String()),
			slog.String("to", next.String()),
		)
		return
	}
	t.Status = next
}

func (s *Scheduler) publishUpdate(t *model.Task) {
	s.TaskUpdated.Publish(t.Clone())
}

func (s *Scheduler) removeFromQueue(id string) {
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) checkBacklog() {
	if backlog := len(s.active) + len(s.queue); backlog > s.ceiling*backlogFactor {
		s.log.Warn("task backlog exceeds capacity advisory threshold",
			slog.Int("backlog", backlog),
			slog.Int("ceiling", s.ceiling),
		)
	}
}

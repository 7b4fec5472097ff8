package model

// TaskStatus represents the lifecycle state of a download task.
type TaskStatus string

const (
	// TaskStatusPending means the task is registered but not yet started
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusQueued means the task is waiting for a free worker slot
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusDownloading means the retrieval is in progress
	TaskStatusDownloading TaskStatus = "Downloading"

	// TaskStatusProcessing means the download finished and segmenting is running
	TaskStatusProcessing TaskStatus = "Processing"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusFailed means the task failed with an error
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCancelled means the task was cancelled by the caller
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// String returns the string representation of TaskStatus.
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if a worker is bound to the task.
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusDownloading || ts == TaskStatusProcessing
}

// IsTerminal returns true if the task reached a final state.
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed || ts == TaskStatusCancelled
}

// CanTransitionTo reports whether moving from ts to next follows an edge of the
// task state machine. Terminal states are re-entered only through Pending, which
// is how a caller re-submits a finished task.
func (ts TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch ts {
	case TaskStatusPending:
		return next == TaskStatusQueued || next == TaskStatusDownloading || next == TaskStatusCancelled
	case TaskStatusQueued:
		return next == TaskStatusDownloading || next == TaskStatusCancelled
	case TaskStatusDownloading:
		return next == TaskStatusProcessing || next.IsTerminal()
	case TaskStatusProcessing:
		return next.IsTerminal()
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return next == TaskStatusPending
	}
	return false
}

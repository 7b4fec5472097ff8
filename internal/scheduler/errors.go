package scheduler

import "fmt"

// TaskNotFoundError is returned when a task id does not exist in the
// registry.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// ToolUnavailableError is returned when the transcoding tool is required but
// could not be located. Hint carries remediation guidance for the user.
type ToolUnavailableError struct {
	Hint string
}

func (e *ToolUnavailableError) Error() string {
	return "transcoding tool unavailable: " + e.Hint
}

// SourceNotFoundError is returned when the retrieval finished but no output
// file matching the video id could be located.
type SourceNotFoundError struct {
	VideoID string
	Dir     string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("output not found for %q in %s", e.VideoID, e.Dir)
}

package model

import (
	"strings"
	"testing"
)

func TestNewTaskID(t *testing.T) {
	id := NewTaskID()
	if !strings.HasPrefix(id, TaskIDPrefix) {
		t.Errorf("NewTaskID() = %s, expected prefix %s", id, TaskIDPrefix)
	}
	if id == NewTaskID() {
		t.Error("NewTaskID() returned the same id twice")
	}
}

func TestNewTaskID_Sortable(t *testing.T) {
	a := NewTaskID()
	b := NewTaskID()
	if !(a < b) {
		t.Errorf("ids should sort in creation order, got %s then %s", a, b)
	}
}

func TestTask_DisplayTitle(t *testing.T) {
	tests := []struct {
		title    string
		output   string
		url      string
		expected string
	}{
		{"Video Title", "", "https://youtube.com/watch?v=123", "Video Title"},
		{"", "", "https://youtube.com/watch?v=123", "https://youtube.com/watch?v=123"},
		{"https://youtube.com/watch?v=123", "", "https://youtube.com/watch?v=123", "https://youtube.com/watch?v=123"},
		{"", "/downloads/My Clip - abc123.mp4", "https://x", "My Clip - abc123"},
		{"", "C:\\downloads\\My Clip - abc123.mp4", "https://x", "My Clip - abc123"},
	}

	for _, test := range tests {
		task := &Task{
			Title:      test.title,
			OutputPath: test.output,
			URL:        test.url,
		}
		if result := task.DisplayTitle(); result != test.expected {
			t.Errorf("DisplayTitle() with title=%q output=%q = %q, expected %q",
				test.title, test.output, result, test.expected)
		}
	}
}

func TestTask_Clone(t *testing.T) {
	task := &Task{
		ID:       "task-1",
		Status:   TaskStatusCompleted,
		Segments: []string{"a.mp4", "b.mp4"},
	}

	clone := task.Clone()
	clone.Segments[0] = "changed.mp4"

	if task.Segments[0] != "a.mp4" {
		t.Error("Clone() shares the segments slice with the original")
	}
	if clone.ID != task.ID || clone.Status != task.Status {
		t.Error("Clone() did not copy scalar fields")
	}
}

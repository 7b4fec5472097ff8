package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ytget/yt-manager/internal/model"
	"github.com/ytget/yt-manager/internal/platform"
	"github.com/ytget/yt-manager/internal/segment"
)

type fakeSegmenter struct {
	segments []string
	err      error
	gotReq   segment.Request
	called   bool
}

func (f *fakeSegmenter) Split(_ context.Context, req segment.Request) ([]string, error) {
	f.called = true
	f.gotReq = req
	return f.segments, f.err
}

// newTestWorker returns a worker with all external bindings stubbed to a
// successful path; tests override individual seams.
func newTestWorker(seg Segmenter) *Worker {
	w := NewWorker("/dl", seg, nil)
	w.locateTools = func() (*platform.Toolchain, error) {
		return &platform.Toolchain{FFmpeg: "ffmpeg", FFprobe: "ffprobe", Dir: "/tools"}, nil
	}
	w.extractID = func(string) (string, error) { return "vid123", nil }
	w.fetchTitle = func(context.Context, string) (string, error) { return "My Video", nil }
	w.download = func(_ context.Context, _ downloadParams, onProgress progressFunc) error {
		onProgress(50, "1.0 MB/s", "00:30")
		return nil
	}
	w.findOutput = func(string, string, string) (string, error) {
		return "/dl/My Video - vid123.mp4", nil
	}
	return w
}

func collectEvents(w *Worker, ctx context.Context, task model.Task) []taskEvent {
	var events []taskEvent
	w.Run(ctx, task, func(ev taskEvent) { events = append(events, ev) })
	return events
}

func kindsOf(events []taskEvent) []eventKind {
	kinds := make([]eventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.kind
	}
	return kinds
}

func TestWorkerRun_HappyPath(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	task := model.Task{ID: "task-1", URL: "https://youtube.com/watch?v=vid123", Kind: model.KindVideoAudio, OutputFormat: "mp4"}

	events := collectEvents(w, context.Background(), task)

	expected := []eventKind{evTitle, evProgress, evCompleted}
	if len(events) != len(expected) {
		t.Fatalf("got %d events %v, expected kinds %v", len(events), kindsOf(events), expected)
	}
	for i, kind := range expected {
		if events[i].kind != kind {
			t.Errorf("event %d kind = %v, expected %v", i, events[i].kind, kind)
		}
	}
	final := events[len(events)-1]
	if final.output != "/dl/My Video - vid123.mp4" {
		t.Errorf("completed output = %s", final.output)
	}
}

func TestWorkerRun_BadURLFailsWithoutDownloading(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	w.extractID = func(string) (string, error) { return "", errors.New("no id") }
	downloaded := false
	w.download = func(context.Context, downloadParams, progressFunc) error {
		downloaded = true
		return nil
	}

	events := collectEvents(w, context.Background(), model.Task{ID: "task-1", URL: "not-a-url"})

	if len(events) != 1 || events[0].kind != evFailed {
		t.Fatalf("expected a single failure event, got %v", kindsOf(events))
	}
	if downloaded {
		t.Error("download must not run for an unrecognized URL")
	}
}

func TestWorkerRun_TitlePrefetchFailureIsNotFatal(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	w.fetchTitle = func(context.Context, string) (string, error) { return "", errors.New("metadata down") }

	events := collectEvents(w, context.Background(), model.Task{ID: "task-1", URL: "https://x", Kind: model.KindVideoAudio})

	kinds := kindsOf(events)
	if kinds[len(kinds)-1] != evCompleted {
		t.Fatalf("expected completion despite metadata failure, got %v", kinds)
	}
	for _, k := range kinds {
		if k == evTitle {
			t.Error("no title event expected when the pre-fetch fails")
		}
	}
}

func TestWorkerRun_ToolMissingFailsWhenRequired(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	w.locateTools = func() (*platform.Toolchain, error) { return nil, errors.New("not found") }

	task := model.Task{
		ID:   "task-1",
		URL:  "https://x",
		Kind: model.KindAudioOnly,
		Split: model.SplitConfig{
			Enabled:         true,
			SegmentDuration: 120,
		},
	}
	events := collectEvents(w, context.Background(), task)

	final := events[len(events)-1]
	if final.kind != evFailed {
		t.Fatalf("expected failure, got %v", kindsOf(events))
	}
	if !strings.Contains(final.message, "transcoding tool unavailable") {
		t.Errorf("failure message %q should carry the install hint", final.message)
	}
}

func TestWorkerRun_ProgressiveFallbackWithoutTool(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	w.locateTools = func() (*platform.Toolchain, error) { return nil, errors.New("not found") }

	var got downloadParams
	w.download = func(_ context.Context, p downloadParams, _ progressFunc) error {
		got = p
		return nil
	}

	task := model.Task{ID: "task-1", URL: "https://x", Kind: model.KindVideoAudio, OutputFormat: "mp4"}
	events := collectEvents(w, context.Background(), task)

	if events[len(events)-1].kind != evCompleted {
		t.Fatalf("expected completion via progressive fallback, got %v", kindsOf(events))
	}
	if got.format != ProgressiveSelector(0, 0) {
		t.Errorf("format = %s, expected the progressive selector", got.format)
	}
	if got.mergeFormat != "" {
		t.Errorf("mergeFormat = %s, expected none without the tool", got.mergeFormat)
	}
}

func TestWorkerRun_MergeFormatOnlyForCombined(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	var got downloadParams
	w.download = func(_ context.Context, p downloadParams, _ progressFunc) error {
		got = p
		return nil
	}

	collectEvents(w, context.Background(), model.Task{ID: "t1", URL: "https://x", Kind: model.KindVideoAudio, OutputFormat: "mp4"})
	if got.mergeFormat != "mp4" {
		t.Errorf("combined retrieval mergeFormat = %q, expected mp4", got.mergeFormat)
	}

	collectEvents(w, context.Background(), model.Task{ID: "t2", URL: "https://x", Kind: model.KindAudioOnly, OutputFormat: "m4a"})
	if got.mergeFormat != "" {
		t.Errorf("audio-only mergeFormat = %q, expected none", got.mergeFormat)
	}
}

func TestWorkerRun_CancelledDuringDownload(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	ctx, cancel := context.WithCancel(context.Background())
	w.download = func(ctx context.Context, _ downloadParams, _ progressFunc) error {
		cancel()
		return ctx.Err()
	}

	events := collectEvents(w, ctx, model.Task{ID: "task-1", URL: "https://x", Kind: model.KindVideoAudio})

	final := events[len(events)-1]
	if final.kind != evCancelled {
		t.Fatalf("expected cancellation, got %v", kindsOf(events))
	}
}

func TestWorkerRun_OutputMissingFails(t *testing.T) {
	w := newTestWorker(&fakeSegmenter{})
	w.findOutput = func(string, string, string) (string, error) { return "", errors.New("nothing") }

	events := collectEvents(w, context.Background(), model.Task{ID: "task-1", URL: "https://x", Kind: model.KindVideoAudio})

	final := events[len(events)-1]
	if final.kind != evFailed {
		t.Fatalf("expected failure, got %v", kindsOf(events))
	}
	if !strings.Contains(final.message, "vid123") {
		t.Errorf("failure message %q should name the video id", final.message)
	}
}

func TestWorkerRun_SplitRunsAfterDownload(t *testing.T) {
	seg := &fakeSegmenter{segments: []string{"/dl/a_part1.mp4", "/dl/a_part2.mp4"}}
	w := newTestWorker(seg)

	task := model.Task{
		ID:   "task-1",
		URL:  "https://x",
		Kind: model.KindVideoAudio,
		Split: model.SplitConfig{
			Enabled:         true,
			SegmentDuration: 120,
			TitlePrefix:     "Part",
		},
	}
	events := collectEvents(w, context.Background(), task)

	kinds := kindsOf(events)
	sawProcessing := false
	for _, ev := range events {
		if ev.kind == evStatus && ev.status == model.TaskStatusProcessing {
			sawProcessing = true
		}
	}
	if !sawProcessing {
		t.Errorf("expected a Processing status event before segmenting, got %v", kinds)
	}

	final := events[len(events)-1]
	if final.kind != evCompleted || len(final.segments) != 2 {
		t.Fatalf("expected completion with 2 segments, got kind %v segments %v", final.kind, final.segments)
	}
	if seg.gotReq.OverlayTitle != "My Video" {
		t.Errorf("overlay title = %q, expected fallback to the video title", seg.gotReq.OverlayTitle)
	}
}

func TestWorkerRun_SegmentingFailureKeepsDownload(t *testing.T) {
	seg := &fakeSegmenter{err: errors.New("encoder blew up")}
	w := newTestWorker(seg)

	task := model.Task{
		ID:   "task-1",
		URL:  "https://x",
		Kind: model.KindVideoAudio,
		Split: model.SplitConfig{
			Enabled:         true,
			SegmentDuration: 120,
		},
	}
	events := collectEvents(w, context.Background(), task)

	final := events[len(events)-1]
	if final.kind != evCompleted {
		t.Fatalf("segmenting failure must not fail the task, got %v", kindsOf(events))
	}
	if len(final.segments) != 0 {
		t.Errorf("expected no segments after a failed split, got %v", final.segments)
	}
	if final.output == "" {
		t.Error("the downloaded file must still be delivered")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "—"},
		{-time.Second, "—"},
		{30 * time.Second, "00:30"},
		{90 * time.Second, "01:30"},
		{3661 * time.Second, "01:01:01"},
	}

	for _, test := range tests {
		if got := formatETA(test.d); got != test.expected {
			t.Errorf("formatETA(%v) = %s, expected %s", test.d, got, test.expected)
		}
	}
}

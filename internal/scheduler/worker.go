package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	kkyoutube "github.com/kkdai/youtube/v2"
	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-manager/internal/model"
	"github.com/ytget/yt-manager/internal/platform"
	"github.com/ytget/yt-manager/internal/segment"
)

// progressInterval is how often the downloader reports transfer progress.
const progressInterval = 500 * time.Millisecond

// outputTemplate names downloaded files so the video id is recoverable by
// substring match.
const outputTemplate = "%(title)s - %(id)s.%(ext)s"

// Segmenter is the post-processing engine invoked after a successful
// retrieval of a split-enabled task.
type Segmenter interface {
	Split(ctx context.Context, req segment.Request) ([]string, error)
}

type progressFunc func(percent float64, speed, eta string)

type downloadParams struct {
	url         string
	format      string
	mergeFormat string // empty when no muxing is needed
	toolDir     string
	outputPath  string
}

// Worker executes one retrieval task end-to-end, invoking the segmenting
// engine when requested. It reports everything through the emit callback and
// emits exactly one terminal event.
type Worker struct {
	downloadDir string
	segmenter   Segmenter
	log         *slog.Logger

	// seams for tests; production uses the real tool/downloader bindings
	locateTools func() (*platform.Toolchain, error)
	extractID   func(url string) (string, error)
	fetchTitle  func(ctx context.Context, url string) (string, error)
	download    func(ctx context.Context, p downloadParams, onProgress progressFunc) error
	findOutput  func(dir, id, ext string) (string, error)
}

// NewWorker creates a download worker writing into downloadDir.
func NewWorker(downloadDir string, segmenter Segmenter, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		downloadDir: downloadDir,
		segmenter:   segmenter,
		log:         log,
		locateTools: platform.LocateToolchain,
		extractID:   kkyoutube.ExtractVideoID,
		fetchTitle:  fetchTitle,
		download:    runDownload,
		findOutput:  platform.FindOutputByID,
	}
}

// Run performs the retrieval for task. Cancellation is cooperative through
// ctx: the transfer aborts at the next progress boundary, but a blocking
// subprocess call runs to completion first.
func (w *Worker) Run(ctx context.Context, task model.Task, emit func(taskEvent)) {
	log := w.log.With(slog.String("task_id", task.ID))

	fail := func(err error) {
		msg := err.Error()
		log.Error("download failed", slog.String("error", msg))
		emit(taskEvent{taskID: task.ID, kind: evFailed, message: msg})
	}

	tools, toolErr := w.locateTools()

	videoID, err := w.extractID(task.URL)
	if err != nil {
		fail(fmt.Errorf("unrecognized source URL %q: %w", task.URL, err))
		return
	}

	// Best-effort title pre-fetch so the task is labeled even if the
	// retrieval later fails.
	if title, err := w.fetchTitle(ctx, task.URL); err != nil {
		log.Debug("metadata pre-fetch failed", slog.String("error", err.Error()))
	} else if title != "" {
		task.Title = title
		emit(taskEvent{taskID: task.ID, kind: evTitle, title: title})
	}

	// The tool is required whenever output muxing or splitting is requested.
	// A plain combined request can fall back to one progressive stream.
	needsTool := task.Kind != model.KindAudioOnly || task.Split.Enabled
	progressive := false
	if toolErr != nil && needsTool {
		if task.Kind == model.KindVideoAudio && !task.Split.Enabled {
			progressive = true
			log.Warn("transcoding tool missing, falling back to progressive stream")
		} else {
			fail(&ToolUnavailableError{Hint: platform.InstallHint})
			return
		}
	}

	p := downloadParams{
		url:        task.URL,
		outputPath: filepath.Join(w.downloadDir, outputTemplate),
	}
	if progressive {
		p.format = ProgressiveSelector(task.Split.Width, task.Split.Height)
	} else {
		p.format = FormatSelector(task.Kind, task.Split.Width, task.Split.Height)
		if task.Kind == model.KindVideoAudio {
			p.mergeFormat = task.OutputFormat
		}
	}
	if tools != nil {
		p.toolDir = tools.Dir
	}

	onProgress := func(percent float64, speed, eta string) {
		emit(taskEvent{
			taskID:   task.ID,
			kind:     evProgress,
			progress: percent,
			speed:    speed,
			eta:      eta,
		})
	}

	if err := w.download(ctx, p, onProgress); err != nil {
		if ctx.Err() == context.Canceled {
			emit(taskEvent{taskID: task.ID, kind: evCancelled})
			return
		}
		fail(err)
		return
	}
	if ctx.Err() == context.Canceled {
		emit(taskEvent{taskID: task.ID, kind: evCancelled})
		return
	}

	output, err := w.findOutput(w.downloadDir, videoID, task.OutputFormat)
	if err != nil {
		fail(&SourceNotFoundError{VideoID: videoID, Dir: w.downloadDir})
		return
	}

	var segments []string
	if task.Split.Enabled {
		emit(taskEvent{taskID: task.ID, kind: evStatus, status: model.TaskStatusProcessing})

		overlay := task.Split.OverlayTitle
		if overlay == "" {
			overlay = task.Title
		}
		segs, err := w.segmenter.Split(ctx, segment.Request{
			InputPath:       output,
			OutputDir:       w.downloadDir,
			SegmentDuration: task.Split.SegmentDuration,
			TitlePrefix:     task.Split.TitlePrefix,
			OverlayTitle:    overlay,
			HeadTrim:        task.Split.HeadTrim,
			TailTrim:        task.Split.TailTrim,
			SpeedFactor:     task.Split.SpeedFactor,
			Width:           task.Split.Width,
			Height:          task.Split.Height,
		})
		if err != nil {
			// Intentional policy: a segmenting failure does not fail the
			// parent task; the full download is still delivered.
			log.Warn("segmenting failed", slog.String("error", err.Error()))
		} else {
			segments = segs
		}
	}

	emit(taskEvent{
		taskID:   task.ID,
		kind:     evCompleted,
		output:   output,
		segments: segments,
	})
}

// fetchTitle resolves the video title without downloading anything.
func fetchTitle(ctx context.Context, url string) (string, error) {
	client := kkyoutube.Client{}
	video, err := client.GetVideoContext(ctx, url)
	if err != nil {
		return "", err
	}
	return video.Title, nil
}

// runDownload streams the retrieval with yt-dlp, reporting progress at each
// callback. Cancelling ctx aborts the transfer at the next callback boundary.
func runDownload(ctx context.Context, p downloadParams, onProgress progressFunc) error {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Format(p.format).
		Output(p.outputPath)
	if p.mergeFormat != "" {
		dl = dl.MergeOutputFormat(p.mergeFormat)
	}
	if p.toolDir != "" {
		dl = dl.FFmpegLocation(p.toolDir)
	}

	dl.ProgressFunc(progressInterval, func(up ytdlp.ProgressUpdate) {
		if ctx.Err() != nil {
			return
		}
		percent := 0.0
		if up.TotalBytes > 0 {
			percent = float64(up.DownloadedBytes) / float64(up.TotalBytes) * 100
		}
		speed := "—"
		if !up.Started.IsZero() {
			if elapsed := time.Since(up.Started); elapsed > 0 {
				bps := float64(up.DownloadedBytes) / elapsed.Seconds()
				speed = humanize.Bytes(uint64(bps)) + "/s"
			}
		}
		onProgress(percent, speed, formatETA(up.ETA()))
	})

	_, err := dl.Run(ctx, p.url)
	return err
}

// formatETA renders a duration as mm:ss or hh:mm:ss, or "—" when unknown.
func formatETA(d time.Duration) string {
	secs := int(d.Seconds())
	if secs <= 0 {
		return "—"
	}
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

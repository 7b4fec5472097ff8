// Package segment splits one media file into labeled, time-boxed segments
// using ffmpeg, running the per-segment jobs on a bounded worker pool.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ytget/yt-manager/internal/platform"
)

// Default render target. Segments are letterboxed into a portrait frame
// unless the request overrides the bounds.
const (
	DefaultWidth  = 1080
	DefaultHeight = 1920
)

// Overlay rendering constants.
const (
	titleFontSize = 36
	labelFontSize = 48
	boxBorder     = 10
)

// ffprobe invocation constants.
const (
	ffprobeLogLevel     = "error"
	ffprobeShowEntries  = "format=duration"
	ffprobeOutputFormat = "csv=p=0"
)

// Request describes one split job.
type Request struct {
	InputPath       string
	OutputDir       string
	SegmentDuration int     // seconds per segment
	TitlePrefix     string  // rendered as "<prefix> <n>" on each segment
	OverlayTitle    string  // title block burned into the upper area
	HeadTrim        int     // seconds dropped from the start of the source
	TailTrim        int     // seconds dropped from the end of the source
	SpeedFactor     float64 // playback speed; 0 or 1 means unchanged
	Width           int
	Height          int
}

// BatchError aggregates per-segment failures. The batch is aborted as soon as
// the pool drains; partial output files are not cleaned up.
type BatchError struct {
	Failures int
	First    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("segmenting failed for %d segment(s): %v", e.Failures, e.First)
}

func (e *BatchError) Unwrap() error { return e.First }

// Service renders segments with ffmpeg.
type Service struct {
	tools    *platform.Toolchain
	workers  int
	fontFile string
	log      *slog.Logger

	// seams for tests; production uses the exec-backed defaults
	runJob   func(ctx context.Context, args []string) error
	duration func(path string) (float64, error)
}

// NewService creates a segmenting service. workers bounds the internal pool;
// fontFile optionally overrides the drawtext font.
func NewService(tools *platform.Toolchain, workers int, fontFile string, log *slog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{tools: tools, workers: workers, fontFile: fontFile, log: log}
	s.runJob = s.runFFmpeg
	s.duration = s.probeDuration
	return s
}

// Split renders every segment of req and returns the output paths ordered by
// segment index. Jobs complete in arbitrary order on the pool; any single
// failure aborts the batch with a BatchError.
func (s *Service) Split(ctx context.Context, req Request) ([]string, error) {
	if req.SegmentDuration < 1 {
		return nil, fmt.Errorf("segment duration must be positive, got %d", req.SegmentDuration)
	}
	if err := platform.EnsureDir(req.OutputDir); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	total, err := s.duration(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	effective := total - float64(req.HeadTrim) - float64(req.TailTrim)
	if effective <= 0 {
		return nil, fmt.Errorf("nothing left to segment: duration %.1fs, trims %ds+%ds",
			total, req.HeadTrim, req.TailTrim)
	}

	count := Count(effective, req.SegmentDuration)
	s.log.Info("splitting media",
		slog.String("input", req.InputPath),
		slog.Int("segments", count),
		slog.Int("workers", s.workers),
	)

	outputs := make([]string, count)
	errs := make([]error, count)
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out := s.segmentPath(req, idx)
			args := s.buildSegmentArgs(req, idx, effective, out)
			if err := s.runJob(ctx, args); err != nil {
				errs[idx] = fmt.Errorf("segment %d: %w", idx+1, err)
				return
			}
			outputs[idx] = out
		}(i)
	}
	wg.Wait()

	failures := 0
	var first error
	for _, err := range errs {
		if err != nil {
			failures++
			if first == nil {
				first = err
			}
		}
	}
	if failures > 0 {
		return nil, &BatchError{Failures: failures, First: first}
	}
	return outputs, nil
}

// Count returns how many segments a source of the given effective duration
// yields: floor division plus one for any remainder.
func Count(duration float64, segmentDuration int) int {
	sd := float64(segmentDuration)
	n := int(duration / sd)
	if math.Mod(duration, sd) > 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// segmentPath derives the output file name for segment idx.
func (s *Service) segmentPath(req Request, idx int) string {
	ext := filepath.Ext(req.InputPath)
	stem := strings.TrimSuffix(filepath.Base(req.InputPath), ext)
	prefix := strings.ReplaceAll(strings.ToLower(req.TitlePrefix), " ", "_")
	return filepath.Join(req.OutputDir, fmt.Sprintf("%s_%s%d%s", stem, prefix, idx+1, ext))
}

// buildSegmentArgs assembles the ffmpeg invocation for one segment. The audio
// track is copied untouched unless a speed change forces re-encoding.
func (s *Service) buildSegmentArgs(req Request, idx int, effective float64, out string) []string {
	start := float64(req.HeadTrim) + float64(idx*req.SegmentDuration)
	length := float64(req.SegmentDuration)
	if rem := float64(req.HeadTrim) + effective - start; rem < length {
		length = rem
	}

	args := []string{
		"-y",
		"-i", req.InputPath,
		"-ss", strconv.FormatFloat(start, 'f', -1, 64),
		"-t", strconv.FormatFloat(length, 'f', -1, 64),
		"-vf", s.buildVideoFilter(req, idx),
	}
	if speed := req.SpeedFactor; speed > 0 && speed != 1.0 {
		args = append(args, "-filter:a", atempoChain(speed))
	} else {
		args = append(args, "-c:a", "copy")
	}
	return append(args, out)
}

// buildVideoFilter renders the scale-then-pad letterbox plus the two burned-in
// overlays: the wrapped title block in the upper area and the part label in
// the lower area.
func (s *Service) buildVideoFilter(req Request, idx int) string {
	w, h := req.Width, req.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}

	title := escapeFilterText(wrapOverlayTitle(req.OverlayTitle))
	label := escapeFilterText(fmt.Sprintf("%s %d", req.TitlePrefix, idx+1))

	font := ""
	if s.fontFile != "" {
		font = fmt.Sprintf("fontfile='%s':", escapeFilterText(s.fontFile))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "scale=%d:%d:force_original_aspect_ratio=decrease,", w, h)
	fmt.Fprintf(&b, "pad=%d:%d:(ow-iw)/2:(oh-ih)/2,", w, h)
	fmt.Fprintf(&b, "drawtext=%stext='%s':fontcolor=black:fontsize=%d:"+
		"x=(w-text_w)/2:y=h/4-text_h:box=1:boxcolor=yellow@1:boxborderw=%d,",
		font, title, titleFontSize, boxBorder)
	fmt.Fprintf(&b, "drawtext=%stext='%s':fontcolor=black:fontsize=%d:"+
		"x=(w-text_w)/2:y=h-text_h-h/4:box=1:boxcolor=yellow@1:boxborderw=%d",
		font, label, labelFontSize, boxBorder)
	if speed := req.SpeedFactor; speed > 0 && speed != 1.0 {
		fmt.Fprintf(&b, ",setpts=PTS/%g", speed)
	}
	return b.String()
}

// atempoChain builds an atempo filter for the given speed. A single atempo
// leg only accepts [0.5,2.0], so larger changes are chained.
func atempoChain(speed float64) string {
	var legs []string
	for speed > 2.0 {
		legs = append(legs, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		legs = append(legs, "atempo=0.5")
		speed /= 0.5
	}
	legs = append(legs, fmt.Sprintf("atempo=%g", speed))
	return strings.Join(legs, ",")
}

func (s *Service) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, s.tools.FFmpeg, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
	}
	return nil
}

// probeDuration reads the source duration in seconds using ffprobe.
func (s *Service) probeDuration(path string) (float64, error) {
	cmd := exec.Command(s.tools.FFprobe,
		"-v", ffprobeLogLevel,
		"-show_entries", ffprobeShowEntries,
		"-of", ffprobeOutputFormat,
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return d, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-manager/internal/model"
	"github.com/ytget/yt-manager/internal/platform"
	"github.com/ytget/yt-manager/internal/scheduler"
	"github.com/ytget/yt-manager/internal/segment"
	"github.com/ytget/yt-manager/internal/tune"
)

var (
	dlAudioOnly   bool
	dlVideoOnly   bool
	dlFormat      string
	dlSplit       bool
	dlSegDuration int
	dlTitlePrefix string
	dlOverlay     string
	dlHeadTrim    int
	dlTailTrim    int
	dlSpeed       float64
	dlParallel    int
)

var downloadCmd = &cobra.Command{
	Use:   "download URL [URL...]",
	Short: "Download videos, optionally splitting them into labeled segments",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().BoolVar(&dlAudioOnly, "audio-only", false, "retrieve the audio track only")
	downloadCmd.Flags().BoolVar(&dlVideoOnly, "video-only", false, "retrieve the video track only")
	downloadCmd.Flags().StringVar(&dlFormat, "format", "", "container format (default from settings)")
	downloadCmd.Flags().BoolVar(&dlSplit, "split", false, "split the result into time-boxed segments")
	downloadCmd.Flags().IntVar(&dlSegDuration, "segment-duration", 0, "segment length in seconds (default from settings)")
	downloadCmd.Flags().StringVar(&dlTitlePrefix, "title-prefix", "", "segment label prefix (default from settings)")
	downloadCmd.Flags().StringVar(&dlOverlay, "overlay-title", "", "title burned into segments (default: video title)")
	downloadCmd.Flags().IntVar(&dlHeadTrim, "head-trim", 0, "seconds dropped from the start before splitting")
	downloadCmd.Flags().IntVar(&dlTailTrim, "tail-trim", 0, "seconds dropped from the end before splitting")
	downloadCmd.Flags().Float64Var(&dlSpeed, "speed", 0, "playback speed factor applied to segments")
	downloadCmd.Flags().IntVar(&dlParallel, "parallel", 0, "concurrent download ceiling (default: derived from host capacity)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	if dlAudioOnly && dlVideoOnly {
		return fmt.Errorf("--audio-only and --video-only are mutually exclusive")
	}
	settings, log, err := loadEnv()
	if err != nil {
		return err
	}
	if err := platform.EnsureDir(settings.DownloadDir); err != nil {
		return err
	}

	tuner := tune.New()
	override := settings.MaxConcurrentDownloads
	if dlParallel > 0 {
		override = dlParallel
	}
	ceiling := tuner.MaxConcurrentDownloads(override)

	var segmenter scheduler.Segmenter
	if tools, terr := platform.LocateToolchain(); terr == nil {
		workers := tuner.MaxSegmentWorkers(settings.MaxSegmentWorkers)
		segmenter = segment.NewService(tools, workers, settings.OverlayFont, log)
	} else if dlSplit {
		return terr
	}

	worker := scheduler.NewWorker(settings.DownloadDir, segmenter, log)
	sched := scheduler.New(worker, ceiling, log)
	defer sched.Close()

	kind := model.KindVideoAudio
	switch {
	case dlAudioOnly:
		kind = model.KindAudioOnly
	case dlVideoOnly:
		kind = model.KindVideoOnly
	}
	format := settings.OutputFormat
	if dlFormat != "" {
		format = dlFormat
	}
	segDuration := settings.SegmentDuration
	if dlSegDuration > 0 {
		segDuration = dlSegDuration
	}
	prefix := settings.TitlePrefix
	if dlTitlePrefix != "" {
		prefix = dlTitlePrefix
	}

	// Terminal transitions arrive on a channel sized for every submission so
	// the bus handler never blocks.
	finished := make(chan model.Task, len(args))
	sched.TaskUpdated.Subscribe(func(t model.Task) {
		switch {
		case t.Status.IsTerminal():
			finished <- t
		case t.Status == model.TaskStatusDownloading && t.Progress > 0:
			fmt.Printf("\r%-40.40s %6.1f%% %10s eta %s", t.DisplayTitle(), t.Progress, t.Speed, t.ETA)
		}
	})

	ids := make([]string, 0, len(args))
	for _, url := range args {
		task := sched.Submit(scheduler.AddTaskParams{
			URL:          url,
			Kind:         kind,
			OutputFormat: format,
			Split: model.SplitConfig{
				Enabled:         dlSplit,
				SegmentDuration: segDuration,
				TitlePrefix:     prefix,
				OverlayTitle:    dlOverlay,
				HeadTrim:        dlHeadTrim,
				TailTrim:        dlTailTrim,
				SpeedFactor:     dlSpeed,
			},
		})
		ids = append(ids, task.ID)
		if err := sched.Start(task.ID); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failures := 0
	sigDone := sigCtx.Done()
	for done := 0; done < len(ids); {
		select {
		case t := <-finished:
			done++
			fmt.Print("\r")
			switch t.Status {
			case model.TaskStatusCompleted:
				fmt.Printf("completed: %s\n", t.OutputPath)
				for _, seg := range t.Segments {
					fmt.Printf("  segment: %s\n", seg)
				}
			case model.TaskStatusFailed:
				failures++
				fmt.Fprintf(os.Stderr, "failed: %s: %s\n", t.DisplayTitle(), t.ErrorMessage)
			case model.TaskStatusCancelled:
				fmt.Printf("cancelled: %s\n", t.DisplayTitle())
			}
		case <-sigDone:
			sigDone = nil
			stop()
			for _, id := range ids {
				_ = sched.Cancel(id)
			}
			// keep draining; cancelled tasks still emit their terminal event
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d download(s) failed", failures, len(ids))
	}
	return nil
}

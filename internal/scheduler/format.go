package scheduler

import (
	"fmt"

	"github.com/ytget/yt-manager/internal/model"
)

// FormatSelector builds the downloader format expression for a task kind with
// optional resolution ceilings. Combined requests prefer muxed mp4 pairs and
// degrade through a generic best-effort chain.
func FormatSelector(kind model.TaskKind, width, height int) string {
	switch kind {
	case model.KindAudioOnly:
		return "bestaudio/best"
	case model.KindVideoOnly:
		return fmt.Sprintf("bestvideo%s/bestvideo", resolutionConstraint(width, height))
	default:
		c := resolutionConstraint(width, height)
		return fmt.Sprintf("bestvideo%s[ext=mp4]+bestaudio[ext=m4a]/best%s[ext=mp4]/best%s/bv*+ba/b", c, c, c)
	}
}

// ProgressiveSelector is the single-stream fallback used when the transcoding
// tool is unavailable and no merge is needed.
func ProgressiveSelector(width, height int) string {
	return fmt.Sprintf("best%s/best", resolutionConstraint(width, height))
}

// resolutionConstraint renders the [height<=H][width<=W] filters; both are
// applied together when both bounds are given.
func resolutionConstraint(width, height int) string {
	c := ""
	if height > 0 {
		c += fmt.Sprintf("[height<=%d]", height)
	}
	if width > 0 {
		c += fmt.Sprintf("[width<=%d]", width)
	}
	return c
}

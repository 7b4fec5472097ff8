package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-manager/internal/catalog"
	"github.com/ytget/yt-manager/internal/model"
)

var (
	videosMax      int
	videosSince    int
	videosSearch   bool
	videosRefresh  bool
	videosEstimate bool
)

var videosCmd = &cobra.Command{
	Use:   "videos [channel-id...]",
	Short: "List recent videos per channel, or across all subscriptions",
	Long: `Lists recent uploads for the given channel ids. With no arguments the
subscribed channels are fetched first and their videos aggregated.`,
	RunE: runVideos,
}

func init() {
	videosCmd.Flags().IntVar(&videosMax, "max", 10, "maximum videos per channel")
	videosCmd.Flags().IntVar(&videosSince, "since", 72, "look-back window in hours")
	videosCmd.Flags().BoolVar(&videosSearch, "search-fallback", false, "allow the expensive search strategy when enumeration yields nothing")
	videosCmd.Flags().BoolVar(&videosRefresh, "refresh", false, "bypass caches")
	videosCmd.Flags().BoolVar(&videosEstimate, "estimate", false, "print the quota unit estimate and exit")
}

func runVideos(cmd *cobra.Command, args []string) error {
	settings, log, err := loadEnv()
	if err != nil {
		return err
	}
	svc, err := buildCatalog(settings, log)
	if err != nil {
		return err
	}
	opts := catalog.FetchOptions{
		MaxResults:        videosMax,
		SinceHours:        videosSince,
		UseSearchFallback: videosSearch,
		ForceRefresh:      videosRefresh,
	}

	channelIDs := args
	if len(channelIDs) == 0 {
		channels, err := svc.LoadSubscriptions(cmd.Context(), 0, videosRefresh)
		if err != nil {
			return err
		}
		for _, ch := range channels {
			channelIDs = append(channelIDs, ch.ID)
		}
	}

	if videosEstimate {
		units := catalog.EstimateQuotaUnits(len(channelIDs), videosSearch)
		fmt.Printf("estimated quota units: %d (%d channels)\n", units, len(channelIDs))
		return nil
	}

	videos, err := svc.LoadMultipleChannelsVideos(cmd.Context(), channelIDs, opts)
	if err != nil {
		if !catalog.IsQuotaExceeded(err) {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: quota exhausted, showing partial results\n")
	}
	printVideos(videos)
	return nil
}

func printVideos(videos []model.Video) {
	for _, v := range videos {
		fmt.Printf("%s\t%s\t%s\n", v.PublishedAt, v.URL, v.Title)
	}
}

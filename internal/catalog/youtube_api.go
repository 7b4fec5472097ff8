package catalog

import (
	"context"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ytget/yt-manager/internal/model"
)

// API is the remote enumeration surface the service depends on. The real
// implementation wraps the Data API client; tests substitute a fake.
type API interface {
	// SubscriptionsPage lists one page of the account's subscriptions.
	SubscriptionsPage(ctx context.Context, pageToken string, max int64) ([]model.Channel, string, error)
	// UploadsPlaylists resolves channel ids to their uploads-playlist handles.
	// Callers keep batches at or under maxBatchIDs.
	UploadsPlaylists(ctx context.Context, channelIDs []string) (map[string]string, error)
	// PlaylistItemsPage lists one page of a playlist, newest first.
	PlaylistItemsPage(ctx context.Context, playlistID, pageToken string, max int64) ([]model.Video, string, error)
	// SearchPage lists one page of a channel's videos published after the
	// given ISO 8601 instant, newest first. Costly; fallback use only.
	SearchPage(ctx context.Context, channelID, publishedAfter, pageToken string, max int64) ([]model.Video, string, error)
}

// youtubeAPI implements API over the Data API v3 client.
type youtubeAPI struct {
	svc *youtube.Service
}

// NewAPI builds the real API implementation on the given authenticated
// client.
func NewAPI(ctx context.Context, client *http.Client) (API, error) {
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	return &youtubeAPI{svc: svc}, nil
}

func (a *youtubeAPI) SubscriptionsPage(ctx context.Context, pageToken string, max int64) ([]model.Channel, string, error) {
	call := a.svc.Subscriptions.List([]string{"snippet"}).
		Mine(true).
		MaxResults(max).
		Order("alphabetical").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}
	channels := make([]model.Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil {
			continue
		}
		channels = append(channels, model.Channel{
			ID:    item.Snippet.ResourceId.ChannelId,
			Title: item.Snippet.Title,
		})
	}
	return channels, resp.NextPageToken, nil
}

func (a *youtubeAPI) UploadsPlaylists(ctx context.Context, channelIDs []string) (map[string]string, error) {
	resp, err := a.svc.Channels.List([]string{"contentDetails"}).
		Id(channelIDs...).
		Fields("items(id,contentDetails/relatedPlaylists/uploads)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	handles := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil {
			continue
		}
		handles[item.Id] = item.ContentDetails.RelatedPlaylists.Uploads
	}
	return handles, nil
}

func (a *youtubeAPI) PlaylistItemsPage(ctx context.Context, playlistID, pageToken string, max int64) ([]model.Video, string, error) {
	call := a.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(max).
		Fields("items(snippet/publishedAt,snippet/title,snippet/resourceId/videoId,snippet/channelId),nextPageToken").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}
	videos := make([]model.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		sn := item.Snippet
		if sn == nil || sn.ResourceId == nil {
			continue
		}
		videos = append(videos, model.Video{
			ID:          sn.ResourceId.VideoId,
			Title:       sn.Title,
			PublishedAt: sn.PublishedAt,
			URL:         model.WatchURL(sn.ResourceId.VideoId),
			ChannelID:   sn.ChannelId,
		})
	}
	return videos, resp.NextPageToken, nil
}

func (a *youtubeAPI) SearchPage(ctx context.Context, channelID, publishedAfter, pageToken string, max int64) ([]model.Video, string, error) {
	call := a.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		PublishedAfter(publishedAfter).
		Order("date").
		Type("video").
		MaxResults(max).
		Fields("items(id/videoId,snippet/publishedAt,snippet/title),nextPageToken").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}
	videos := make([]model.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		videos = append(videos, model.Video{
			ID:          item.Id.VideoId,
			Title:       item.Snippet.Title,
			PublishedAt: item.Snippet.PublishedAt,
			URL:         model.WatchURL(item.Id.VideoId),
			ChannelID:   channelID,
		})
	}
	return videos, resp.NextPageToken, nil
}

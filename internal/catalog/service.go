// Package catalog enumerates channels and candidate videos from the remote
// catalog API with caching, retry, and quota awareness.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ytget/yt-manager/internal/cache"
	"github.com/ytget/yt-manager/internal/events"
	"github.com/ytget/yt-manager/internal/model"
)

// Remote call limits and advisory quota unit costs. The API exposes no live
// quota balance, so the estimate is informational only.
const (
	maxPageSize = 50
	maxBatchIDs = 50

	searchUnitCost      = 100
	enumerationUnitCost = 2
)

// Persisted cache documents.
const (
	subscriptionsDoc = "subscriptions.json"
	playlistsDoc     = "uploads_playlists.json"
)

// ChannelVideos pairs a channel id with its freshly loaded videos.
type ChannelVideos struct {
	ChannelID string
	Videos    []model.Video
}

// QuotaEvent is published when an aggregate fetch is cut short by quota
// exhaustion; Partial holds everything accumulated so far.
type QuotaEvent struct {
	Message string
	Partial []model.Video
}

// Events carries the catalog notification buses consumed by the presentation
// layer.
type Events struct {
	AuthChanged         events.Bus[bool]
	SubscriptionsLoaded events.Bus[[]model.Channel]
	VideosLoaded        events.Bus[ChannelVideos]
	AggregateLoaded     events.Bus[[]model.Video]
	QuotaExceeded       events.Bus[QuotaEvent]
	Error               events.Bus[string]
}

// FetchOptions tunes a channel-videos fetch.
type FetchOptions struct {
	MaxResults int
	SinceHours int
	// UseSearchFallback allows the expensive search strategy when the cheap
	// enumeration path yields nothing.
	UseSearchFallback bool
	ForceRefresh      bool
}

func (o FetchOptions) normalized() FetchOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.SinceHours <= 0 {
		o.SinceHours = 72
	}
	return o
}

// Service is the quota-aware catalog client. It is not safe for concurrent
// overlapping-channel fetches: cache documents are read-then-written without
// locking, so such writers race last-writer-wins.
type Service struct {
	session *Session
	api     API
	store   *cache.Store
	policy  retryPolicy
	subsTTL time.Duration
	log     *slog.Logger

	// channel id → uploads handle; immutable once resolved, never expires
	playlists map[string]string

	Events Events
}

// NewService creates a catalog service. api may be nil; it is then built
// lazily from the session on first use.
func NewService(session *Session, api API, store *cache.Store, subsTTL time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		session:   session,
		api:       api,
		store:     store,
		policy:    defaultRetryPolicy(),
		subsTTL:   subsTTL,
		log:       log,
		playlists: make(map[string]string),
	}
	s.store.Load(playlistsDoc, 0, &s.playlists)
	return s
}

// EnsureSession attempts a silent credential restore and reports whether a
// usable session is held. It never triggers the interactive flow.
func (s *Service) EnsureSession() bool {
	ok := s.session.Valid() || s.session.Restore()
	s.Events.AuthChanged.Publish(ok)
	return ok
}

// Authenticate runs the credential grant flow (silently satisfied by a
// restored token unless force is set) and prepares the API client.
func (s *Service) Authenticate(ctx context.Context, force bool) error {
	if err := s.session.Authenticate(ctx, force); err != nil {
		s.Events.Error.Publish(err.Error())
		s.Events.AuthChanged.Publish(false)
		return err
	}
	if err := s.connect(ctx); err != nil {
		s.Events.Error.Publish(err.Error())
		s.Events.AuthChanged.Publish(false)
		return err
	}
	s.Events.AuthChanged.Publish(true)
	return nil
}

func (s *Service) connect(ctx context.Context) error {
	if s.api != nil {
		return nil
	}
	client, err := s.session.Client(ctx)
	if err != nil {
		return err
	}
	api, err := NewAPI(ctx, client)
	if err != nil {
		return fmt.Errorf("build catalog client: %w", err)
	}
	s.api = api
	return nil
}

func (s *Service) ready(ctx context.Context) error {
	if s.api != nil {
		return nil
	}
	if !s.session.Valid() && !s.session.Restore() {
		return &AuthError{Reason: "no persisted credential"}
	}
	return s.connect(ctx)
}

// LoadSubscriptions lists the account's subscribed channels, serving from the
// TTL cache unless forceRefresh bypasses it.
func (s *Service) LoadSubscriptions(ctx context.Context, maxChannels int, forceRefresh bool) ([]model.Channel, error) {
	if maxChannels <= 0 {
		maxChannels = maxPageSize
	}
	if !forceRefresh {
		var cached []model.Channel
		if s.store.Load(subscriptionsDoc, s.subsTTL, &cached) && len(cached) > 0 {
			s.Events.SubscriptionsLoaded.Publish(cached)
			return cached, nil
		}
	}
	if err := s.ready(ctx); err != nil {
		s.Events.Error.Publish(err.Error())
		return nil, err
	}

	var subs []model.Channel
	token := ""
	for len(subs) < maxChannels {
		pageSize := int64(min(maxPageSize, maxChannels-len(subs)))
		page, err := executeWithRetry(ctx, s.policy, func() (pageResult[model.Channel], error) {
			items, next, err := s.api.SubscriptionsPage(ctx, token, pageSize)
			return pageResult[model.Channel]{items, next}, err
		})
		if err != nil {
			s.Events.Error.Publish(err.Error())
			return nil, err
		}
		subs = append(subs, page.items...)
		token = page.next
		if token == "" {
			break
		}
	}

	if err := s.store.Save(subscriptionsDoc, subs); err != nil {
		s.log.Warn("persist subscriptions cache failed", slog.String("error", err.Error()))
	}
	s.Events.SubscriptionsLoaded.Publish(subs)
	return subs, nil
}

type pageResult[T any] struct {
	items []T
	next  string
}

// resolveUploads fills the playlist-handle cache for any of the given channel
// ids missing from it, using batched lookups, and persists the cache. Handles
// are permanent and never re-resolved.
func (s *Service) resolveUploads(ctx context.Context, channelIDs []string) error {
	var missing []string
	for _, id := range channelIDs {
		if _, ok := s.playlists[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	for start := 0; start < len(missing); start += maxBatchIDs {
		end := min(start+maxBatchIDs, len(missing))
		batch := missing[start:end]
		handles, err := executeWithRetry(ctx, s.policy, func() (map[string]string, error) {
			return s.api.UploadsPlaylists(ctx, batch)
		})
		if err != nil {
			return err
		}
		for id, handle := range handles {
			s.playlists[id] = handle
		}
	}

	if err := s.store.Save(playlistsDoc, s.playlists); err != nil {
		s.log.Warn("persist playlist cache failed", slog.String("error", err.Error()))
	}
	return nil
}

// LoadChannelVideos fetches a channel's recent videos. The uploads-handle
// enumeration path is the default; search runs only as an explicit fallback
// when enumeration yields nothing. Fresh items are merged into the channel's
// persisted superset.
func (s *Service) LoadChannelVideos(ctx context.Context, channelID string, opts FetchOptions) ([]model.Video, error) {
	opts = opts.normalized()
	if err := s.ready(ctx); err != nil {
		s.Events.Error.Publish(err.Error())
		return nil, err
	}

	videos, err := s.fetchChannelVideos(ctx, channelID, opts)
	if err != nil {
		s.Events.Error.Publish(err.Error())
		return nil, err
	}
	s.mergeChannelCache(channelID, videos)
	s.Events.VideosLoaded.Publish(ChannelVideos{ChannelID: channelID, Videos: videos})
	return videos, nil
}

func (s *Service) fetchChannelVideos(ctx context.Context, channelID string, opts FetchOptions) ([]model.Video, error) {
	cutoff := isoHoursAgo(opts.SinceHours)

	if err := s.resolveUploads(ctx, []string{channelID}); err != nil {
		return nil, err
	}
	var videos []model.Video
	if handle, ok := s.playlists[channelID]; ok {
		fetched, err := s.enumerateRecent(ctx, handle, channelID, cutoff, opts.MaxResults)
		if err != nil {
			return nil, err
		}
		videos = fetched
	}

	if len(videos) == 0 && opts.UseSearchFallback {
		s.log.Debug("enumeration empty, falling back to search",
			slog.String("channel", channelID))
		return s.searchRecent(ctx, channelID, cutoff, opts.MaxResults)
	}
	return videos, nil
}

// enumerateRecent pages through the uploads handle, newest first, stopping
// early once a page yields only items older than the cutoff or the requested
// count is reached.
func (s *Service) enumerateRecent(ctx context.Context, handle, channelID, cutoff string, maxResults int) ([]model.Video, error) {
	var videos []model.Video
	token := ""
	for len(videos) < maxResults {
		pageSize := int64(min(maxPageSize, maxResults-len(videos)))
		page, err := executeWithRetry(ctx, s.policy, func() (pageResult[model.Video], error) {
			items, next, err := s.api.PlaylistItemsPage(ctx, handle, token, pageSize)
			return pageResult[model.Video]{items, next}, err
		})
		if err != nil {
			return nil, err
		}

		pageAllOlder := true
		for _, v := range page.items {
			if v.PublishedAt <= cutoff {
				continue
			}
			pageAllOlder = false
			if v.ChannelID == "" {
				v.ChannelID = channelID
			}
			videos = append(videos, v)
			if len(videos) >= maxResults {
				break
			}
		}

		token = page.next
		if token == "" || pageAllOlder {
			break
		}
	}
	return videos, nil
}

// searchRecent is the expensive fallback strategy.
func (s *Service) searchRecent(ctx context.Context, channelID, cutoff string, maxResults int) ([]model.Video, error) {
	var videos []model.Video
	token := ""
	for len(videos) < maxResults {
		pageSize := int64(min(maxPageSize, maxResults-len(videos)))
		page, err := executeWithRetry(ctx, s.policy, func() (pageResult[model.Video], error) {
			items, next, err := s.api.SearchPage(ctx, channelID, cutoff, token, pageSize)
			return pageResult[model.Video]{items, next}, err
		})
		if err != nil {
			return nil, err
		}
		videos = append(videos, page.items...)
		token = page.next
		if token == "" {
			break
		}
	}
	if len(videos) > maxResults {
		videos = videos[:maxResults]
	}
	return videos, nil
}

// LoadMultipleChannelsVideos aggregates recent videos across channels,
// processing them sequentially. On quota exhaustion iteration stops
// immediately and the accumulated items are surfaced through the dedicated
// partial-result signal and a QuotaExceededError.
func (s *Service) LoadMultipleChannelsVideos(ctx context.Context, channelIDs []string, opts FetchOptions) ([]model.Video, error) {
	opts = opts.normalized()
	if err := s.ready(ctx); err != nil {
		s.Events.Error.Publish(err.Error())
		return nil, err
	}

	var all []model.Video
	for _, channelID := range channelIDs {
		videos, err := s.fetchChannelVideos(ctx, channelID, opts)
		if err != nil {
			if classify(err) == classQuotaExceeded {
				quotaErr := &QuotaExceededError{
					Message: "catalog API quota exceeded, partial results shown",
					Partial: all,
				}
				s.Events.QuotaExceeded.Publish(QuotaEvent{
					Message: quotaErr.Message,
					Partial: all,
				})
				return all, quotaErr
			}
			// other per-channel failures skip the channel
			s.log.Warn("channel fetch failed, skipping",
				slog.String("channel", channelID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.mergeChannelCache(channelID, videos)
		all = append(all, videos...)
	}

	s.Events.AggregateLoaded.Publish(all)
	return all, nil
}

// mergeChannelCache merges fresh items into the channel's persisted superset
// by video id, re-sorted by publish time descending. The cache is never
// wholesale replaced, which preserves items across queries with different
// lookback windows.
func (s *Service) mergeChannelCache(channelID string, fresh []model.Video) {
	if len(fresh) == 0 {
		return
	}
	doc := channelDoc(channelID)
	var existing []model.Video
	s.store.Load(doc, 0, &existing)

	merged := MergeVideos(existing, fresh)
	if err := s.store.Save(doc, merged); err != nil {
		s.log.Warn("persist channel cache failed",
			slog.String("channel", channelID),
			slog.String("error", err.Error()),
		)
	}
}

// MergeVideos unions existing and fresh by video id (fresh wins on conflict)
// and sorts the result by publish time descending.
func MergeVideos(existing, fresh []model.Video) []model.Video {
	byID := make(map[string]model.Video, len(existing)+len(fresh))
	for _, v := range existing {
		byID[v.ID] = v
	}
	for _, v := range fresh {
		byID[v.ID] = v
	}
	merged := make([]model.Video, 0, len(byID))
	for _, v := range byID {
		merged = append(merged, v)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].PublishedAt > merged[j].PublishedAt
	})
	return merged
}

// EstimateQuotaUnits gives the advisory cost of fetching the given number of
// channels with the chosen strategy.
func EstimateQuotaUnits(channelCount int, useSearch bool) int {
	per := enumerationUnitCost
	if useSearch {
		per = searchUnitCost
	}
	return channelCount * per
}

// IsQuotaExceeded reports whether err is the partial-result quota signal.
func IsQuotaExceeded(err error) bool {
	var q *QuotaExceededError
	return errors.As(err, &q)
}

func channelDoc(channelID string) string {
	return "videos_" + channelID + ".json"
}

func isoHoursAgo(hours int) string {
	return time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339)
}

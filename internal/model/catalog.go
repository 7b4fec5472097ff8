package model

// Channel is one subscribed channel of the authenticated account.
type Channel struct {
	ID    string `json:"channel_id"`
	Title string `json:"title"`
}

// Video describes one candidate catalog item. PublishedAt keeps the API's
// ISO 8601 form so lexical comparison matches chronological order.
type Video struct {
	ID          string `json:"video_id"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
	ChannelID   string `json:"channel_id"`
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

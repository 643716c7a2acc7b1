package model

import "time"

// PlaybackSnapshot is the last observed state of the remote player.
// A nil snapshot means nothing is playing.
type PlaybackSnapshot struct {
	TrackID    string    `json:"trackId"`
	Title      string    `json:"title,omitempty"`
	Artist     string    `json:"artist,omitempty"`
	Album      string    `json:"album,omitempty"`
	Image      string    `json:"image,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	IsPlaying  bool      `json:"is_playing"`
	ProgressMs int64     `json:"progress_ms"`
	ObservedAt time.Time `json:"observedAt"`
}

// Device 表示一个可用的播放输出设备
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	IsActive bool   `json:"is_active"`
}

package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"PartyQ/model"
)

// trackItem 远端API的歌曲对象
type trackItem struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Album      struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (t *trackItem) artistNames() string {
	names := ""
	for i, a := range t.Artists {
		if i > 0 {
			names += ", "
		}
		names += a.Name
	}
	return names
}

func (t *trackItem) image() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

func (t *trackItem) toTrack(source string) model.Track {
	return model.Track{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Name,
		Artist:     t.artistNames(),
		Album:      t.Album.Name,
		Image:      t.image(),
		DurationMs: t.DurationMs,
		Source:     source,
	}
}

// CurrentlyPlaying reads the remote playback state. A nil snapshot with
// nil error means nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*model.PlaybackSnapshot, error) {
	data, err := c.do(ctx, http.MethodGet, "/me/player/currently-playing", nil, nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var payload struct {
		IsPlaying  bool       `json:"is_playing"`
		ProgressMs int64      `json:"progress_ms"`
		Item       *trackItem `json:"item"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析播放状态失败: %w", err)
	}
	if payload.Item == nil {
		return nil, nil
	}

	return &model.PlaybackSnapshot{
		TrackID:    payload.Item.ID,
		Title:      payload.Item.Name,
		Artist:     payload.Item.artistNames(),
		Album:      payload.Item.Album.Name,
		Image:      payload.Item.image(),
		DurationMs: payload.Item.DurationMs,
		IsPlaying:  payload.IsPlaying,
		ProgressMs: payload.ProgressMs,
		ObservedAt: time.Now(),
	}, nil
}

// Play starts the given uri, optionally targeting a device.
func (c *Client) Play(ctx context.Context, uri, deviceID string) error {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	body := map[string]interface{}{"uris": []string{uri}}
	_, err := c.do(ctx, http.MethodPut, "/me/player/play", q, body)
	return err
}

// Pause 暂停播放
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPut, "/me/player/pause", nil, nil)
	return err
}

// Resume continues the current track where it stopped.
func (c *Client) Resume(ctx context.Context, deviceID string) error {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	_, err := c.do(ctx, http.MethodPut, "/me/player/play", q, nil)
	return err
}

// Seek 跳转到指定进度
func (c *Client) Seek(ctx context.Context, positionMs int64) error {
	q := url.Values{}
	q.Set("position_ms", strconv.FormatInt(positionMs, 10))
	_, err := c.do(ctx, http.MethodPut, "/me/player/seek", q, nil)
	return err
}

// Transfer moves playback to another device.
func (c *Client) Transfer(ctx context.Context, deviceID string, play bool) error {
	body := map[string]interface{}{
		"device_ids": []string{deviceID},
		"play":       play,
	}
	_, err := c.do(ctx, http.MethodPut, "/me/player", nil, body)
	return err
}

// Devices lists the host account's available output devices.
func (c *Client) Devices(ctx context.Context) ([]model.Device, error) {
	data, err := c.do(ctx, http.MethodGet, "/me/player/devices", nil, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Devices []model.Device `json:"devices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析设备列表失败: %w", err)
	}
	return payload.Devices, nil
}

// RecentlyPlayed returns the host account's recent listening history.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]model.Track, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/me/player/recently-played", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			Track trackItem `json:"track"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析播放历史失败: %w", err)
	}

	tracks := make([]model.Track, 0, len(payload.Items))
	for _, item := range payload.Items {
		tracks = append(tracks, item.Track.toTrack(model.TrackSourcePlaylist))
	}
	return tracks, nil
}

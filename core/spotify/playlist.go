package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"PartyQ/model"
)

// playlistItem 远端API的歌单对象
type playlistItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
	Owner struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

func (p *playlistItem) toMeta() model.PlaylistMeta {
	count := p.Tracks.Total
	meta := model.PlaylistMeta{
		ID:          p.ID,
		Name:        p.Name,
		Owner:       p.Owner.DisplayName,
		TrackCount:  &count,
		Description: p.Description,
	}
	if len(p.Images) > 0 {
		meta.Image = p.Images[0].URL
	}
	return meta
}

// Playlists lists the host account's playlists.
func (c *Client) Playlists(ctx context.Context, limit int) ([]model.PlaylistMeta, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/me/playlists", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []playlistItem `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析歌单列表失败: %w", err)
	}

	metas := make([]model.PlaylistMeta, 0, len(payload.Items))
	for i := range payload.Items {
		metas = append(metas, payload.Items[i].toMeta())
	}
	return metas, nil
}

// PlaylistMeta fetches one playlist's metadata.
func (c *Client) PlaylistMeta(ctx context.Context, playlistID string) (model.PlaylistMeta, error) {
	data, err := c.do(ctx, http.MethodGet, "/playlists/"+playlistID, nil, nil)
	if err != nil {
		return model.PlaylistMeta{}, err
	}

	var item playlistItem
	if err := json.Unmarshal(data, &item); err != nil {
		return model.PlaylistMeta{}, fmt.Errorf("解析歌单失败: %w", err)
	}
	return item.toMeta(), nil
}

// PlaylistTracks fetches the playable tracks of a playlist, following
// pagination until the end.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]model.Track, error) {
	var tracks []model.Track
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", "100")
		q.Set("offset", strconv.Itoa(offset))
		data, err := c.do(ctx, http.MethodGet, "/playlists/"+playlistID+"/tracks", q, nil)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Items []struct {
				Track *trackItem `json:"track"`
			} `json:"items"`
			Total int `json:"total"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("解析歌单曲目失败: %w", err)
		}

		for _, item := range payload.Items {
			// 本地文件等不可播放条目没有track对象
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, item.Track.toTrack(model.TrackSourcePlaylist))
		}

		offset += len(payload.Items)
		if len(payload.Items) == 0 || offset >= payload.Total {
			break
		}
	}
	return tracks, nil
}

// SearchTracks 按关键词搜索歌曲
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]model.Track, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tracks struct {
			Items []trackItem `json:"items"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析搜索结果失败: %w", err)
	}

	tracks := make([]model.Track, 0, len(payload.Tracks.Items))
	for i := range payload.Tracks.Items {
		tracks = append(tracks, payload.Tracks.Items[i].toTrack(model.TrackSourceUser))
	}
	return tracks, nil
}

// SearchPlaylists 按关键词搜索歌单
func (c *Client) SearchPlaylists(ctx context.Context, query string, limit int) ([]model.PlaylistMeta, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "playlist")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Playlists struct {
			Items []playlistItem `json:"items"`
		} `json:"playlists"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("解析搜索结果失败: %w", err)
	}

	metas := make([]model.PlaylistMeta, 0, len(payload.Playlists.Items))
	for i := range payload.Playlists.Items {
		metas = append(metas, payload.Playlists.Items[i].toMeta())
	}
	return metas, nil
}

package server

import (
	"net/http"
	"strconv"

	"PartyQ/core/auth"
	"PartyQ/core/queue"
	"PartyQ/model"
)

// QueueStateHandler GET /api/queue/playlist 返回队列投影
func (h *APIHandler) QueueStateHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// AddTrackHandler POST /api/queue/playlist/add
// Adding requires a display name: anonymous queue entries cannot be voted
// on or attributed, so the gateway rejects them before the store sees
// anything.
func (h *APIHandler) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	s := h.requirePermission(w, r, auth.ActionQueueAdd)
	if s == nil {
		return
	}
	if s.Name == "" {
		writeError(w, http.StatusBadRequest, "set a display name before adding tracks")
		return
	}

	var req struct {
		Track    model.Track `json:"track"`
		Position *int        `json:"position"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Track.ID == "" || req.Track.URI == "" {
		writeError(w, http.StatusBadRequest, "track id and uri are required")
		return
	}

	req.Track.Source = model.TrackSourceUser
	req.Track.AddedBy = &model.SessionRef{
		SessionID: s.SessionID,
		Name:      s.Name,
		Role:      s.Role.String(),
	}

	pos := h.store.Add(req.Track, req.Position)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]interface{}{"position": pos})
}

// RemoveTrackHandler POST /api/queue/playlist/remove
// Anyone may undo their own contribution; removing someone else's track
// takes the higher threshold.
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)

	var req struct {
		Index int `json:"index"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	qs := h.store.Snapshot()
	if req.Index < 0 || req.Index >= len(qs.Tracks) {
		writeQueueError(w, queue.ErrIndexOutOfRange)
		return
	}

	target := qs.Tracks[req.Index]
	own := target.AddedBy != nil && target.AddedBy.SessionID == s.SessionID
	if own {
		if !auth.HasPermission(auth.ActionQueueRemoveOwn, s.Role) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
	} else if !auth.HasPermission(auth.ActionQueueRemoveAny, s.Role) {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	// 传入目标id，队列若在鉴权期间被并发改动则删除失败而非删错歌
	removed, err := h.store.RemoveAt(req.Index, target.ID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// ReorderHandler POST /api/queue/playlist/reorder
func (h *APIHandler) ReorderHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueueReorder) == nil {
		return
	}

	var req struct {
		FromIndex int `json:"fromIndex"`
		ToIndex   int `json:"toIndex"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.store.Reorder(req.FromIndex, req.ToIndex); err != nil {
		writeQueueError(w, err)
		return
	}
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ClearHandler POST /api/queue/playlist/clear
func (h *APIHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueueClear) == nil {
		return
	}
	h.store.Clear()
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// VoteHandler POST /api/queue/vote
func (h *APIHandler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	s := h.requirePermission(w, r, auth.ActionQueueVote)
	if s == nil {
		return
	}

	var req struct {
		TrackID   string `json:"trackId"`
		Direction string `json:"direction"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	voter := model.VoteRef{SessionID: s.SessionID, Name: s.Name}
	result, err := h.store.CastVote(req.TrackID, req.Direction, voter, s.Role == model.RoleAdmin)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	h.cache.Notify()
	writeJSON(w, http.StatusOK, result)
}

// AutoPlayHandler POST /api/queue/autoplay
func (h *APIHandler) AutoPlayHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueueAutoplay) == nil {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.store.SetAutoPlay(req.Enabled)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"autoPlayEnabled": req.Enabled})
}

// VoteSortHandler POST /api/queue/votesort
func (h *APIHandler) VoteSortHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueueVoteSort) == nil {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.store.SetVoteSort(req.Enabled)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"voteSortEnabled": req.Enabled})
}

// SelectPlaylistHandler POST /api/queue/playlist/select
func (h *APIHandler) SelectPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueuePlaylistSelect) == nil {
		return
	}
	var req struct {
		PlaylistID string `json:"playlistId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlistId is required")
		return
	}

	meta, err := h.spotify.PlaylistMeta(r.Context(), req.PlaylistID)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	h.store.SelectPlaylist(meta)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, meta)
}

// LoadPlaylistHandler POST /api/queue/playlist/load
// Replaces the upcoming queue with the playlist's tracks; the track that
// is live on the device survives at the front.
func (h *APIHandler) LoadPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionQueuePlaylistLoad) == nil {
		return
	}
	var req struct {
		PlaylistID string `json:"playlistId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlistId is required")
		return
	}

	meta, err := h.spotify.PlaylistMeta(r.Context(), req.PlaylistID)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	tracks, err := h.spotify.PlaylistTracks(r.Context(), req.PlaylistID)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	h.store.LoadTracks(meta, tracks)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playlist": meta,
		"loaded":   len(tracks),
	})
}

// HistoryHandler GET /api/history serves the ledger when a database is
// configured, the remote account history otherwise.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	if h.history != nil {
		entries, err := h.history.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries})
		return
	}

	tracks, err := h.spotify.RecentlyPlayed(r.Context(), limit)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": tracks})
}

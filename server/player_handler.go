package server

import (
	"net/http"

	"PartyQ/core/auth"
	"PartyQ/core/queue"
	"PartyQ/logger"
	"PartyQ/model"
)

// TrackPlayHandler POST /api/track-play starts an arbitrary track right
// now. The track joins the queue front if it was not queued yet, then
// gets pinned as the playing track.
func (h *APIHandler) TrackPlayHandler(w http.ResponseWriter, r *http.Request) {
	s := h.requirePermission(w, r, auth.ActionTrackPlay)
	if s == nil {
		return
	}

	var req struct {
		Track model.Track `json:"track"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Track.ID == "" || req.Track.URI == "" {
		writeError(w, http.StatusBadRequest, "track id and uri are required")
		return
	}

	if err := h.spotify.Play(r.Context(), req.Track.URI, h.devices.PreferredDeviceID()); err != nil {
		h.store.RecordError(err.Error(), 0)
		h.cache.Notify()
		writeAdapterError(w, err)
		return
	}

	if err := h.store.MarkPlaying(req.Track.ID); err == queue.ErrTrackNotFound {
		front := 0
		req.Track.AddedBy = &model.SessionRef{
			SessionID: s.SessionID,
			Name:      s.Name,
			Role:      s.Role.String(),
		}
		h.store.Add(req.Track, &front)
		if err := h.store.MarkPlaying(req.Track.ID); err != nil {
			logger.Warn("标记播放中失败", logger.String("trackId", req.Track.ID), logger.ErrorField(err))
		}
	}

	h.cache.ResetProgress()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PauseHandler POST /api/player/pause
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionPlaybackPause) == nil {
		return
	}
	if err := h.spotify.Pause(r.Context()); err != nil {
		writeAdapterError(w, err)
		return
	}
	// 不等下一次轮询，先本地翻转
	h.cache.UpdatePlaying(false)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ResumeHandler POST /api/player/resume
func (h *APIHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionPlaybackResume) == nil {
		return
	}
	if err := h.spotify.Resume(r.Context(), h.devices.PreferredDeviceID()); err != nil {
		writeAdapterError(w, err)
		return
	}
	h.cache.UpdatePlaying(true)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SeekHandler POST /api/player/seek
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionPlaybackSeek) == nil {
		return
	}
	var req struct {
		PositionMs int64 `json:"positionMs"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PositionMs < 0 {
		writeError(w, http.StatusBadRequest, "positionMs must be non-negative")
		return
	}
	if err := h.spotify.Seek(r.Context(), req.PositionMs); err != nil {
		writeAdapterError(w, err)
		return
	}
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// TransferHandler POST /api/player/transfer moves playback to another
// output device and remembers it as the party's device.
func (h *APIHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionDeviceTransfer) == nil {
		return
	}
	var req struct {
		DeviceID string `json:"deviceId"`
		Play     bool   `json:"play"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	if err := h.spotify.Transfer(r.Context(), req.DeviceID, req.Play); err != nil {
		writeAdapterError(w, err)
		return
	}

	name := ""
	for _, d := range h.devices.Payload().Devices {
		if d.ID == req.DeviceID {
			name = d.Name
			break
		}
	}
	h.store.SetActiveDevice(req.DeviceID, name)
	h.devices.Refresh(r.Context(), name)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DevicesHandler GET /api/player/devices
func (h *APIHandler) DevicesHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	writeJSON(w, http.StatusOK, h.devices.Payload())
}

// DevicesRefreshHandler POST /api/player/devices/refresh
func (h *APIHandler) DevicesRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionDeviceRefresh) == nil {
		return
	}
	qs := h.store.Snapshot()
	h.devices.Refresh(r.Context(), qs.ActiveDeviceName)
	writeJSON(w, http.StatusOK, h.devices.Payload())
}

// SearchTracksHandler GET /api/track-search?q=
func (h *APIHandler) SearchTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	tracks, err := h.spotify.SearchTracks(r.Context(), query, 20)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// PlaylistsHandler GET /api/playlists
func (h *APIHandler) PlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionPlaylistView) == nil {
		return
	}
	playlists, err := h.spotify.Playlists(r.Context(), 50)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
}

// PlaylistSearchHandler GET /api/playlists/search?q=
func (h *APIHandler) PlaylistSearchHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionPlaylistView) == nil {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	playlists, err := h.spotify.SearchPlaylists(r.Context(), query, 20)
	if err != nil {
		writeAdapterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
}

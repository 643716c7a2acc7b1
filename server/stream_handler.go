package server

import (
	"net/http"
	"strconv"
	"time"

	"PartyQ/core/playback"
)

// parseSince reads the long-poll cursor (unix milliseconds) from the
// query string. Zero means "deliver the current state immediately".
func parseSince(r *http.Request) time.Time {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

type streamResponse struct {
	playback.Payload
	Cursor int64 `json:"cursor"`
}

// PlaybackStateHandler GET /api/queue 返回当前播放状态载荷
func (h *APIHandler) PlaybackStateHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	p := h.cache.Payload()
	writeJSON(w, http.StatusOK, streamResponse{Payload: p, Cursor: p.UpdatedAt.UnixMilli()})
}

// QueueStreamHandler GET /api/queue/stream?since=<cursor>
// Long-poll: answers immediately when anything changed past the cursor,
// otherwise parks until the next change or the deadline. Always 200 with
// a payload; a closed connection just drops the waiter.
func (h *APIHandler) QueueStreamHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)

	p, err := h.cache.Subscribe(r.Context(), parseSince(r))
	if err != nil {
		// 连接已断开，无人收响应
		return
	}
	writeJSON(w, http.StatusOK, streamResponse{Payload: p, Cursor: p.UpdatedAt.UnixMilli()})
}

type deviceStreamResponse struct {
	playback.DevicePayload
	Cursor int64 `json:"cursor"`
}

// DevicesStreamHandler GET /api/player/devices/stream?since=<cursor>
func (h *APIHandler) DevicesStreamHandler(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)

	p, err := h.devices.Subscribe(r.Context(), parseSince(r))
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, deviceStreamResponse{DevicePayload: p, Cursor: p.UpdatedAt.UnixMilli()})
}

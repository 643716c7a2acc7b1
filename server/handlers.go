package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"PartyQ/config"
	"PartyQ/core/auth"
	"PartyQ/core/playback"
	"PartyQ/core/queue"
	"PartyQ/core/session"
	"PartyQ/core/spotify"
	"PartyQ/logger"
	"PartyQ/model"
	"PartyQ/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg      *config.Config
	registry *session.Registry
	cookies  *auth.CookieCodec
	verifier *auth.Verifier
	store    *queue.Store
	cache    *playback.Cache
	devices  *playback.DeviceCache
	spotify  *spotify.Client
	history  repository.HistoryRepository // nil 时 /api/history 走远端

	mu         sync.Mutex
	oauthState string
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	registry *session.Registry,
	cookies *auth.CookieCodec,
	verifier *auth.Verifier,
	store *queue.Store,
	cache *playback.Cache,
	devices *playback.DeviceCache,
	client *spotify.Client,
	history repository.HistoryRepository,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		registry: registry,
		cookies:  cookies,
		verifier: verifier,
		store:    store,
		cache:    cache,
		devices:  devices,
		spotify:  client,
		history:  history,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON 解析请求体，失败时返回400
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// session resolves the caller's session from the signed cookie, creating
// a fresh guest session (and setting the cookie) on first contact.
func (h *APIHandler) session(w http.ResponseWriter, r *http.Request) *model.Session {
	sessionID := h.cookies.SessionIDFromRequest(r)
	s := h.registry.GetOrCreate(r.Context(), sessionID)
	if s.SessionID != sessionID {
		if err := h.cookies.SetSessionCookie(w, s.SessionID); err != nil {
			logger.Warn("设置会话Cookie失败", logger.ErrorField(err))
		}
	}
	return s
}

// requirePermission resolves the session and enforces the action's role
// threshold. Writes a 403 and returns nil when the caller is below it.
func (h *APIHandler) requirePermission(w http.ResponseWriter, r *http.Request, action auth.Action) *model.Session {
	s := h.session(w, r)
	if !auth.HasPermission(action, s.Role) {
		writeError(w, http.StatusForbidden, "permission denied")
		return nil
	}
	return s
}

// writeQueueError maps store errors onto HTTP statuses.
func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrInvalidDirection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrTrackMoved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeAdapterError surfaces a failed remote playback call. The status
// from the remote service is preserved when it is a client-style error.
func writeAdapterError(w http.ResponseWriter, err error) {
	if errors.Is(err, spotify.ErrNotConnected) {
		writeError(w, http.StatusServiceUnavailable, "host account not connected")
		return
	}
	var apiErr *spotify.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

package server

import (
	"net/http"

	"PartyQ/core/auth"
	"PartyQ/logger"
	"PartyQ/model"

	"github.com/google/uuid"
)

type sessionResponse struct {
	SessionID   string   `json:"sessionId"`
	Role        string   `json:"role"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		SessionID:   s.SessionID,
		Role:        s.Role.String(),
		Name:        s.Name,
		Permissions: auth.PermissionsForRole(s.Role),
	}
}

// AuthStatusHandler 返回当前会话与主持人授权状态
func (h *APIHandler) AuthStatusHandler(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":       toSessionResponse(s),
		"hostConnected": h.spotify.Connected(),
		"adminEnabled":  h.verifier.AdminEnabled(),
		"djEnabled":     h.verifier.DJEnabled(),
	})
}

// AdminLoginHandler 管理员口令登录
func (h *APIHandler) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	h.roleLogin(w, r, model.RoleAdmin)
}

// DJLoginHandler DJ口令登录
func (h *APIHandler) DJLoginHandler(w http.ResponseWriter, r *http.Request) {
	h.roleLogin(w, r, model.RoleDJ)
}

func (h *APIHandler) roleLogin(w http.ResponseWriter, r *http.Request, role model.Role) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ok := false
	switch role {
	case model.RoleAdmin:
		ok = h.verifier.VerifyAdmin(req.Password)
	case model.RoleDJ:
		ok = h.verifier.VerifyDJ(req.Password)
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid passphrase")
		return
	}

	s := h.session(w, r)
	s = h.registry.Escalate(r.Context(), s.SessionID, role)
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// GuestNameHandler 设置会话显示名
func (h *APIHandler) GuestNameHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s := h.session(w, r)
	s = h.registry.SetName(r.Context(), s.SessionID, req.Name)
	// 已投过的票和加过的歌跟着改名
	h.store.RenameVoter(s.SessionID, req.Name)
	h.cache.Notify()
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// LogoutHandler demotes the session back to guest. The identity stays so
// existing queue attributions keep resolving.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	s = h.registry.Logout(r.Context(), s.SessionID)
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// HostConnectHandler starts the host account authorization flow.
func (h *APIHandler) HostConnectHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionSessionConnect) == nil {
		return
	}

	state := uuid.New().String()
	h.mu.Lock()
	h.oauthState = state
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.spotify.AuthorizeURL(state),
	})
}

// CallbackHandler completes the host authorization code exchange.
func (h *APIHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	h.mu.Lock()
	expected := h.oauthState
	h.oauthState = ""
	h.mu.Unlock()

	if code == "" || state == "" || state != expected {
		writeError(w, http.StatusBadRequest, "invalid authorization callback")
		return
	}

	if err := h.spotify.Exchange(r.Context(), code); err != nil {
		logger.Error("授权码交换失败", logger.ErrorField(err))
		writeAdapterError(w, err)
		return
	}

	logger.Info("主持人账号授权完成")
	http.Redirect(w, r, "/", http.StatusFound)
}

// HostLogoutHandler 断开主持人账号
func (h *APIHandler) HostLogoutHandler(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, auth.ActionSessionLogout) == nil {
		return
	}
	h.spotify.Disconnect()
	writeJSON(w, http.StatusOK, map[string]bool{"connected": false})
}

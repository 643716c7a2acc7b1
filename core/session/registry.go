package session

import (
	"context"
	"sync"
	"time"

	"PartyQ/cache"
	"PartyQ/logger"
	"PartyQ/model"

	"github.com/google/uuid"
)

// Registry tracks every session the server has seen. Sessions are created
// lazily on first contact and never expire in memory; a logout demotes the
// session to guest but keeps the identity so past votes stay attributed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	mirror   *cache.SessionCache
}

// NewRegistry 创建会话注册表
func NewRegistry(mirror *cache.SessionCache) *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
		mirror:   mirror,
	}
}

// GetOrCreate resolves the session for an incoming request. An empty or
// unknown id yields a fresh guest session with a new id.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID string) *model.Session {
	if sessionID != "" {
		r.mu.RLock()
		if s, ok := r.sessions[sessionID]; ok {
			r.mu.RUnlock()
			return cloneSession(s)
		}
		r.mu.RUnlock()

		// 内存未命中时尝试从Redis镜像恢复
		if restored := r.mirror.Get(ctx, sessionID); restored != nil {
			r.mu.Lock()
			if s, ok := r.sessions[sessionID]; ok {
				r.mu.Unlock()
				return cloneSession(s)
			}
			r.sessions[sessionID] = restored
			r.mu.Unlock()
			logger.Debug("从缓存恢复会话", logger.String("sessionId", sessionID))
			return cloneSession(restored)
		}
	}

	s := &model.Session{
		SessionID: uuid.New().String(),
		Role:      model.RoleGuest,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[s.SessionID] = s
	r.mu.Unlock()
	r.mirror.Put(ctx, s)
	logger.Debug("创建新会话", logger.String("sessionId", s.SessionID))
	return cloneSession(s)
}

// Lookup returns the session if it exists, nil otherwise.
func (r *Registry) Lookup(sessionID string) *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sessionID]; ok {
		return cloneSession(s)
	}
	return nil
}

// Escalate raises (or lowers, on logout) the role of a session.
func (r *Registry) Escalate(ctx context.Context, sessionID string, role model.Role) *model.Session {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	s.Role = role
	out := cloneSession(s)
	r.mu.Unlock()
	r.mirror.Put(ctx, out)
	logger.Info("会话角色变更",
		logger.String("sessionId", sessionID),
		logger.String("role", role.String()))
	return out
}

// SetName records the display name attached to a session.
func (r *Registry) SetName(ctx context.Context, sessionID, name string) *model.Session {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	s.Name = name
	out := cloneSession(s)
	r.mu.Unlock()
	r.mirror.Put(ctx, out)
	return out
}

// Logout demotes a session back to guest. The identity survives so the
// queue can keep attributing tracks and votes to it.
func (r *Registry) Logout(ctx context.Context, sessionID string) *model.Session {
	return r.Escalate(ctx, sessionID, model.RoleGuest)
}

func cloneSession(s *model.Session) *model.Session {
	cp := *s
	return &cp
}

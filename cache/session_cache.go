package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PartyQ/logger"
	"PartyQ/model"

	"github.com/redis/go-redis/v9"
)

const (
	// sessionKeyFmt 会话缓存键模板
	sessionKeyFmt = "partyq:session:%s"
	// sessionTTL 会话缓存过期时间
	sessionTTL = 30 * 24 * time.Hour
)

// SessionCache mirrors sessions into Redis so identities survive a process
// restart. All operations are best-effort: a nil client disables the mirror.
type SessionCache struct {
	rdb *redis.Client
}

// NewSessionCache 创建会话缓存，rdb为nil时所有操作为空操作
func NewSessionCache(rdb *redis.Client) *SessionCache {
	return &SessionCache{rdb: rdb}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf(sessionKeyFmt, sessionID)
}

// Put stores a session snapshot. Failures are logged and swallowed.
func (c *SessionCache) Put(ctx context.Context, session *model.Session) {
	if c.rdb == nil || session == nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		logger.Warn("序列化会话失败", logger.ErrorField(err))
		return
	}
	if err := c.rdb.Set(ctx, sessionKey(session.SessionID), data, sessionTTL).Err(); err != nil {
		logger.Warn("写入会话缓存失败",
			logger.String("sessionId", session.SessionID),
			logger.ErrorField(err))
	}
}

// Get loads a mirrored session, returning nil when absent or on error.
func (c *SessionCache) Get(ctx context.Context, sessionID string) *model.Session {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取会话缓存失败",
				logger.String("sessionId", sessionID),
				logger.ErrorField(err))
		}
		return nil
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		logger.Warn("解析会话缓存失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		return nil
	}
	return &session
}

// Delete removes a mirrored session.
func (c *SessionCache) Delete(ctx context.Context, sessionID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		logger.Warn("删除会话缓存失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
	}
}

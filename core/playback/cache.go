package playback

import (
	"context"
	"sync"
	"time"

	"PartyQ/core/queue"
	"PartyQ/logger"
	"PartyQ/model"
)

const (
	// waiterDeadline 长轮询最长挂起时间，超时后无论有无变化都应答
	waiterDeadline = 25 * time.Second
	// staleAfter 快照超过该时长未刷新即标记为过期
	staleAfter = 15 * time.Second
)

// Reader is the slice of the playback adapter the cache needs.
type Reader interface {
	CurrentlyPlaying(ctx context.Context) (*model.PlaybackSnapshot, error)
}

// Payload is what long-poll clients receive. UpdatedAt is the cursor to
// pass back as since on the next poll.
type Payload struct {
	Playback        *model.PlaybackSnapshot `json:"playback"`
	Stale           bool                    `json:"stale"`
	LastError       string                  `json:"lastError,omitempty"`
	AutoPlayEnabled bool                    `json:"autoPlayEnabled"`
	QueueCount      int                     `json:"queueCount"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// Cache holds the last-known remote playback state and fans changes out
// to long-poll waiters. Queue mutations bump the cursor through Notify so
// observers see votes and adds without waiting for the next refresh.
type Cache struct {
	mu        sync.Mutex
	reader    Reader
	queue     *queue.Store
	snapshot  *model.PlaybackSnapshot
	lastError string
	updatedAt time.Time
	deadline  time.Duration
	waiters   fanout[Payload]
}

// NewCache 创建播放状态缓存
func NewCache(reader Reader, store *queue.Store) *Cache {
	return &Cache{reader: reader, queue: store, deadline: waiterDeadline}
}

// touchLocked keeps the cursor strictly increasing.
func (c *Cache) touchLocked() {
	now := time.Now()
	if !now.After(c.updatedAt) {
		now = c.updatedAt.Add(time.Millisecond)
	}
	c.updatedAt = now
}

func (c *Cache) payloadLocked() Payload {
	qs := c.queue.Snapshot()
	p := Payload{
		Stale:           c.snapshot != nil && time.Since(c.snapshot.ObservedAt) > staleAfter,
		LastError:       c.lastError,
		AutoPlayEnabled: qs.AutoPlayEnabled,
		QueueCount:      len(qs.Tracks),
		UpdatedAt:       c.updatedAt,
	}
	if c.snapshot != nil {
		snap := *c.snapshot
		p.Playback = &snap
	}
	return p
}

// Payload returns the current long-poll payload.
func (c *Cache) Payload() Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadLocked()
}

// Snapshot returns the last-known playback state, nil when none observed.
func (c *Cache) Snapshot() *model.PlaybackSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	snap := *c.snapshot
	return &snap
}

// Refresh reads the adapter. Success replaces the snapshot and wakes the
// waiters; failure keeps the previous snapshot as last-known state and
// records the error only, stale data beats no data.
func (c *Cache) Refresh(ctx context.Context) {
	snap, err := c.reader.CurrentlyPlaying(ctx)

	c.mu.Lock()
	if err != nil {
		c.lastError = err.Error()
		c.mu.Unlock()
		logger.Warn("刷新播放状态失败", logger.ErrorField(err))
		return
	}
	c.snapshot = snap
	c.lastError = ""
	c.touchLocked()
	p := c.payloadLocked()
	c.mu.Unlock()

	c.waiters.broadcast(p)
}

// UpdatePlaying optimistically flips the playing bit after a local pause
// or resume command, without waiting for the next poll. Pausing freezes
// the progress clock at its projected position; resuming restarts it.
func (c *Cache) UpdatePlaying(isPlaying bool) {
	c.mu.Lock()
	if c.snapshot != nil {
		now := time.Now()
		if c.snapshot.IsPlaying && !isPlaying {
			elapsed := now.Sub(c.snapshot.ObservedAt).Milliseconds()
			c.snapshot.ProgressMs += elapsed
			if c.snapshot.DurationMs > 0 && c.snapshot.ProgressMs > c.snapshot.DurationMs {
				c.snapshot.ProgressMs = c.snapshot.DurationMs
			}
		}
		c.snapshot.IsPlaying = isPlaying
		c.snapshot.ObservedAt = now
	}
	c.touchLocked()
	p := c.payloadLocked()
	c.mu.Unlock()

	c.waiters.broadcast(p)
}

// ResetProgress restarts the progress clock after a direct play command.
func (c *Cache) ResetProgress() {
	c.mu.Lock()
	if c.snapshot != nil {
		c.snapshot.ProgressMs = 0
		c.snapshot.IsPlaying = true
		c.snapshot.ObservedAt = time.Now()
	}
	c.touchLocked()
	p := c.payloadLocked()
	c.mu.Unlock()

	c.waiters.broadcast(p)
}

// Notify bumps the cursor and delivers the current payload to every
// parked waiter. Called after queue mutations so observers converge
// faster than their poll interval.
func (c *Cache) Notify() {
	c.mu.Lock()
	c.touchLocked()
	p := c.payloadLocked()
	c.mu.Unlock()

	c.waiters.broadcast(p)
}

// Subscribe implements the long-poll contract: immediate delivery when
// the cursor moved past since, otherwise the caller parks until the next
// notification or the deadline, whichever comes first. The deadline path
// answers with the then-current payload so clients never see an error.
// A cancelled ctx (connection closed) returns ctx.Err with no delivery.
func (c *Cache) Subscribe(ctx context.Context, since time.Time) (Payload, error) {
	// 检查与注册在同一把锁内。通知方要么在检查前推过游标，要么在
	// 注册后才广播，不存在漏投的窗口。
	c.mu.Lock()
	if c.updatedAt.After(since) {
		p := c.payloadLocked()
		c.mu.Unlock()
		return p, nil
	}
	ch := c.waiters.add()
	c.mu.Unlock()

	timer := time.NewTimer(c.deadline)
	defer timer.Stop()

	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		c.waiters.remove(ch)
		return c.Payload(), nil
	case <-ctx.Done():
		c.waiters.remove(ch)
		return Payload{}, ctx.Err()
	}
}

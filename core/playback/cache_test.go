package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PartyQ/core/queue"
	"PartyQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader 可配置的播放状态读取桩
type fakeReader struct {
	mu   sync.Mutex
	snap *model.PlaybackSnapshot
	err  error
}

func (f *fakeReader) set(snap *model.PlaybackSnapshot, err error) {
	f.mu.Lock()
	f.snap = snap
	f.err = err
	f.mu.Unlock()
}

func (f *fakeReader) CurrentlyPlaying(ctx context.Context) (*model.PlaybackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.snap == nil {
		return nil, nil
	}
	snap := *f.snap
	return &snap, nil
}

func playingSnap(trackID string) *model.PlaybackSnapshot {
	return &model.PlaybackSnapshot{
		TrackID:    trackID,
		DurationMs: 200000,
		IsPlaying:  true,
		ProgressMs: 1000,
		ObservedAt: time.Now(),
	}
}

func newTestCache(t *testing.T) (*Cache, *fakeReader, *queue.Store) {
	t.Helper()
	reader := &fakeReader{}
	store := queue.NewStore("")
	return NewCache(reader, store), reader, store
}

func TestRefreshStoresSnapshotAndClearsError(t *testing.T) {
	c, reader, _ := newTestCache(t)

	reader.set(playingSnap("t1"), nil)
	c.Refresh(context.Background())

	p := c.Payload()
	require.NotNil(t, p.Playback)
	assert.Equal(t, "t1", p.Playback.TrackID)
	assert.Empty(t, p.LastError)
}

func TestRefreshFailureKeepsLastKnownSnapshot(t *testing.T) {
	c, reader, _ := newTestCache(t)

	reader.set(playingSnap("t1"), nil)
	c.Refresh(context.Background())
	before := c.Payload()

	reader.set(nil, errors.New("rate limited"))
	c.Refresh(context.Background())

	p := c.Payload()
	require.NotNil(t, p.Playback)
	assert.Equal(t, "t1", p.Playback.TrackID)
	assert.Equal(t, "rate limited", p.LastError)
	// 失败不推进游标
	assert.Equal(t, before.UpdatedAt, p.UpdatedAt)
}

func TestPayloadCarriesQueueFlags(t *testing.T) {
	c, _, store := newTestCache(t)
	store.Add(model.Track{ID: "a", URI: "u:a"}, nil)
	store.Add(model.Track{ID: "b", URI: "u:b"}, nil)
	store.SetAutoPlay(false)

	p := c.Payload()
	assert.Equal(t, 2, p.QueueCount)
	assert.False(t, p.AutoPlayEnabled)
}

func TestSubscribeDeliversImmediatelyWhenCursorIsOld(t *testing.T) {
	c, reader, _ := newTestCache(t)
	reader.set(playingSnap("t1"), nil)
	c.Refresh(context.Background())

	p, err := c.Subscribe(context.Background(), time.Time{})
	require.NoError(t, err)
	require.NotNil(t, p.Playback)
	assert.Equal(t, "t1", p.Playback.TrackID)
}

func TestSubscribeWakesOnNotify(t *testing.T) {
	c, _, _ := newTestCache(t)
	cursor := c.Payload().UpdatedAt

	done := make(chan Payload, 1)
	go func() {
		p, err := c.Subscribe(context.Background(), cursor)
		if err == nil {
			done <- p
		}
	}()

	// 等订阅方挂起后再通知
	assert.Eventually(t, func() bool {
		c.waiters.mu.Lock()
		defer c.waiters.mu.Unlock()
		return len(c.waiters.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	c.Notify()

	select {
	case p := <-done:
		assert.True(t, p.UpdatedAt.After(cursor))
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Notify")
	}
}

func TestSubscribeTimeoutDeliversCurrentPayload(t *testing.T) {
	c, reader, _ := newTestCache(t)
	c.deadline = 30 * time.Millisecond
	reader.set(playingSnap("t1"), nil)
	c.Refresh(context.Background())
	cursor := c.Payload().UpdatedAt

	start := time.Now()
	p, err := c.Subscribe(context.Background(), cursor)
	require.NoError(t, err)

	// 超时应答当前状态，游标不变，下一轮继续挂起
	assert.GreaterOrEqual(t, time.Since(start), c.deadline)
	require.NotNil(t, p.Playback)
	assert.Equal(t, "t1", p.Playback.TrackID)
	assert.Equal(t, cursor, p.UpdatedAt)

	c.waiters.mu.Lock()
	assert.Empty(t, c.waiters.waiters)
	c.waiters.mu.Unlock()
}

func TestSubscribeNeverMissesConcurrentNotify(t *testing.T) {
	c, _, _ := newTestCache(t)
	c.deadline = time.Second

	// 订阅与通知同时发出：要么立即命中新游标，要么挂起后被广播唤醒，
	// 都必须远早于截止时间返回
	for i := 0; i < 100; i++ {
		cursor := c.Payload().UpdatedAt
		done := make(chan Payload, 1)
		go func() {
			p, err := c.Subscribe(context.Background(), cursor)
			if err == nil {
				done <- p
			}
		}()
		c.Notify()

		select {
		case p := <-done:
			assert.True(t, p.UpdatedAt.After(cursor))
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("iteration %d: notify landed in the subscribe gap", i)
		}
	}
}

func TestSubscribeCancelledByConnectionClose(t *testing.T) {
	c, _, _ := newTestCache(t)
	cursor := c.Payload().UpdatedAt

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(ctx, cursor)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		c.waiters.mu.Lock()
		defer c.waiters.mu.Unlock()
		return len(c.waiters.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// 取消后不再占用等待名单
	c.waiters.mu.Lock()
	assert.Empty(t, c.waiters.waiters)
	c.waiters.mu.Unlock()
}

func TestNotifyWakesAllWaiters(t *testing.T) {
	c, _, _ := newTestCache(t)
	cursor := c.Payload().UpdatedAt

	const n = 5
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			if _, err := c.Subscribe(context.Background(), cursor); err == nil {
				done <- struct{}{}
			}
		}()
	}

	assert.Eventually(t, func() bool {
		c.waiters.mu.Lock()
		defer c.waiters.mu.Unlock()
		return len(c.waiters.waiters) == n
	}, time.Second, 5*time.Millisecond)

	c.Notify()

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was not woken", i)
		}
	}
}

func TestUpdatePlayingFreezesProgress(t *testing.T) {
	c, reader, _ := newTestCache(t)
	snap := playingSnap("t1")
	snap.ObservedAt = time.Now().Add(-2 * time.Second)
	reader.set(snap, nil)
	c.Refresh(context.Background())

	c.UpdatePlaying(false)

	got := c.Snapshot()
	require.NotNil(t, got)
	assert.False(t, got.IsPlaying)
	// 暂停时把走过的时间折进进度再冻结
	assert.GreaterOrEqual(t, got.ProgressMs, int64(3000))
	frozen := got.ProgressMs

	c.UpdatePlaying(true)
	got = c.Snapshot()
	assert.True(t, got.IsPlaying)
	assert.Equal(t, frozen, got.ProgressMs)
}

func TestResetProgress(t *testing.T) {
	c, reader, _ := newTestCache(t)
	reader.set(playingSnap("t1"), nil)
	c.Refresh(context.Background())

	c.ResetProgress()
	got := c.Snapshot()
	require.NotNil(t, got)
	assert.Zero(t, got.ProgressMs)
	assert.True(t, got.IsPlaying)
}

func TestDeviceCachePreferredResolution(t *testing.T) {
	devices := []model.Device{
		{ID: "d1", Name: "Kitchen", IsActive: false},
		{ID: "d2", Name: "Living Room", IsActive: true},
	}

	// 指定的设备名优先于远端的active标记
	assert.Equal(t, "d1", resolvePreferred(devices, "Kitchen"))
	// 名字找不到时退回active设备
	assert.Equal(t, "d2", resolvePreferred(devices, "Garage"))
	assert.Equal(t, "d2", resolvePreferred(devices, ""))
	assert.Empty(t, resolvePreferred(nil, ""))
}

type fakeLister struct {
	devices []model.Device
	err     error
}

func (f *fakeLister) Devices(ctx context.Context) ([]model.Device, error) {
	return f.devices, f.err
}

func TestDeviceCacheRefresh(t *testing.T) {
	lister := &fakeLister{devices: []model.Device{{ID: "d1", Name: "Kitchen", IsActive: true}}}
	c := NewDeviceCache(lister)

	c.Refresh(context.Background(), "")
	p := c.Payload()
	require.Len(t, p.Devices, 1)
	assert.Equal(t, "d1", p.PreferredDeviceID)
	assert.Equal(t, "d1", c.PreferredDeviceID())

	// 刷新失败保留上一次的设备列表
	lister.err = errors.New("unreachable")
	c.Refresh(context.Background(), "")
	p = c.Payload()
	assert.Len(t, p.Devices, 1)
	assert.Equal(t, "unreachable", p.LastError)
}

func TestDeviceSubscribeTimeoutDeliversCurrentPayload(t *testing.T) {
	lister := &fakeLister{devices: []model.Device{{ID: "d1", Name: "Kitchen", IsActive: true}}}
	c := NewDeviceCache(lister)
	c.deadline = 30 * time.Millisecond
	c.Refresh(context.Background(), "")
	cursor := c.Payload().UpdatedAt

	start := time.Now()
	p, err := c.Subscribe(context.Background(), cursor)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), c.deadline)
	assert.Len(t, p.Devices, 1)
	assert.Equal(t, cursor, p.UpdatedAt)
}

package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"PartyQ/core/playback"
	"PartyQ/core/queue"
	"PartyQ/core/spotify"
	"PartyQ/logger"
	"PartyQ/model"
)

const (
	// tickInterval 队列推进检查周期
	tickInterval = 4 * time.Second
	// refreshInterval 远端播放状态轮询周期
	refreshInterval = 8 * time.Second
	// debounceWindow is how long after issuing a play command the engine
	// refuses to issue another, tolerating the remote service's eventual
	// consistency.
	debounceWindow = 6 * time.Second
)

// Player is the command surface the engine drives.
type Player interface {
	Play(ctx context.Context, uri, deviceID string) error
}

// Recorder receives every consumed track for the play-history ledger.
type Recorder interface {
	RecordPlayed(ctx context.Context, track model.Track)
}

// Engine reconciles the shared queue against observed remote playback.
// It only ever advances tracks it believes it started itself; when the
// observed track differs from the local pointer a human changed tracks
// on the device and the engine stays out of the way.
type Engine struct {
	player   Player
	queue    *queue.Store
	cache    *playback.Cache
	devices  *playback.DeviceCache
	recorder Recorder

	tickBusy    atomic.Bool
	refreshBusy atomic.Bool
}

// New 创建自动推进引擎，recorder可为nil
func New(player Player, store *queue.Store, cache *playback.Cache, devices *playback.DeviceCache, recorder Recorder) *Engine {
	return &Engine{
		player:   player,
		queue:    store,
		cache:    cache,
		devices:  devices,
		recorder: recorder,
	}
}

// Run drives the refresh and reconciliation loops until ctx is
// cancelled. A firing that arrives while the previous pass is still in
// flight is skipped, never queued.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	refresher := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	defer refresher.Stop()

	e.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("自动推进引擎停止")
			return
		case <-ticker.C:
			if e.tickBusy.CompareAndSwap(false, true) {
				go func() {
					defer e.tickBusy.Store(false)
					e.tick(ctx)
				}()
			}
		case <-refresher.C:
			if e.refreshBusy.CompareAndSwap(false, true) {
				go func() {
					defer e.refreshBusy.Store(false)
					e.refresh(ctx)
				}()
			}
		}
	}
}

func (e *Engine) refresh(ctx context.Context) {
	e.cache.Refresh(ctx)
	qs := e.queue.Snapshot()
	e.devices.Refresh(ctx, qs.ActiveDeviceName)
}

// tick runs one reconciliation pass.
func (e *Engine) tick(ctx context.Context) {
	qs := e.queue.Snapshot()
	if !qs.AutoPlayEnabled || qs.ActivePlaylistID == "" || len(qs.Tracks) == 0 {
		return
	}

	current := qs.Tracks[qs.CurrentIndex]
	snap := e.cache.Snapshot()
	debounced := qs.LastAdvanceAt > 0 &&
		time.Since(time.UnixMilli(qs.LastAdvanceAt)) < debounceWindow

	switch {
	case snap == nil:
		if qs.LastSeenTrackID == "" {
			// 还没放过任何歌，从当前指针开始
			e.firstPlay(ctx, current)
			return
		}
		if qs.LastSeenTrackID == current.ID && debounced {
			// 刚下发过播放命令，远端状态还没跟上
			return
		}
		e.advance(ctx, &qs, current)

	case snap.TrackID == current.ID:
		if snap.IsPlaying {
			// 播放正常，顺手清掉残留的错误
			if e.queue.MarkHealthy(current.ID) {
				e.cache.Notify()
			}
			return
		}
		if debounced {
			return
		}
		e.advance(ctx, &qs, current)

	default:
		// 设备上放着别的歌，必然是有人手动切了，不与人争
	}
}

func (e *Engine) firstPlay(ctx context.Context, track model.Track) {
	if err := e.player.Play(ctx, track.URI, e.devices.PreferredDeviceID()); err != nil {
		e.recordFailure(err, track)
		return
	}
	if err := e.queue.MarkPlaying(track.ID); err != nil {
		// 下发命令期间歌被移出了队列，下个tick重新评估
		logger.Warn("标记播放中失败", logger.String("trackId", track.ID), logger.ErrorField(err))
	}
	e.cache.ResetProgress()
	logger.Info("开始播放",
		logger.String("trackId", track.ID),
		logger.String("title", track.Title))
}

// advance plays the next queued track and consumes the finished one.
// Reaching the end of the queue is not an error, playback just stops.
func (e *Engine) advance(ctx context.Context, qs *model.QueueState, current model.Track) {
	next := qs.CurrentIndex + 1
	if next >= len(qs.Tracks) {
		return
	}
	nextTrack := qs.Tracks[next]

	if err := e.player.Play(ctx, nextTrack.URI, e.devices.PreferredDeviceID()); err != nil {
		e.recordFailure(err, nextTrack)
		return
	}

	consumed, ok := e.queue.ConsumeAndAdvance(current.ID, nextTrack.ID)
	if ok && e.recorder != nil {
		e.recorder.RecordPlayed(ctx, consumed)
	}
	e.cache.ResetProgress()
	logger.Info("队列推进",
		logger.String("from", current.Title),
		logger.String("to", nextTrack.Title))
}

// recordFailure surfaces a failed play command to observers. No retry
// here: the next tick re-evaluates naturally once debounce and observed
// state allow.
func (e *Engine) recordFailure(err error, track model.Track) {
	status := 0
	var apiErr *spotify.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Status
	}
	e.queue.RecordError(err.Error(), status)
	e.cache.Notify()
	logger.Error("播放命令失败",
		logger.String("trackId", track.ID),
		logger.Int("status", status),
		logger.ErrorField(err))
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PartyQ/core/playback"
	"PartyQ/core/queue"
	"PartyQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayer 记录下发的播放命令
type fakePlayer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePlayer) Play(ctx context.Context, uri, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, uri)
	return nil
}

func (f *fakePlayer) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeReader struct {
	mu   sync.Mutex
	snap *model.PlaybackSnapshot
}

func (f *fakeReader) CurrentlyPlaying(ctx context.Context) (*model.PlaybackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, nil
	}
	snap := *f.snap
	return &snap, nil
}

type fakeLister struct{}

func (fakeLister) Devices(ctx context.Context) ([]model.Device, error) {
	return nil, nil
}

type recordedPlays struct {
	mu     sync.Mutex
	tracks []model.Track
}

func (r *recordedPlays) RecordPlayed(ctx context.Context, track model.Track) {
	r.mu.Lock()
	r.tracks = append(r.tracks, track)
	r.mu.Unlock()
}

func track(id string) model.Track {
	return model.Track{ID: id, URI: "spotify:track:" + id, Title: "Track " + id}
}

// seedStore materializes a queue state through the snapshot file so the
// advance bookkeeping (lastSeen, lastAdvanceAt) can be set freely.
func seedStore(t *testing.T, st model.QueueState) *queue.Store {
	t.Helper()
	if st.Tracks == nil {
		st.Tracks = []model.Track{}
	}
	path := filepath.Join(t.TempDir(), "queue_store.json")
	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return queue.NewStore(path)
}

type engineEnv struct {
	engine *Engine
	player *fakePlayer
	reader *fakeReader
	store  *queue.Store
	cache  *playback.Cache
	ledger *recordedPlays
}

func newEnv(t *testing.T, st model.QueueState, observed *model.PlaybackSnapshot) *engineEnv {
	t.Helper()
	store := seedStore(t, st)
	player := &fakePlayer{}
	reader := &fakeReader{snap: observed}
	cache := playback.NewCache(reader, store)
	if observed != nil {
		cache.Refresh(context.Background())
	}
	devices := playback.NewDeviceCache(fakeLister{})
	ledger := &recordedPlays{}
	return &engineEnv{
		engine: New(player, store, cache, devices, ledger),
		player: player,
		reader: reader,
		store:  store,
		cache:  cache,
		ledger: ledger,
	}
}

func TestTickNoopWhenAutoPlayDisabled(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a")},
		AutoPlayEnabled:  false,
	}, nil)

	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
}

func TestTickNoopWithoutActivePlaylistOrTracks(t *testing.T) {
	env := newEnv(t, model.QueueState{
		Tracks:          []model.Track{track("a")},
		AutoPlayEnabled: true,
	}, nil)
	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())

	env = newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		AutoPlayEnabled:  true,
	}, nil)
	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
}

func TestFirstPlayStartsCurrentTrack(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
	}, nil)

	env.engine.tick(context.Background())

	assert.Equal(t, []string{"spotify:track:a"}, env.player.played())
	qs := env.store.Snapshot()
	assert.Equal(t, "a", qs.LastSeenTrackID)
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.NotZero(t, qs.LastAdvanceAt)
}

func TestDebouncePreventsDuplicatePlay(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
	}, nil)

	// 远端状态一直没跟上，tick连发几次也只下发一条命令
	for i := 0; i < 3; i++ {
		env.engine.tick(context.Background())
	}
	assert.Equal(t, []string{"spotify:track:a"}, env.player.played())
}

func TestAdvanceWhenObservedPausedPastDebounce(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b"), track("c")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-10 * time.Second).UnixMilli(),
	}, &model.PlaybackSnapshot{
		TrackID:    "a",
		DurationMs: 10000,
		ProgressMs: 10000,
		IsPlaying:  false,
		ObservedAt: time.Now(),
	})

	env.engine.tick(context.Background())

	assert.Equal(t, []string{"spotify:track:b"}, env.player.played())
	qs := env.store.Snapshot()
	require.Len(t, qs.Tracks, 2)
	assert.Equal(t, "b", qs.Tracks[0].ID)
	assert.Equal(t, "c", qs.Tracks[1].ID)
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Equal(t, "b", qs.LastSeenTrackID)

	// 消费掉的歌进了账本
	env.ledger.mu.Lock()
	defer env.ledger.mu.Unlock()
	require.Len(t, env.ledger.tracks, 1)
	assert.Equal(t, "a", env.ledger.tracks[0].ID)
}

func TestNoAdvanceWhilePausedWithinDebounce(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-time.Second).UnixMilli(),
	}, &model.PlaybackSnapshot{
		TrackID:    "a",
		IsPlaying:  false,
		ObservedAt: time.Now(),
	})

	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
}

func TestNoopWhileObservedTrackStillPlaying(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-time.Minute).UnixMilli(),
	}, &model.PlaybackSnapshot{
		TrackID:    "a",
		IsPlaying:  true,
		ObservedAt: time.Now(),
	})

	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
}

func TestHealthyPlaybackClearsStaleError(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
		LastAdvanceAt:    time.Now().Add(-time.Minute).UnixMilli(),
	}, &model.PlaybackSnapshot{
		TrackID:    "a",
		IsPlaying:  true,
		ObservedAt: time.Now(),
	})
	env.store.RecordError("no active device", 404)
	cursor := env.cache.Payload().UpdatedAt

	env.engine.tick(context.Background())

	// 观测到指针歌在正常播放，残留的报错消除，书签跟上
	qs := env.store.Snapshot()
	assert.Empty(t, env.player.played())
	assert.Nil(t, qs.LastError)
	assert.Equal(t, "a", qs.LastSeenTrackID)
	assert.True(t, env.cache.Payload().UpdatedAt.After(cursor))
}

func TestObservedMismatchNeverFightsTheOperator(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-time.Minute).UnixMilli(),
	}, &model.PlaybackSnapshot{
		TrackID:    "someone-elses-pick",
		IsPlaying:  false,
		ObservedAt: time.Now(),
	})

	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
	assert.Equal(t, "a", env.store.Snapshot().LastSeenTrackID)
}

func TestEndOfQueueStopsQuietly(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-time.Minute).UnixMilli(),
	}, nil)

	env.engine.tick(context.Background())
	assert.Empty(t, env.player.played())
	assert.Nil(t, env.store.Snapshot().LastError)
}

func TestPlayFailureRecordsErrorWithoutMutatingQueue(t *testing.T) {
	env := newEnv(t, model.QueueState{
		ActivePlaylistID: "pl",
		Tracks:           []model.Track{track("a"), track("b")},
		AutoPlayEnabled:  true,
		LastSeenTrackID:  "a",
		LastAdvanceAt:    time.Now().Add(-time.Minute).UnixMilli(),
	}, nil)
	env.player.err = errors.New("no active device")

	env.engine.tick(context.Background())

	qs := env.store.Snapshot()
	require.NotNil(t, qs.LastError)
	assert.Contains(t, qs.LastError.Message, "no active device")
	assert.Len(t, qs.Tracks, 2)
	assert.Equal(t, "a", qs.LastSeenTrackID)
}

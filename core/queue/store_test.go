package queue

import (
	"path/filepath"
	"testing"

	"PartyQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrack(id string) model.Track {
	return model.Track{
		ID:    id,
		URI:   "spotify:track:" + id,
		Title: "Track " + id,
	}
}

func newTestStore(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := NewStore("")
	for _, id := range ids {
		s.Add(testTrack(id), nil)
	}
	return s
}

func queueIDs(s *Store) []string {
	qs := s.Snapshot()
	ids := make([]string, len(qs.Tracks))
	for i, tr := range qs.Tracks {
		ids[i] = tr.ID
	}
	return ids
}

func TestAddAppendsAndClampsPosition(t *testing.T) {
	s := newTestStore(t, "a", "b")

	pos := s.Add(testTrack("c"), nil)
	assert.Equal(t, 2, pos)

	// 越界位置收敛到队尾
	big := 99
	pos = s.Add(testTrack("d"), &big)
	assert.Equal(t, 4, pos)

	neg := -5
	pos = s.Add(testTrack("e"), &neg)
	assert.Equal(t, 0, pos)

	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, queueIDs(s))
}

func TestAddBeforePointerBumpsPointer(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")
	require.NoError(t, s.Reorder(0, 0)) // no-op sanity

	// 把指针移到b
	require.NoError(t, s.MarkPlaying("b"))
	qs := s.Snapshot()
	require.Equal(t, 0, qs.CurrentIndex) // front-pin后b在0

	pos := 0
	s.Add(testTrack("x"), &pos)
	qs = s.Snapshot()
	assert.Equal(t, 1, qs.CurrentIndex)
	assert.Equal(t, "b", qs.Tracks[qs.CurrentIndex].ID)
}

func TestRemoveAtOutOfRange(t *testing.T) {
	s := newTestStore(t, "a")
	_, err := s.RemoveAt(1, "")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = s.RemoveAt(-1, "")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestRemoveBeforePointerShiftsPointer(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")
	require.NoError(t, s.MarkPlaying("c"))
	// front-pin: c a b, pointer 0; 指回中间再测
	require.NoError(t, s.Reorder(0, 2)) // a b c, pointer跟随c到2

	qs := s.Snapshot()
	require.Equal(t, 2, qs.CurrentIndex)

	removed, err := s.RemoveAt(0, "")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.ID)

	qs = s.Snapshot()
	assert.Equal(t, 1, qs.CurrentIndex)
	assert.Equal(t, "c", qs.Tracks[qs.CurrentIndex].ID)
}

func TestRemoveCurrentClearsLastSeenAndClamps(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")
	require.NoError(t, s.MarkPlaying("c"))
	require.NoError(t, s.Reorder(0, 2)) // 指针在2

	_, err := s.RemoveAt(2, "")
	require.NoError(t, err)

	qs := s.Snapshot()
	assert.Empty(t, qs.LastSeenTrackID)
	assert.Equal(t, 1, qs.CurrentIndex)
}

func TestRemoveLastTrackResetsPointer(t *testing.T) {
	s := newTestStore(t, "a")
	_, err := s.RemoveAt(0, "")
	require.NoError(t, err)
	qs := s.Snapshot()
	assert.Empty(t, qs.Tracks)
	assert.Equal(t, 0, qs.CurrentIndex)
}

func TestRemoveAtRejectsShiftedQueue(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")

	// 调用方看到b在1，删除前队首被并发消费，索引1已是c
	_, err := s.RemoveAt(0, "")
	require.NoError(t, err)

	_, err = s.RemoveAt(1, "b")
	assert.ErrorIs(t, err, ErrTrackMoved)
	assert.Equal(t, []string{"b", "c"}, queueIDs(s))

	removed, err := s.RemoveAt(0, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)
}

func TestReorderPointerFollowsTrack(t *testing.T) {
	cases := []struct {
		name      string
		from, to  int
		wantIndex int
	}{
		{"move pointed track", 1, 3, 3},
		{"move from before to after pointer", 0, 2, 0},
		{"move from after to before pointer", 3, 0, 2},
		{"no-op", 1, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, "a", "b", "c", "d")
			require.NoError(t, s.MarkPlaying("b"))
			require.NoError(t, s.Reorder(0, 1)) // a b c d, pointer 1

			pointed := s.Snapshot().Tracks[1].ID
			require.NoError(t, s.Reorder(tc.from, tc.to))

			qs := s.Snapshot()
			assert.Equal(t, tc.wantIndex, qs.CurrentIndex)
			assert.Equal(t, pointed, qs.Tracks[qs.CurrentIndex].ID)
		})
	}
}

func TestReorderOutOfRange(t *testing.T) {
	s := newTestStore(t, "a", "b")
	assert.ErrorIs(t, s.Reorder(0, 2), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Reorder(-1, 0), ErrIndexOutOfRange)
}

func TestPointerInvariantUnderMutationSequence(t *testing.T) {
	s := newTestStore(t, "a", "b", "c", "d", "e")
	check := func() {
		qs := s.Snapshot()
		if len(qs.Tracks) > 0 {
			assert.GreaterOrEqual(t, qs.CurrentIndex, 0)
			assert.Less(t, qs.CurrentIndex, len(qs.Tracks))
		} else {
			assert.Equal(t, 0, qs.CurrentIndex)
		}
	}

	require.NoError(t, s.MarkPlaying("c"))
	check()
	s.Add(testTrack("f"), nil)
	check()
	pos := 0
	s.Add(testTrack("g"), &pos)
	check()
	require.NoError(t, s.Reorder(0, 5))
	check()
	for len(s.Snapshot().Tracks) > 0 {
		_, err := s.RemoveAt(0, "")
		require.NoError(t, err)
		check()
	}
}

func TestLoadTracksPreservesLiveTrackAndDedupes(t *testing.T) {
	s := newTestStore(t, "a", "b")
	require.NoError(t, s.MarkPlaying("b")) // b live, lastSeen=b

	fresh := []model.Track{testTrack("x"), testTrack("b"), testTrack("y")}
	s.LoadTracks(model.PlaylistMeta{ID: "pl1", Name: "Party"}, fresh)

	qs := s.Snapshot()
	assert.Equal(t, []string{"b", "x", "y"}, queueIDs(s))
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Equal(t, "b", qs.LastSeenTrackID)
	assert.Equal(t, "pl1", qs.ActivePlaylistID)
}

func TestLoadTracksIntoEmptyQueue(t *testing.T) {
	s := NewStore("")
	s.LoadTracks(model.PlaylistMeta{ID: "pl1"}, []model.Track{testTrack("x"), testTrack("y")})

	qs := s.Snapshot()
	assert.Equal(t, []string{"x", "y"}, queueIDs(s))
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Empty(t, qs.LastSeenTrackID)
}

func TestClearResetsBookkeeping(t *testing.T) {
	s := newTestStore(t, "a", "b")
	require.NoError(t, s.MarkPlaying("b"))

	s.Clear()
	qs := s.Snapshot()
	assert.Empty(t, qs.Tracks)
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Empty(t, qs.LastSeenTrackID)
	assert.Zero(t, qs.LastAdvanceAt)
}

func TestMarkPlayingFrontPinIsIdempotent(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")
	require.NoError(t, s.MarkPlaying("b"))
	assert.Equal(t, []string{"b", "a", "c"}, queueIDs(s))

	require.NoError(t, s.MarkPlaying("b"))
	assert.Equal(t, []string{"b", "a", "c"}, queueIDs(s))
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)

	assert.ErrorIs(t, s.MarkPlaying("nope"), ErrTrackNotFound)
}

func TestConsumeAndAdvance(t *testing.T) {
	s := newTestStore(t, "a", "b", "c")
	require.NoError(t, s.MarkPlaying("a"))

	consumed, ok := s.ConsumeAndAdvance("a", "b")
	require.True(t, ok)
	assert.Equal(t, "a", consumed.ID)

	qs := s.Snapshot()
	assert.Equal(t, []string{"b", "c"}, queueIDs(s))
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Equal(t, "b", qs.LastSeenTrackID)
	assert.Nil(t, qs.LastError)
}

func TestUpdatedAtIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	prev := s.UpdatedAt()
	for i := 0; i < 10; i++ {
		s.Add(testTrack(string(rune('a'+i))), nil)
		cur := s.UpdatedAt()
		assert.True(t, cur.After(prev), "cursor must strictly increase")
		prev = cur
	}
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_store.json")

	s := NewStore(path)
	s.Add(testTrack("a"), nil)
	s.Add(testTrack("b"), nil)
	require.NoError(t, s.MarkPlaying("b"))
	s.SetVoteSort(true)
	s.RecordError("boom", 502)

	restored := NewStore(path)
	qs := restored.Snapshot()
	assert.Equal(t, []string{"b", "a"}, queueIDs(restored))
	assert.Equal(t, 0, qs.CurrentIndex)
	assert.Equal(t, "b", qs.LastSeenTrackID)
	assert.True(t, qs.VoteSortEnabled)
	// 上次进程的报错不跨重启保留
	assert.Nil(t, qs.LastError)
}

func TestRecordError(t *testing.T) {
	s := newTestStore(t, "a")
	s.RecordError("device not found", 404)

	qs := s.Snapshot()
	require.NotNil(t, qs.LastError)
	assert.Equal(t, "device not found", qs.LastError.Message)
	assert.Equal(t, 404, qs.LastError.Status)

	// 成功的播放命令清掉报错
	require.NoError(t, s.MarkPlaying("a"))
	assert.Nil(t, s.Snapshot().LastError)
}

func TestMarkHealthyClearsErrorAndTracksLastSeen(t *testing.T) {
	s := newTestStore(t, "a", "b")
	require.NoError(t, s.MarkPlaying("a"))
	s.RecordError("boom", 502)

	changed := s.MarkHealthy("a")
	assert.True(t, changed)
	qs := s.Snapshot()
	assert.Nil(t, qs.LastError)
	assert.Equal(t, "a", qs.LastSeenTrackID)

	// 无变化时不抬游标
	before := s.UpdatedAt()
	assert.False(t, s.MarkHealthy("a"))
	assert.Equal(t, before, s.UpdatedAt())
}

func TestRenameVoterRewritesAttribution(t *testing.T) {
	s := NewStore("")
	track := testTrack("a")
	track.AddedBy = &model.SessionRef{SessionID: "s1", Name: "old"}
	track.Votes.Up = []model.VoteRef{{SessionID: "s1", Name: "old"}, {SessionID: "s2", Name: "other"}}
	s.Add(track, nil)

	s.RenameVoter("s1", "new")

	got := s.Snapshot().Tracks[0]
	assert.Equal(t, "new", got.AddedBy.Name)
	assert.Equal(t, "new", got.Votes.Up[0].Name)
	assert.Equal(t, "other", got.Votes.Up[1].Name)
}

package queue

import (
	"errors"
	"sync"
	"time"

	"PartyQ/model"
)

var (
	// ErrIndexOutOfRange 队列索引越界
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrTrackNotFound 队列中不存在该歌曲
	ErrTrackNotFound = errors.New("track not found in queue")
	// ErrInvalidDirection 非法投票方向，调用方参数错误
	ErrInvalidDirection = errors.New("invalid vote direction")
	// ErrTrackMoved 队列在检查与删除之间被并发修改
	ErrTrackMoved = errors.New("queue changed, track no longer at index")
)

// Store owns the shared queue. Every mutation happens under the store's
// lock, stamps a monotonically increasing UpdatedAt and rewrites the
// snapshot file. The in-memory state stays authoritative even when the
// snapshot write fails.
type Store struct {
	mu    sync.Mutex
	state model.QueueState
	path  string
}

// NewStore 创建队列存储并从快照文件恢复状态
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.state = loadState(path)
	return s
}

// touch bumps UpdatedAt, keeping it strictly increasing so long-poll
// cursors never miss a mutation that lands within the clock resolution.
func (s *Store) touch() {
	now := time.Now()
	if !now.After(s.state.UpdatedAt) {
		now = s.state.UpdatedAt.Add(time.Millisecond)
	}
	s.state.UpdatedAt = now
}

// commit stamps the cursor and persists. Callers hold the lock.
func (s *Store) commit() {
	s.touch()
	saveState(s.path, &s.state)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() model.QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(&s.state)
}

// UpdatedAt returns the current change cursor.
func (s *Store) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UpdatedAt
}

// Add inserts a track at position (default: end). Out-of-range positions
// clamp to [0, len]. Inserting at or before the pointer bumps the pointer
// so it keeps referencing the same logical track.
func (s *Store) Add(track model.Track, position *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalizeTrack(&track)
	n := len(s.state.Tracks)
	pos := n
	if position != nil {
		pos = *position
		if pos < 0 {
			pos = 0
		} else if pos > n {
			pos = n
		}
	}

	s.state.Tracks = append(s.state.Tracks, model.Track{})
	copy(s.state.Tracks[pos+1:], s.state.Tracks[pos:])
	s.state.Tracks[pos] = track

	if n > 0 && pos <= s.state.CurrentIndex {
		s.state.CurrentIndex++
	}
	s.commit()
	return pos
}

// RemoveAt removes the track at index. A non-empty expectID pins the
// removal to that track: if the queue shifted since the caller looked
// and a different track now sits at index, nothing is removed and
// ErrTrackMoved comes back, so a permission decision made on a snapshot
// can never delete the wrong track. Removing before the pointer shifts
// the pointer back; removing the pointed-at track clears the last seen
// id so the advance engine re-evaluates from scratch.
func (s *Store) RemoveAt(index int, expectID string) (model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.state.Tracks) {
		return model.Track{}, ErrIndexOutOfRange
	}
	removed := s.state.Tracks[index]
	if expectID != "" && removed.ID != expectID {
		return model.Track{}, ErrTrackMoved
	}

	if index < s.state.CurrentIndex {
		s.state.CurrentIndex--
	} else if index == s.state.CurrentIndex {
		s.state.LastSeenTrackID = ""
	}

	s.state.Tracks = append(s.state.Tracks[:index], s.state.Tracks[index+1:]...)
	s.clampPointer()
	s.commit()
	return removed, nil
}

// Reorder moves the track at from to position to. The pointer follows the
// track it referenced through the move.
func (s *Store) Reorder(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.state.Tracks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}

	track := s.state.Tracks[from]
	s.state.Tracks = append(s.state.Tracks[:from], s.state.Tracks[from+1:]...)
	s.state.Tracks = append(s.state.Tracks[:to], append([]model.Track{track}, s.state.Tracks[to:]...)...)

	cur := s.state.CurrentIndex
	switch {
	case cur == from:
		s.state.CurrentIndex = to
	case from < cur && to >= cur:
		s.state.CurrentIndex--
	case from > cur && to <= cur:
		s.state.CurrentIndex++
	}
	s.commit()
	return nil
}

// SelectPlaylist records the playlist the queue is being curated from.
func (s *Store) SelectPlaylist(meta model.PlaylistMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPlaylistMeta(meta)
	s.commit()
}

// LoadTracks replaces the upcoming list with a fresh playlist load. The
// currently pointed-at track is live on the device and must not be evicted
// mid-playback: it is preserved at position 0, and its duplicate in the
// fresh list is dropped. The pointer resets to 0.
func (s *Store) LoadTracks(meta model.PlaylistMeta, tracks []model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyPlaylistMeta(meta)

	var live *model.Track
	if len(s.state.Tracks) > 0 {
		t := s.state.Tracks[s.state.CurrentIndex]
		live = &t
	}

	next := make([]model.Track, 0, len(tracks)+1)
	if live != nil {
		next = append(next, *live)
	}
	for i := range tracks {
		t := tracks[i]
		normalizeTrack(&t)
		if live != nil && t.ID == live.ID {
			continue
		}
		next = append(next, t)
	}

	s.state.Tracks = next
	s.state.CurrentIndex = 0
	if live == nil || s.state.LastSeenTrackID != live.ID {
		s.state.LastSeenTrackID = ""
		s.state.LastAdvanceAt = 0
	}
	s.commit()
}

// Clear empties the queue and resets the advance bookkeeping.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tracks = []model.Track{}
	s.state.CurrentIndex = 0
	s.state.LastSeenTrackID = ""
	s.state.LastAdvanceAt = 0
	s.commit()
}

// SetAutoPlay 开关自动连播
func (s *Store) SetAutoPlay(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AutoPlayEnabled = enabled
	s.commit()
}

// SetVoteSort 开关投票排序
func (s *Store) SetVoteSort(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.VoteSortEnabled = enabled
	s.commit()
}

// SetActiveDevice records the output device playback commands target.
func (s *Store) SetActiveDevice(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveDeviceID = id
	s.state.ActiveDeviceName = name
	s.commit()
}

// MarkPlaying records that trackID was just started on the device. The
// track is pinned to index 0 so observer ordering and the pointer stay
// aligned, and the advance bookkeeping restarts from it. Unknown ids
// return ErrTrackNotFound.
func (s *Store) MarkPlaying(trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(trackID)
	if idx < 0 {
		return ErrTrackNotFound
	}
	s.pinToFront(idx)
	s.state.LastSeenTrackID = trackID
	s.state.LastAdvanceAt = time.Now().UnixMilli()
	s.state.LastError = nil
	s.commit()
	return nil
}

// ConsumeAndAdvance removes the consumed track and moves the pointer to
// nextID, which was just started on the device. Returns the consumed
// track so callers can record it. Bookkeeping restarts from nextID.
func (s *Store) ConsumeAndAdvance(consumedID, nextID string) (model.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var consumed model.Track
	var ok bool
	if idx := s.indexOf(consumedID); idx >= 0 {
		consumed = s.state.Tracks[idx]
		ok = true
		if idx < s.state.CurrentIndex {
			s.state.CurrentIndex--
		}
		s.state.Tracks = append(s.state.Tracks[:idx], s.state.Tracks[idx+1:]...)
		s.clampPointer()
	}

	if idx := s.indexOf(nextID); idx >= 0 {
		s.pinToFront(idx)
	}
	s.state.LastSeenTrackID = nextID
	s.state.LastAdvanceAt = time.Now().UnixMilli()
	s.state.LastError = nil
	s.commit()
	return consumed, ok
}

// MarkHealthy records that trackID is playing normally on the device:
// the last seen id follows it and any lingering failure stops showing.
// Returns whether anything changed, so callers only notify observers on
// a real transition.
func (s *Store) MarkHealthy(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.LastError == nil && s.state.LastSeenTrackID == trackID {
		return false
	}
	s.state.LastSeenTrackID = trackID
	s.state.LastError = nil
	s.commit()
	return true
}

// RecordError stores the last playback command failure for observers.
func (s *Store) RecordError(message string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = &model.QueueError{
		Message: message,
		Status:  status,
		At:      time.Now().Format(time.RFC3339),
	}
	s.commit()
}

// RenameVoter rewrites the denormalized display name in every vote ref
// and addedBy record belonging to the session.
func (s *Store) RenameVoter(sessionID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.state.Tracks {
		t := &s.state.Tracks[i]
		if t.AddedBy != nil && t.AddedBy.SessionID == sessionID && t.AddedBy.Name != name {
			t.AddedBy.Name = name
			changed = true
		}
		for j := range t.Votes.Up {
			if t.Votes.Up[j].SessionID == sessionID && t.Votes.Up[j].Name != name {
				t.Votes.Up[j].Name = name
				changed = true
			}
		}
		for j := range t.Votes.Down {
			if t.Votes.Down[j].SessionID == sessionID && t.Votes.Down[j].Name != name {
				t.Votes.Down[j].Name = name
				changed = true
			}
		}
	}
	if changed {
		s.commit()
	}
}

func (s *Store) applyPlaylistMeta(meta model.PlaylistMeta) {
	s.state.ActivePlaylistID = meta.ID
	s.state.ActivePlaylistName = meta.Name
	s.state.ActivePlaylistImage = meta.Image
	s.state.ActivePlaylistOwner = meta.Owner
	s.state.ActivePlaylistTrackCount = meta.TrackCount
	s.state.ActivePlaylistDescription = meta.Description
}

// indexOf 按歌曲ID查找下标，未找到返回-1。调用方需持锁。
func (s *Store) indexOf(trackID string) int {
	for i := range s.state.Tracks {
		if s.state.Tracks[i].ID == trackID {
			return i
		}
	}
	return -1
}

// pinToFront moves the track at idx to index 0 and points at it. The
// operation is idempotent. Callers hold the lock.
func (s *Store) pinToFront(idx int) {
	if idx > 0 {
		track := s.state.Tracks[idx]
		copy(s.state.Tracks[1:idx+1], s.state.Tracks[:idx])
		s.state.Tracks[0] = track
	}
	s.state.CurrentIndex = 0
}

func (s *Store) clampPointer() {
	n := len(s.state.Tracks)
	if n == 0 {
		s.state.CurrentIndex = 0
		return
	}
	if s.state.CurrentIndex >= n {
		s.state.CurrentIndex = n - 1
	}
	if s.state.CurrentIndex < 0 {
		s.state.CurrentIndex = 0
	}
}

func normalizeTrack(t *model.Track) {
	if t.Source == "" {
		t.Source = model.TrackSourceUser
	}
	if t.AddedAt == "" {
		t.AddedAt = time.Now().Format(time.RFC3339)
	}
	if t.Votes.Up == nil {
		t.Votes.Up = []model.VoteRef{}
	}
	if t.Votes.Down == nil {
		t.Votes.Down = []model.VoteRef{}
	}
}

func cloneState(st *model.QueueState) model.QueueState {
	out := *st
	out.Tracks = make([]model.Track, len(st.Tracks))
	for i := range st.Tracks {
		out.Tracks[i] = cloneTrack(&st.Tracks[i])
	}
	if st.LastError != nil {
		e := *st.LastError
		out.LastError = &e
	}
	if st.ActivePlaylistTrackCount != nil {
		c := *st.ActivePlaylistTrackCount
		out.ActivePlaylistTrackCount = &c
	}
	return out
}

func cloneTrack(t *model.Track) model.Track {
	out := *t
	out.Votes.Up = append([]model.VoteRef(nil), t.Votes.Up...)
	out.Votes.Down = append([]model.VoteRef(nil), t.Votes.Down...)
	if t.AddedBy != nil {
		ref := *t.AddedBy
		out.AddedBy = &ref
	}
	return out
}

package queue

import (
	"fmt"
	"sort"

	"PartyQ/model"
)

// 投票方向
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// voteSortWindow is how many upcoming tracks behind the playing one are
// eligible for vote-based reordering. Index 0 is never reordered.
const voteSortWindow = 10

// VoteResult reports the outcome of a cast so callers can decide whether
// to animate a reorder.
type VoteResult struct {
	Sorted    bool   `json:"sorted"`
	Direction string `json:"direction,omitempty"` // 调用方当前持有的方向，空表示无
	UpCount   int    `json:"upCount"`
	DownCount int    `json:"downCount"`
}

// CastVote applies one vote to the track with trackID. Non-admin sessions
// hold at most one vote per track: repeating the held direction removes
// it, the opposite direction moves it. Admin votes always append, letting
// staff weight the queue. When vote sorting is on, the look-ahead window
// is re-sorted afterwards.
func (s *Store) CastVote(trackID, direction string, voter model.VoteRef, isAdmin bool) (VoteResult, error) {
	if direction != VoteUp && direction != VoteDown {
		return VoteResult{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(trackID)
	if idx < 0 {
		return VoteResult{}, ErrTrackNotFound
	}
	t := &s.state.Tracks[idx]

	if isAdmin {
		if direction == VoteUp {
			t.Votes.Up = append(t.Votes.Up, voter)
		} else {
			t.Votes.Down = append(t.Votes.Down, voter)
		}
	} else {
		heldUp := containsVoter(t.Votes.Up, voter.SessionID)
		heldDown := containsVoter(t.Votes.Down, voter.SessionID)
		t.Votes.Up = removeVoter(t.Votes.Up, voter.SessionID)
		t.Votes.Down = removeVoter(t.Votes.Down, voter.SessionID)
		// 同方向重复投票为撤票，反方向为改票
		switch {
		case direction == VoteUp && !heldUp:
			t.Votes.Up = append(t.Votes.Up, voter)
		case direction == VoteDown && !heldDown:
			t.Votes.Down = append(t.Votes.Down, voter)
		}
	}

	sorted := false
	if s.state.VoteSortEnabled {
		sorted = s.sortWindow()
	}
	s.commit()

	// 排序后重新定位该歌曲
	idx = s.indexOf(trackID)
	t = &s.state.Tracks[idx]
	res := VoteResult{
		Sorted:    sorted,
		UpCount:   len(t.Votes.Up),
		DownCount: len(t.Votes.Down),
	}
	if containsVoter(t.Votes.Up, voter.SessionID) {
		res.Direction = VoteUp
	} else if containsVoter(t.Votes.Down, voter.SessionID) {
		res.Direction = VoteDown
	}
	return res, nil
}

// sortWindow stable-sorts tracks[1 .. 1+voteSortWindow] by descending net
// votes. Stability keeps equal-score tracks in insertion order. Returns
// whether any position actually changed. Callers hold the lock.
func (s *Store) sortWindow() bool {
	lo := 1
	hi := lo + voteSortWindow
	if hi > len(s.state.Tracks) {
		hi = len(s.state.Tracks)
	}
	if hi-lo < 2 {
		return false
	}

	window := s.state.Tracks[lo:hi]
	before := make([]string, len(window))
	for i := range window {
		before[i] = window[i].ID
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].NetVotes() > window[j].NetVotes()
	})

	for i := range window {
		if window[i].ID != before[i] {
			return true
		}
	}
	return false
}

func containsVoter(refs []model.VoteRef, sessionID string) bool {
	for _, r := range refs {
		if r.SessionID == sessionID {
			return true
		}
	}
	return false
}

func removeVoter(refs []model.VoteRef, sessionID string) []model.VoteRef {
	out := refs[:0]
	for _, r := range refs {
		if r.SessionID != sessionID {
			out = append(out, r)
		}
	}
	return out
}

package model

// TrackSource 标记歌曲进入队列的途径
const (
	TrackSourcePlaylist = "playlist"
	TrackSourceUser     = "user"
)

// VoteRef identifies one cast vote. The display name is denormalized so
// stored snapshots stay readable; the live name is resolved from the
// session registry when the queue is projected.
type VoteRef struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// Votes holds the per-track vote ledgers. A non-admin session appears in
// at most one of the two lists; admin sessions may appear any number of
// times (staff weighting).
type Votes struct {
	Up   []VoteRef `json:"up"`
	Down []VoteRef `json:"down"`
}

// SessionRef records who added a track.
type SessionRef struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
}

// Track is one entry of the shared queue. Identity is the remote track id;
// URI is the opaque handle handed to the playback adapter.
type Track struct {
	ID         string      `json:"id"`
	URI        string      `json:"uri"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album"`
	Image      string      `json:"image"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Source     string      `json:"source"`
	AddedAt    string      `json:"addedTimestamp"`
	AddedBy    *SessionRef `json:"addedBy,omitempty"`
	Votes      Votes       `json:"votes"`
}

// NetVotes 返回净票数
func (t *Track) NetVotes() int {
	return len(t.Votes.Up) - len(t.Votes.Down)
}

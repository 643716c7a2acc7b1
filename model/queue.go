package model

import "time"

// PlaylistMeta describes the playlist the queue was loaded from.
type PlaylistMeta struct {
	ID          string `json:"playlistId"`
	Name        string `json:"playlistName,omitempty"`
	Image       string `json:"playlistImage,omitempty"`
	Owner       string `json:"playlistOwner,omitempty"`
	TrackCount  *int   `json:"playlistTrackCount,omitempty"`
	Description string `json:"playlistDescription,omitempty"`
}

// QueueError is the last playback command failure, surfaced to every
// observer until the next successful command clears it.
type QueueError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	At      string `json:"at"`
}

// QueueState is the persisted shape of the shared queue. It mirrors the
// snapshot file record one to one; UpdatedAt is the cursor long-poll
// clients compare against.
type QueueState struct {
	ActivePlaylistID          string      `json:"activePlaylistId"`
	ActivePlaylistName        string      `json:"activePlaylistName,omitempty"`
	ActivePlaylistImage       string      `json:"activePlaylistImage,omitempty"`
	ActivePlaylistOwner       string      `json:"activePlaylistOwner,omitempty"`
	ActivePlaylistTrackCount  *int        `json:"activePlaylistTrackCount,omitempty"`
	ActivePlaylistDescription string      `json:"activePlaylistDescription,omitempty"`
	Tracks                    []Track     `json:"tracks"`
	CurrentIndex              int         `json:"currentIndex"`
	AutoPlayEnabled           bool        `json:"autoPlayEnabled"`
	VoteSortEnabled           bool        `json:"voteSortEnabled"`
	LastSeenTrackID           string      `json:"lastSeenTrackId,omitempty"`
	LastAdvanceAt             int64       `json:"lastAdvanceAt,omitempty"` // Unix 毫秒
	LastError                 *QueueError `json:"lastError,omitempty"`
	ActiveDeviceID            string      `json:"activeDeviceId,omitempty"`
	ActiveDeviceName          string      `json:"activeDeviceName,omitempty"`
	UpdatedAt                 time.Time   `json:"updatedAt"`
}

package repository

import (
	"context"
	"time"

	"PartyQ/logger"
	"PartyQ/model"
)

// PlayRecorder turns consumed queue tracks into ledger rows. Writes are
// best-effort: a failed insert is logged and the queue moves on.
type PlayRecorder struct {
	repo HistoryRepository
}

// NewPlayRecorder 创建播放历史记录器
func NewPlayRecorder(repo HistoryRepository) *PlayRecorder {
	return &PlayRecorder{repo: repo}
}

// RecordPlayed appends one consumed track to the ledger.
func (r *PlayRecorder) RecordPlayed(ctx context.Context, track model.Track) {
	entry := &model.PlayHistory{
		TrackID:    track.ID,
		URI:        track.URI,
		Title:      track.Title,
		Artist:     track.Artist,
		Album:      track.Album,
		Image:      track.Image,
		DurationMs: track.DurationMs,
		Source:     track.Source,
		PlayedAt:   time.Now(),
	}
	if track.AddedBy != nil {
		entry.AddedBy = track.AddedBy.Name
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		logger.Warn("写入播放历史失败",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
	}
}

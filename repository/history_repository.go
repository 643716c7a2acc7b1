package repository

import (
	"context"
	"fmt"

	"PartyQ/model"

	"gorm.io/gorm"
)

// HistoryRepository defines the interface for the play-history ledger.
type HistoryRepository interface {
	Create(ctx context.Context, entry *model.PlayHistory) error
	Recent(ctx context.Context, limit int) ([]model.PlayHistory, error)
}

// gormHistoryRepository implements HistoryRepository with GORM.
type gormHistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new gormHistoryRepository.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Create appends one consumed track to the ledger.
func (r *gormHistoryRepository) Create(ctx context.Context, entry *model.PlayHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create play history entry: %w", err)
	}
	return nil
}

// Recent returns the latest ledger entries, newest first.
func (r *gormHistoryRepository) Recent(ctx context.Context, limit int) ([]model.PlayHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []model.PlayHistory
	if err := r.db.WithContext(ctx).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	return entries, nil
}

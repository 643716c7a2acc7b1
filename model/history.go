package model

import "time"

// PlayHistory 播放历史账本（GORM 模型）
// Every track the advance engine consumes is recorded here, best-effort.
type PlayHistory struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID    string    `json:"trackId" gorm:"size:64;index;not null"`
	URI        string    `json:"uri" gorm:"size:128;not null"`
	Title      string    `json:"title" gorm:"size:255"`
	Artist     string    `json:"artist" gorm:"size:255"`
	Album      string    `json:"album" gorm:"size:255"`
	Image      string    `json:"image" gorm:"size:512"`
	DurationMs int64     `json:"duration_ms"`
	Source     string    `json:"source" gorm:"size:20"`
	AddedBy    string    `json:"addedBy" gorm:"size:100"`
	PlayedAt   time.Time `json:"playedAt" gorm:"index"`
}

// TableName 指定表名
func (PlayHistory) TableName() string {
	return "play_history"
}

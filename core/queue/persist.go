package queue

import (
	"encoding/json"
	"os"
	"path/filepath"

	"PartyQ/logger"
	"PartyQ/model"
)

// loadState restores the queue from the snapshot file. Missing or broken
// files yield a fresh empty state; old records missing fields added over
// time are normalized so the rest of the code never sees nil ledgers.
func loadState(path string) model.QueueState {
	st := model.QueueState{Tracks: []model.Track{}, AutoPlayEnabled: true}
	if path == "" {
		return st
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("读取队列快照失败", logger.String("path", path), logger.ErrorField(err))
		}
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("解析队列快照失败，使用空队列", logger.String("path", path), logger.ErrorField(err))
		return model.QueueState{Tracks: []model.Track{}, AutoPlayEnabled: true}
	}

	if st.Tracks == nil {
		st.Tracks = []model.Track{}
	}
	for i := range st.Tracks {
		t := &st.Tracks[i]
		if t.Source == "" {
			t.Source = model.TrackSourcePlaylist
		}
		if t.Votes.Up == nil {
			t.Votes.Up = []model.VoteRef{}
		}
		if t.Votes.Down == nil {
			t.Votes.Down = []model.VoteRef{}
		}
	}
	if len(st.Tracks) == 0 {
		st.CurrentIndex = 0
	} else if st.CurrentIndex < 0 || st.CurrentIndex >= len(st.Tracks) {
		st.CurrentIndex = 0
	}
	// 上次进程的报错不再有意义
	st.LastError = nil

	logger.Info("队列快照已恢复",
		logger.String("path", path),
		logger.Int("tracks", len(st.Tracks)))
	return st
}

// saveState rewrites the snapshot wholesale. Failures are logged and
// swallowed: in-memory state stays authoritative for the process.
func saveState(path string, st *model.QueueState) {
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		logger.Error("序列化队列快照失败", logger.ErrorField(err))
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("创建快照目录失败", logger.String("dir", dir), logger.ErrorField(err))
			return
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("写入队列快照失败", logger.String("path", path), logger.ErrorField(err))
	}
}

package agent

import (
	"context"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"
)

const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Journal 将循环事件写入 logs 表，写入失败只记日志。
type Journal struct {
	store store.Store
	now   func() time.Time
}

func NewJournal(st store.Store) *Journal {
	return &Journal{store: st, now: time.Now}
}

func (j *Journal) Record(ctx context.Context, agent, action, level, message string, meta map[string]any) {
	if j == nil || j.store == nil {
		return
	}
	entry := &model.ActivityLog{
		Timestamp: j.now().UTC(),
		Agent:     agent,
		Action:    action,
		Level:     level,
		Message:   message,
		Metadata:  meta,
	}
	err := store.Run(ctx, j.store, func(uow store.UnitOfWork) error {
		return uow.Logs().Insert(ctx, entry)
	})
	if err != nil {
		logger.Warnf("写入运行日志失败 (%s/%s): %v", agent, action, err)
	}
}

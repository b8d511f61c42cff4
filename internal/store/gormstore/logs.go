package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type logRepository struct {
	db *gorm.DB
}

func (r *logRepository) Insert(ctx context.Context, l *model.ActivityLog) error {
	if l == nil {
		return errors.New("log cannot be nil")
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	if l.Level == "" {
		l.Level = "INFO"
	}
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *logRepository) ListRecent(ctx context.Context, agent string, limit int) ([]model.ActivityLog, error) {
	var out []model.ActivityLog
	tx := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(clampLimit(limit, 100))
	if agent != "" {
		tx = tx.Where("agent = ?", agent)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

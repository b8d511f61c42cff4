package gormstore

import (
	"context"
	"errors"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type alertRepository struct {
	db *gorm.DB
}

func (r *alertRepository) Create(ctx context.Context, a *model.Alert) error {
	if a == nil {
		return errors.New("alert cannot be nil")
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *alertRepository) List(ctx context.Context, q store.AlertQuery) ([]model.Alert, error) {
	var out []model.Alert
	tx := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(clampLimit(q.Limit, 50))
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.UnreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	if q.AlertType != "" {
		tx = tx.Where("alert_type = ?", q.AlertType)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepository) MarkRead(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Alert{}).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *alertRepository) ExistsForSignal(ctx context.Context, signalID, activityID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Alert{}).
		Where("signal_id = ? AND matched_activity_id = ?", signalID, activityID).
		Count(&n).Error
	return n > 0, err
}

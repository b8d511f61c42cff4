package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type watchlistRepository struct {
	db *gorm.DB
}

// Upsert 重新激活已有条目，否则新增。
func (r *watchlistRepository) Upsert(ctx context.Context, t *model.MonitoredTicker) error {
	if t == nil || t.Symbol == "" {
		return errors.New("watchlist entry requires symbol")
	}
	var existing model.MonitoredTicker
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", t.UserID, t.Symbol).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		t.IsActive = true
		if t.AddedAt.IsZero() {
			t.AddedAt = time.Now()
		}
		return r.db.WithContext(ctx).Create(t).Error
	case err != nil:
		return err
	}
	if err := r.db.WithContext(ctx).Model(&existing).Update("is_active", true).Error; err != nil {
		return err
	}
	existing.IsActive = true
	*t = existing
	return nil
}

func (r *watchlistRepository) ListActive(ctx context.Context, userID string) ([]model.MonitoredTicker, error) {
	var out []model.MonitoredTicker
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("symbol ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *watchlistRepository) Deactivate(ctx context.Context, userID, symbol string) error {
	res := r.db.WithContext(ctx).Model(&model.MonitoredTicker{}).
		Where("user_id = ? AND symbol = ? AND is_active = ?", userID, symbol, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *watchlistRepository) RecordAnalysis(ctx context.Context, id uint, at time.Time, decision string, confidence float64) error {
	return r.db.WithContext(ctx).Model(&model.MonitoredTicker{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_analyzed_at": at,
			"last_decision":    decision,
			"last_confidence":  confidence,
		}).Error
}

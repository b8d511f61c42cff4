package gormstore

import (
	"context"
	"errors"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type tradeRepository struct {
	db *gorm.DB
}

func (r *tradeRepository) Create(ctx context.Context, t *model.Trade) error {
	if t == nil {
		return errors.New("trade cannot be nil")
	}
	return r.db.WithContext(ctx).Create(t).Error
}

// AttachPosition 只回填尚未关联的成交。
func (r *tradeRepository) AttachPosition(ctx context.Context, tradeID, positionID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Trade{}).
		Where("id = ? AND position_id IS NULL", tradeID).
		Update("position_id", positionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *tradeRepository) List(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	var out []model.Trade
	tx := r.db.WithContext(ctx).Order("executed_at DESC, id DESC").Limit(clampLimit(limit, 100))
	if symbol != "" {
		tx = tx.Where("symbol = ?", symbol)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tradeRepository) ListByPosition(ctx context.Context, positionID uint) ([]model.Trade, error) {
	var out []model.Trade
	if err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

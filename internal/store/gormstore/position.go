package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type positionRepository struct {
	db *gorm.DB
}

func (r *positionRepository) Create(ctx context.Context, p *model.Position) error {
	if p == nil {
		return errors.New("position cannot be nil")
	}
	if p.Status == "" {
		p.Status = model.PositionStatusOpen
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *positionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *positionRepository) FindOpenBySymbol(ctx context.Context, symbol string) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		Order("id ASC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *positionRepository) ListOpen(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("entry_time ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *positionRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("status = ?", model.PositionStatusOpen).
		Count(&n).Error
	return n, err
}

func (r *positionRepository) List(ctx context.Context, status string, limit int) ([]model.Position, error) {
	var out []model.Position
	tx := r.db.WithContext(ctx).Order("entry_time DESC, id DESC").Limit(clampLimit(limit, 100))
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close 为条件更新：只有 open 状态的仓位会被改为 closed。
func (r *positionRepository) Close(ctx context.Context, id uint, exit store.ExitInfo) error {
	res := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusOpen).
		Updates(map[string]any{
			"status":      model.PositionStatusClosed,
			"exit_time":   exit.Time,
			"exit_price":  exit.Price,
			"exit_reason": exit.Reason,
			"pnl":         exit.PnL,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

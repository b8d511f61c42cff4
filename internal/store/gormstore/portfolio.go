package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type portfolioRepository struct {
	db *gorm.DB
}

func (r *portfolioRepository) Get(ctx context.Context, userID string) (*model.PortfolioConfig, error) {
	var cfg model.PortfolioConfig
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *portfolioRepository) GetOrCreate(ctx context.Context, seed *model.PortfolioConfig) (*model.PortfolioConfig, error) {
	if seed == nil || seed.UserID == "" {
		return nil, errors.New("portfolio seed requires user id")
	}
	var cfg model.PortfolioConfig
	err := r.db.WithContext(ctx).
		Where(model.PortfolioConfig{UserID: seed.UserID}).
		Attrs(*seed).
		FirstOrCreate(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *portfolioRepository) Save(ctx context.Context, cfg *model.PortfolioConfig) error {
	if cfg == nil {
		return errors.New("portfolio config cannot be nil")
	}
	cfg.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *portfolioRepository) SetAutonomous(ctx context.Context, userID string, active bool) error {
	return r.update(ctx, userID, map[string]any{"is_autonomous_active": active})
}

func (r *portfolioRepository) SetAllocation(ctx context.Context, userID string, allocation float64) error {
	if allocation < 0 {
		allocation = 0
	}
	return r.update(ctx, userID, map[string]any{"current_allocation": allocation})
}

// AddAllocation 原子增减占用资金，结果不低于 0。
func (r *portfolioRepository) AddAllocation(ctx context.Context, userID string, delta float64) error {
	expr := gorm.Expr("CASE WHEN current_allocation + ? < 0 THEN 0 ELSE current_allocation + ? END", delta, delta)
	return r.update(ctx, userID, map[string]any{"current_allocation": expr})
}

func (r *portfolioRepository) update(ctx context.Context, userID string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&model.PortfolioConfig{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

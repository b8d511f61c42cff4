package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type snapshotRepository struct {
	db *gorm.DB
}

func (r *snapshotRepository) Create(ctx context.Context, s *model.PortfolioSnapshot) error {
	if s == nil {
		return errors.New("snapshot cannot be nil")
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *snapshotRepository) Latest(ctx context.Context, userID string) (*model.PortfolioSnapshot, error) {
	return r.first(ctx, userID, "timestamp DESC, id DESC")
}

func (r *snapshotRepository) Earliest(ctx context.Context, userID string) (*model.PortfolioSnapshot, error) {
	return r.first(ctx, userID, "timestamp ASC, id ASC")
}

func (r *snapshotRepository) first(ctx context.Context, userID, order string) (*model.PortfolioSnapshot, error) {
	var s model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(order).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *snapshotRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]model.PortfolioSnapshot, error) {
	var out []model.PortfolioSnapshot
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("timestamp ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

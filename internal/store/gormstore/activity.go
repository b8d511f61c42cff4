package gormstore

import (
	"context"
	"errors"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type activityRepository struct {
	db *gorm.DB
}

func (r *activityRepository) Create(ctx context.Context, a *model.UserActivity) error {
	if a == nil {
		return errors.New("activity cannot be nil")
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *activityRepository) FindByID(ctx context.Context, id uint) (*model.UserActivity, error) {
	var a model.UserActivity
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetOutcome 只允许写入一次：行不存在返回 ErrNotFound，已有结果返回 ErrConflict。
func (r *activityRepository) SetOutcome(ctx context.Context, id uint, outcome string) error {
	res := r.db.WithContext(ctx).Model(&model.UserActivity{}).
		Where("id = ? AND (outcome IS NULL OR outcome = '')", id).
		Update("outcome", outcome)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *activityRepository) DistinctSymbols(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).Model(&model.UserActivity{}).
		Where("symbol IS NOT NULL AND symbol <> ''").
		Distinct("symbol").
		Order("symbol ASC").
		Pluck("symbol", &out).Error
	return out, err
}

func (r *activityRepository) List(ctx context.Context, userID string, limit int) ([]model.UserActivity, error) {
	var out []model.UserActivity
	tx := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(clampLimit(limit, 50))
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

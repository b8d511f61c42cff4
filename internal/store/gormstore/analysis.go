package gormstore

import (
	"context"
	"errors"

	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type analysisRepository struct {
	db *gorm.DB
}

func (r *analysisRepository) Create(ctx context.Context, rec *model.AnalysisRecord) error {
	if rec == nil {
		return errors.New("analysis record cannot be nil")
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *analysisRepository) ListRecent(ctx context.Context, ticker string, limit int) ([]model.AnalysisRecord, error) {
	var out []model.AnalysisRecord
	tx := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(clampLimit(limit, 20))
	if ticker != "" {
		tx = tx.Where("ticker = ?", ticker)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

package gormstore

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/gorm"
)

type signalRepository struct {
	db *gorm.DB
}

// CreateBatch 批量写入信号，空批次直接返回。
func (r *signalRepository) CreateBatch(ctx context.Context, signals []*model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(signals).Error
}

func (r *signalRepository) TopCandidates(ctx context.Context, q store.SignalQuery) ([]model.Signal, error) {
	var out []model.Signal
	tx := r.filtered(ctx, q).
		Order("sentiment DESC, volume DESC, id ASC").
		Limit(clampLimit(q.Limit, 5))
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *signalRepository) ListRecent(ctx context.Context, q store.SignalQuery) ([]model.Signal, error) {
	var out []model.Signal
	tx := r.filtered(ctx, q).
		Order("timestamp DESC, id DESC").
		Limit(clampLimit(q.Limit, 100))
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *signalRepository) Count(ctx context.Context, q store.SignalQuery) (int64, error) {
	var n int64
	err := r.filtered(ctx, q).Count(&n).Error
	return n, err
}

func (r *signalRepository) filtered(ctx context.Context, q store.SignalQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&model.Signal{})
	if !q.Since.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Since)
	}
	if q.MinSentiment != nil {
		tx = tx.Where("sentiment >= ?", *q.MinSentiment)
	}
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", q.Symbol)
	}
	return tx
}

func (r *signalRepository) LatestForSymbol(ctx context.Context, symbol string, since time.Time) (*model.Signal, error) {
	var sig model.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ?", symbol, since).
		Order("timestamp DESC, id DESC").
		First(&sig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

// AverageSentiment 返回窗口内加权情绪均值与样本数。
func (r *signalRepository) AverageSentiment(ctx context.Context, symbol string, since time.Time) (float64, int, error) {
	var row struct {
		Avg float64
		N   int
	}
	err := r.db.WithContext(ctx).Model(&model.Signal{}).
		Select("COALESCE(AVG(sentiment), 0) AS avg, COUNT(*) AS n").
		Where("symbol = ? AND timestamp >= ?", symbol, since).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Avg, row.N, nil
}

func (r *signalRepository) DeleteSince(ctx context.Context, since time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp >= ?", since).Delete(&model.Signal{})
	return res.RowsAffected, res.Error
}

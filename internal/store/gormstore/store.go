package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 描述关系型存储连接参数。
type Options struct {
	Type         string // sqlite, postgres, mysql
	Path         string // sqlite 文件路径
	DSN          string
	MaxOpenConns int
	LogLevel     string // silent, error, warn, info
}

// GormStore 基于 gorm 实现 store.Store。
type GormStore struct {
	db *gorm.DB
}

// Open 按类型选择方言并完成迁移。
func Open(opts Options) (*GormStore, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(gormLogLevel(opts.LogLevel)),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil && opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	return NewFromDB(db)
}

// NewFromDB 在已有连接上迁移表结构。
func NewFromDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return &GormStore{db: db}, nil
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case "", "sqlite":
		dsn := strings.TrimSpace(opts.DSN)
		if dsn == "" {
			path := strings.TrimSpace(opts.Path)
			if path == "" {
				return nil, fmt.Errorf("database path cannot be empty")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(opts.DSN), nil
	case "mysql":
		return mysql.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", opts.Type)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}

// DB 暴露底层连接，仅供测试与运维脚本使用。
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormUnitOfWork struct {
	tx *gorm.DB
}

func (u *gormUnitOfWork) Signals() store.SignalRepository      { return &signalRepository{db: u.tx} }
func (u *gormUnitOfWork) Positions() store.PositionRepository  { return &positionRepository{db: u.tx} }
func (u *gormUnitOfWork) Trades() store.TradeRepository        { return &tradeRepository{db: u.tx} }
func (u *gormUnitOfWork) Portfolio() store.PortfolioRepository { return &portfolioRepository{db: u.tx} }
func (u *gormUnitOfWork) Activities() store.ActivityRepository { return &activityRepository{db: u.tx} }
func (u *gormUnitOfWork) Alerts() store.AlertRepository        { return &alertRepository{db: u.tx} }
func (u *gormUnitOfWork) Snapshots() store.SnapshotRepository  { return &snapshotRepository{db: u.tx} }
func (u *gormUnitOfWork) Watchlist() store.WatchlistRepository { return &watchlistRepository{db: u.tx} }
func (u *gormUnitOfWork) Analyses() store.AnalysisRepository   { return &analysisRepository{db: u.tx} }
func (u *gormUnitOfWork) Logs() store.LogRepository            { return &logRepository{db: u.tx} }

func (u *gormUnitOfWork) Commit() error {
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	return u.tx.Rollback().Error
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

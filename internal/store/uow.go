package store

import (
	"context"
	"errors"
)

// ErrConflict 表示写入与当前状态冲突（例如 outcome 已填写）。
var ErrConflict = errors.New("store: conflicting update")

// Run 在一个事务内执行 fn：fn 返回错误或 panic 时回滚，否则提交。
func Run(ctx context.Context, s Store, fn func(UnitOfWork) error) (err error) {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			panic(p)
		}
	}()
	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return uow.Commit()
}

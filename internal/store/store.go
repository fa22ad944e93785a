package store

import (
	"context"
	"log/slog"

	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "sudooom.im.messaging/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// Store 持久化存储（PostgreSQL）
// 所有写操作都通过单条原子语句或单个事务完成，
// 任何组件都不允许对会话文档做读取-修改-写回
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New 创建存储
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: slog.Default(),
	}
}

// InitSchema 初始化表结构
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}
	return nil
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close 关闭连接池
func (s *Store) Close() {
	s.pool.Close()
}

// orderPair 归一化参与者对，保证 lo < hi
func orderPair(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}

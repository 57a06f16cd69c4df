// Package cleanup は期限切れのメール確認トークンを削除するジョブを提供する。
// 確認済み・再送済みのトークンは消費時に削除されるため、
// ここで扱うのは使われないまま期限を過ぎたトークンのみ。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TokenCleanupJob は期限切れのverification_tokensを削除するジョブ。
type TokenCleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time

	// GracePeriod は期限切れ後も残しておく期間（デフォルト: 24時間）。
	GracePeriod time.Duration
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。
func NewTokenCleanupJob(db Executor, logger *slog.Logger) *TokenCleanupJob {
	return &TokenCleanupJob{
		db:          db,
		logger:      logger,
		now:         time.Now,
		GracePeriod: 24 * time.Hour,
	}
}

// Run はexpires_atがGracePeriodより前のトークンを削除する。
// 削除対象がない場合もエラーにならない。
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.GracePeriod)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		j.logger.Error("verification token cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted count: %w", err)
	}

	j.logger.Info("verification token cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *TokenCleanupJob) Start(ctx context.Context, interval time.Duration) {
	run := func() {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("verification token cleanup will retry on next tick")
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

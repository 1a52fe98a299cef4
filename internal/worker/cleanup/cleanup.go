// Package cleanup は期限切れの認証データを削除するジョブを提供する。
// 有効期限を過ぎたセッションと、期限切れまたは使用済みのマジックリンクを
// 定期的に削除する。
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

// Recorder は削除件数の記録先。
type Recorder interface {
	RecordCleanup(kind string, count int64)
}

// target は1種類の削除対象。
type target struct {
	kind  string
	query string
}

// 使用済みのマジックリンクは監査用にGracePeriodだけ残す。
var targets = []target{
	{
		kind:  "sessions",
		query: `DELETE FROM sessions WHERE expires_at < $1`,
	},
	{
		kind:  "magic_links",
		query: `DELETE FROM magic_links WHERE expires_at < $1 OR consumed_at < $1`,
	},
}

// CleanupJob は期限切れの認証データの削除ジョブ。
// 冪等な削除処理のため、何度実行してもよい。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder Recorder

	// GracePeriod は期限切れ判定に加える猶予（デフォルト: 1時間）。
	GracePeriod time.Duration

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, recorder Recorder) *CleanupJob {
	return &CleanupJob{
		db:          db,
		logger:      logger,
		recorder:    recorder,
		GracePeriod: time.Hour,
		now:         time.Now,
	}
}

// Run は期限切れのセッションとマジックリンクを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.GracePeriod)

	total := int64(0)
	for _, t := range targets {
		result, err := j.db.ExecContext(ctx, t.query, cutoff)
		if err != nil {
			j.logger.Error("クリーンアップジョブの実行に失敗しました",
				slog.String("kind", t.kind),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%sのクリーンアップに失敗: %w", t.kind, err)
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
		if j.recorder != nil {
			j.recorder.RecordCleanup(t.kind, deleted)
		}
		total += deleted
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}

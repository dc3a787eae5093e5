// Package refresh はグループ別集計をPrometheusゲージへ定期反映するジョブを提供する。
// 集計はバックエンドAPIと同じstats.Serviceで計算し、失敗してもループは継続する。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cometab/internal/model"
)

// StatsSource は全グループの集計を返す。
type StatsSource interface {
	AllStats(ctx context.Context) ([]model.GroupStats, error)
}

// Publisher は集計値の公開先。metrics.Collectorが実装する。
type Publisher interface {
	SetGroupStats(groupName string, clicks, uniqueUsers int, ctr float64)
	RecordStatsRefreshLatency(duration time.Duration)
}

// Job は集計ゲージの更新ジョブ。
type Job struct {
	stats     StatsSource
	publisher Publisher
	logger    *slog.Logger
	Interval  time.Duration // 更新間隔（デフォルト: 1分）
}

// NewJob は新しいJobを生成する。
func NewJob(stats StatsSource, publisher Publisher, logger *slog.Logger) *Job {
	return &Job{
		stats:     stats,
		publisher: publisher,
		logger:    logger,
		Interval:  time.Minute,
	}
}

// Start は起動直後に1回、以降はIntervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	j.logger.Info("stats refresh job started", slog.Duration("interval", j.Interval))

	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("stats refresh job stopped")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("stats refresh failed", slog.String("error", err.Error()))
	}
}

// Run は全グループの集計を1回計算し、ゲージに反映する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	all, err := j.stats.AllStats(ctx)
	if err != nil {
		return fmt.Errorf("集計の取得に失敗: %w", err)
	}

	for _, st := range all {
		j.publisher.SetGroupStats(st.GroupName, st.TotalClicks, st.UniqueUsers, st.CTR)
	}

	duration := time.Since(start)
	j.publisher.RecordStatsRefreshLatency(duration)
	j.logger.Info("stats refreshed",
		slog.Int("groups", len(all)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

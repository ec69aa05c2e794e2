// Package statusrefresh はキューの表示用ステータスを定期的に再導出するワーカーを提供する。
// キューは読み取るだけで、ストアへの書き込みは行わない。
package statusrefresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/boothpost/internal/metrics"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/status"
)

// DefaultInterval は再導出の既定間隔。
const DefaultInterval = 60 * time.Second

// QueueReader はキューの読み取り専用ビュー。
type QueueReader interface {
	Queue() []model.PostItem
}

// PersonCounter は人物レコード数を返す。
type PersonCounter interface {
	Len() int
}

// Refresher は一定間隔でキューのステータス表示を再導出し、
// 集計結果をメトリクスとログに反映する。
type Refresher struct {
	queue   QueueReader
	persons PersonCounter
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
// personsとmetricsはnilでもよい。
func NewRefresher(queue QueueReader, persons PersonCounter, m metrics.MetricsCollector, logger *slog.Logger) *Refresher {
	return &Refresher{
		queue:   queue,
		persons: persons,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Start は指定間隔のティッカーでRefresherを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ステータス更新ワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	r.RunOnce()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ステータス更新ワーカーを停止しました")
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce はキューのスナップショットを1回再導出する。
func (r *Refresher) RunOnce() status.Snapshot {
	queue := r.queue.Queue()
	snap := status.Derive(queue, r.now())

	if r.metrics != nil {
		counts := make(map[string]int)
		for _, p := range queue {
			counts[string(p.Status)]++
		}
		r.metrics.SetQueueStatusCounts(counts)
		r.metrics.SetQueueCompletion(snap.Completion.Percentage)
		r.metrics.SetStaleDrafts(snap.StaleCount)
		if r.persons != nil {
			r.metrics.SetPersonRecords(r.persons.Len())
		}
	}

	if snap.StaleCount > 0 {
		r.logger.Info("放置された下書きがあります",
			slog.Int("stale_count", snap.StaleCount),
			slog.Int("queue_size", len(queue)),
		)
	}

	return snap
}

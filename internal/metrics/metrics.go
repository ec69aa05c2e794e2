// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部サービス名（upstreamラベル値）。
const (
	UpstreamKotaro   = "kotaro"
	UpstreamAnalyzer = "analyzer"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Webhook送信、上流プロキシ、ステータス更新ワーカーから利用する。
type MetricsCollector interface {
	RecordWebhookSuccess()
	RecordWebhookFailure(reason string)
	RecordWebhookStatus(statusCode int)
	RecordWebhookLatency(duration time.Duration)
	RecordUpstreamRequest(service string, success bool, duration time.Duration)
	SetQueueStatusCounts(counts map[string]int)
	SetQueueCompletion(percentage int)
	SetStaleDrafts(count int)
	SetPersonRecords(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookSuccess  prometheus.Counter
	webhookFail     *prometheus.CounterVec
	webhookStatus   *prometheus.CounterVec
	webhookLatency  prometheus.Histogram
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	queueItems      *prometheus.GaugeVec
	queueCompletion prometheus.Gauge
	staleDrafts     prometheus.Gauge
	personRecords   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boothpost_webhook_success_total",
			Help: "Webhook送信成功の合計数",
		}),
		webhookFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boothpost_webhook_fail_total",
			Help: "Webhook送信失敗の合計数",
		}, []string{"reason"}),
		webhookStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boothpost_webhook_http_status_total",
			Help: "Webhook応答のHTTPステータスコード別件数",
		}, []string{"status_code"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boothpost_webhook_latency_seconds",
			Help:    "Webhook送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boothpost_upstream_requests_total",
			Help: "外部推論・解析サービスへのリクエスト数",
		}, []string{"service", "result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boothpost_upstream_latency_seconds",
			Help:    "外部推論・解析サービスのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"}),
		queueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boothpost_queue_items",
			Help: "ステータス別のキュー件数",
		}, []string{"status"}),
		queueCompletion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boothpost_queue_completion_percent",
			Help: "キューの完了率（ready + sent）",
		}),
		staleDrafts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boothpost_queue_stale_drafts",
			Help: "5分以上放置された下書きの件数",
		}),
		personRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boothpost_person_records",
			Help: "人物データベースのレコード数",
		}),
	}

	reg.MustRegister(
		c.webhookSuccess,
		c.webhookFail,
		c.webhookStatus,
		c.webhookLatency,
		c.upstreamTotal,
		c.upstreamLatency,
		c.queueItems,
		c.queueCompletion,
		c.staleDrafts,
		c.personRecords,
	)

	return c
}

// RecordWebhookSuccess はWebhook送信成功を記録する。
func (c *Collector) RecordWebhookSuccess() {
	c.webhookSuccess.Inc()
}

// RecordWebhookFailure はWebhook送信失敗を記録する。
// reasonは "http_status" / "transport" / "not_configured" など。
func (c *Collector) RecordWebhookFailure(reason string) {
	c.webhookFail.WithLabelValues(reason).Inc()
}

// RecordWebhookStatus はWebhook応答のHTTPステータスコードを記録する。
func (c *Collector) RecordWebhookStatus(statusCode int) {
	c.webhookStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookLatency はWebhook送信のレイテンシを記録する。
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// RecordUpstreamRequest は外部サービス呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamRequest(service string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.upstreamTotal.WithLabelValues(service, result).Inc()
	c.upstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// SetQueueStatusCounts はステータス別のキュー件数を設定する。
// countsに含まれないステータスの値は0にリセットされる。
func (c *Collector) SetQueueStatusCounts(counts map[string]int) {
	c.queueItems.Reset()
	for status, n := range counts {
		c.queueItems.WithLabelValues(status).Set(float64(n))
	}
}

// SetQueueCompletion はキューの完了率を設定する。
func (c *Collector) SetQueueCompletion(percentage int) {
	c.queueCompletion.Set(float64(percentage))
}

// SetStaleDrafts は放置下書きの件数を設定する。
func (c *Collector) SetStaleDrafts(count int) {
	c.staleDrafts.Set(float64(count))
}

// SetPersonRecords は人物レコード数を設定する。
func (c *Collector) SetPersonRecords(count int) {
	c.personRecords.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

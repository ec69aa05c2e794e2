// Package webhook は投稿キューの1件を外部自動化Webhook（Make.com）へ送信する。
// 1回の呼び出しにつき送信は1回のみで、リトライは行わない。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/boothpost/internal/metrics"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/security"
)

// ErrWebhookURLNotConfigured はWebhook URLが未設定であることを表す。
// この場合ネットワークへのアクセスは一切行わない。
var ErrWebhookURLNotConfigured = errors.New("webhook URL is not configured")

// maxDrainBytes は応答ボディを読み捨てる上限。
const maxDrainBytes = 64 * 1024

// SettingsProvider は現在のアプリ設定を返す。
type SettingsProvider interface {
	Settings() model.AppSettings
}

// Service はWebhook送信サービス。
type Service struct {
	httpClient *http.Client
	settings   SettingsProvider
	sanitizer  security.CaptionSanitizerService
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	aiModel    string
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// httpClientにはタイムアウトを設定したクライアントを渡すこと。
// metricsはnilでもよい。
func NewService(
	httpClient *http.Client,
	settings SettingsProvider,
	sanitizer security.CaptionSanitizerService,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	aiModel string,
) *Service {
	return &Service{
		httpClient: httpClient,
		settings:   settings,
		sanitizer:  sanitizer,
		metrics:    m,
		logger:     logger,
		aiModel:    aiModel,
		now:        time.Now,
	}
}

// Configured はWebhook URLが設定済みかを返す。
func (s *Service) Configured() bool {
	return s.webhookURL() != ""
}

func (s *Service) webhookURL() string {
	return strings.TrimSpace(s.settings.Settings().WebhookURL)
}

// SendPost は投稿をWebhookへ1回だけPOSTする。
// URL未設定の場合はErrWebhookURLNotConfiguredを返す。
// それ以外の失敗（非2xx、通信エラー）はログに記録してfalseを返す。
func (s *Service) SendPost(ctx context.Context, post model.PostItem) (bool, error) {
	target := s.webhookURL()
	if target == "" {
		s.recordFailure("not_configured")
		return false, ErrWebhookURLNotConfigured
	}

	body, err := json.Marshal(s.BuildPayload(post, s.now()))
	if err != nil {
		return false, fmt.Errorf("ペイロードのシリアライズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Webhookリクエストの作成に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		s.recordFailure("request")
		return false, nil
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if s.metrics != nil {
		s.metrics.RecordWebhookLatency(time.Since(start))
	}
	if err != nil {
		s.logger.Error("Webhookへの送信に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		s.recordFailure("transport")
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if s.metrics != nil {
		s.metrics.RecordWebhookStatus(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("Webhookがエラーステータスを返しました",
			slog.String("post_id", post.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		s.recordFailure("http_status")
		return false, nil
	}

	s.logger.Info("Webhookへの送信が完了しました",
		slog.String("post_id", post.ID),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("payload_bytes", len(body)),
	)
	if s.metrics != nil {
		s.metrics.RecordWebhookSuccess()
	}
	return true, nil
}

func (s *Service) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookFailure(reason)
	}
}

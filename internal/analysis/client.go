// Package analysis は画像解析ワーカーのクライアントを提供する。
// 解析結果の中身は解釈せず、投稿のanalysisResultとしてそのまま保持する。
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/boothpost/internal/metrics"
)

// maxResponseSize は解析結果の最大サイズ。
const maxResponseSize = 1 * 1024 * 1024

// ErrNotConfigured は解析ワーカーのURLが未設定であることを表す。
var ErrNotConfigured = errors.New("analyzer URL is not configured")

// request は解析ワーカーへのリクエストボディ。
type request struct {
	Image    string `json:"image"`
	Category string `json:"category"`
}

// Client は画像解析ワーカーのクライアント。
type Client struct {
	httpClient *http.Client
	endpoint   string
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, endpoint string, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		metrics:    m,
		logger:     logger,
	}
}

// Configured は解析ワーカーが設定済みかを返す。
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Analyze はbase64画像とカテゴリを送信し、応答JSONをそのまま返す。
// 応答が2xx以外、またはJSONとして不正な場合はエラーを返す。
func (c *Client) Analyze(ctx context.Context, imageBase64, category string) (json.RawMessage, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(request{Image: imageBase64, Category: category})
	if err != nil {
		return nil, fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(false, start)
		c.logger.Error("画像解析ワーカーの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(false, start)
		c.logger.Error("画像解析ワーカーがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("画像解析ワーカーがステータス %d を返しました", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.record(false, start)
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if !json.Valid(raw) {
		c.record(false, start)
		return nil, fmt.Errorf("画像解析ワーカーのレスポンスがJSONではありません")
	}

	c.record(true, start)
	return json.RawMessage(raw), nil
}

func (c *Client) record(success bool, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(metrics.UpstreamAnalyzer, success, time.Since(start))
	}
}

// Package kotaro は外部AI採点サービス（Kotaro-Engine）への転送クライアントを提供する。
// 受け取った画像と付随フィールドをmultipartのまま上流へ送り、応答JSONを加工せずに返す。
package kotaro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/hitoshi/boothpost/internal/metrics"
)

const (
	// DefaultName はnameフィールド未指定時の既定値。
	DefaultName = "栞"
	// DefaultCount はcountフィールド未指定時の既定値。
	DefaultCount = "3"

	// maxResponseSize は上流応答の最大サイズ。
	maxResponseSize = 10 * 1024 * 1024
)

// ErrUpstreamNotConfigured は転送先URLが未設定であることを表す。
var ErrUpstreamNotConfigured = errors.New("kotaro upstream URL is not configured")

// UpstreamError は上流が非2xxを返したことを表す。
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("kotaro upstream returned status %d", e.StatusCode)
}

// Request は転送するフォーム内容。
type Request struct {
	Image       io.Reader
	Filename    string
	ContentType string
	Name        string
	Count       string
}

// Client はKotaro-Engineへの転送クライアント。
type Client struct {
	httpClient  *http.Client
	upstreamURL string
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// 転送先はオペレーターが設定する固定URLのため、SSRFガードは通さない。
func NewClient(httpClient *http.Client, upstreamURL string, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  httpClient,
		upstreamURL: upstreamURL,
		metrics:     m,
		logger:      logger,
	}
}

// Forward はフォームを上流へmultipartで転送し、2xxの場合は応答ボディをそのまま返す。
// nameとcountが空の場合は既定値を使う。
func (c *Client) Forward(ctx context.Context, in Request) ([]byte, error) {
	if c.upstreamURL == "" {
		return nil, ErrUpstreamNotConfigured
	}

	body, contentType, err := buildForm(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.upstreamURL, body)
	if err != nil {
		return nil, fmt.Errorf("上流リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(false, start)
		c.logger.Error("Kotaro-Engineへの転送に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("上流への転送に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.record(false, start)
		return nil, fmt.Errorf("上流レスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(false, start)
		c.logger.Warn("Kotaro-Engineがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	c.record(true, start)
	return respBody, nil
}

func (c *Client) record(success bool, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(metrics.UpstreamKotaro, success, time.Since(start))
	}
}

// buildForm はimage・name・countを持つmultipartボディを組み立てる。
func buildForm(in Request) (*bytes.Buffer, string, error) {
	name := in.Name
	if name == "" {
		name = DefaultName
	}
	count := in.Count
	if count == "" {
		count = DefaultCount
	}
	filename := in.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	partType := in.ContentType
	if partType == "" {
		partType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", partType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, in.Image); err != nil {
		return nil, "", fmt.Errorf("画像のコピーに失敗しました: %w", err)
	}

	if err := w.WriteField("name", name); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("count", count); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

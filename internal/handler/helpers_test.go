package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/boothpost/internal/appstore"
	"github.com/hitoshi/boothpost/internal/kotaro"
	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/persondb"
	"github.com/hitoshi/boothpost/internal/repository"
)

// --- モック定義 ---

// mockSender はPostSenderのモック実装。
type mockSender struct {
	configured bool
	sendPostFn func(ctx context.Context, post model.PostItem) (bool, error)
	sent       []model.PostItem
}

func (m *mockSender) Configured() bool { return m.configured }

func (m *mockSender) SendPost(ctx context.Context, post model.PostItem) (bool, error) {
	m.sent = append(m.sent, post)
	if m.sendPostFn != nil {
		return m.sendPostFn(ctx, post)
	}
	return true, nil
}

// mockAnalyzer はImageAnalyzerのモック実装。
type mockAnalyzer struct {
	configured bool
	analyzeFn  func(ctx context.Context, imageBase64, category string) (json.RawMessage, error)
}

func (m *mockAnalyzer) Configured() bool { return m.configured }

func (m *mockAnalyzer) Analyze(ctx context.Context, imageBase64, category string) (json.RawMessage, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, imageBase64, category)
	}
	return json.RawMessage(`{}`), nil
}

// mockForwarder はKotaroForwarderのモック実装。
type mockForwarder struct {
	forwardFn func(ctx context.Context, in kotaro.Request) ([]byte, error)
}

func (m *mockForwarder) Forward(ctx context.Context, in kotaro.Request) ([]byte, error) {
	if m.forwardFn != nil {
		return m.forwardFn(ctx, in)
	}
	return []byte(`{"success":true}`), nil
}

// mockValidator はURLValidatorのモック実装。
type mockValidator struct {
	validateFn func(rawURL string) error
}

func (m *mockValidator) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

var errTest = errors.New("test error")

// --- テストヘルパー ---

const testCSRFToken = "test-csrf-token"

// testEnv はルーター経由のテストで使う依存一式。
type testEnv struct {
	kv       *repository.MemoryKVRepo
	store    *appstore.Store
	persons  *persondb.Database
	sender   *mockSender
	analyzer *mockAnalyzer
	kotaro   *mockForwarder
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	kv := repository.NewMemoryKVRepo()

	env := &testEnv{
		kv:       kv,
		store:    appstore.New(ctx, kv, model.AppSettings{}),
		persons:  persondb.New(ctx, kv),
		sender:   &mockSender{configured: true},
		analyzer: &mockAnalyzer{configured: true},
		kotaro:   &mockForwarder{},
	}

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigFromPerMinute(60000, 60000))
	t.Cleanup(rl.Stop)

	env.router = NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Store:             env.store,
		URLValidator:      &mockValidator{},
		Persons:           env.persons,
		Sender:            env.sender,
		Analyzer:          env.analyzer,
		Kotaro:            env.kotaro,
		MaxUploadSize:     1 << 20,
		Storage:           kv,
		StorageBackend:    "memory",
	})
	return env
}

// do はCSRFトークン付きでリクエストを実行する。
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addPost(t *testing.T, in model.NewPost) model.PostItem {
	t.Helper()
	return e.store.AddToQueue(in)
}

func completePost() model.NewPost {
	return model.NewPost{
		Images:     []string{"data:image/jpeg;base64,QUJD"},
		BoothName:  "Booth A",
		PersonName: "Alice",
		AIComment:  "Great cosplay",
		EventInfo:  model.EventInfo{EventEn: "Expo", Category: "cosplay"},
	}
}

// parseAPIErrorResponse はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v (body=%s)", err, w.Body.String())
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, w.Body.String())
	}
}

// doHandler はルーターを介さずにハンドラー関数を直接呼び出す。
func doHandler(t *testing.T, fn http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	fn(w, req)
	return w
}

func strPtr(s string) *string { return &s }

func newRequestWithQuery(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/persons?"+query, nil)
}

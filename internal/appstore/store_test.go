package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/repository"
)

// --- モック定義 ---

type mockKV struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	putFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockKV) Put(ctx context.Context, key string, value []byte) error {
	if m.putFn != nil {
		return m.putFn(ctx, key, value)
	}
	return nil
}

func (m *mockKV) Delete(ctx context.Context, key string) error { return nil }
func (m *mockKV) Ping(ctx context.Context) error               { return nil }

// --- ヘルパー ---

var t0 = time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	s := New(context.Background(), repository.NewMemoryKVRepo(), model.AppSettings{}, WithClock(clock.Now))
	return s, clock
}

func strPtr(s string) *string { return &s }

func statusPtr(s model.PostStatus) *model.PostStatus { return &s }

func intPtr(i int) *int { return &i }

func completeNewPost() model.NewPost {
	return model.NewPost{
		BoothName:  "Booth A",
		PersonName: "Mika",
		AIComment:  "comment",
	}
}

// --- テスト ---

func TestNew_Defaults(t *testing.T) {
	s, _ := newTestStore(t)
	st := s.State()

	if st.Step != DefaultStep {
		t.Errorf("Step = %d, want %d", st.Step, DefaultStep)
	}
	if st.Queue == nil || len(st.Queue) != 0 {
		t.Errorf("Queue = %v, want empty non-nil", st.Queue)
	}
	if st.CurrentEditIndex != nil {
		t.Errorf("CurrentEditIndex = %v, want nil", *st.CurrentEditIndex)
	}
	if st.HasCurrentEventInfo {
		t.Error("HasCurrentEventInfo should be false")
	}
}

func TestNew_SeedsDefaultSettings(t *testing.T) {
	defaults := model.AppSettings{WebhookURL: "https://hook.example.com/x"}
	s := New(context.Background(), repository.NewMemoryKVRepo(), defaults)

	if got := s.Settings().WebhookURL; got != defaults.WebhookURL {
		t.Errorf("WebhookURL = %q, want %q", got, defaults.WebhookURL)
	}
}

func TestAddToQueue_AppendsWithUniqueID(t *testing.T) {
	s, clock := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		before := s.Len()
		item := s.AddToQueue(model.NewPost{BoothName: fmt.Sprintf("booth-%d", i)})

		queue := s.Queue()
		if len(queue) != before+1 {
			t.Fatalf("len = %d, want %d", len(queue), before+1)
		}
		if queue[len(queue)-1].ID != item.ID {
			t.Errorf("new item is not last")
		}
		if item.ID == "" || seen[item.ID] {
			t.Fatalf("duplicate or empty id %q", item.ID)
		}
		seen[item.ID] = true
		clock.Advance(time.Millisecond)
	}
}

func TestAddToQueue_RegeneratesCollidingID(t *testing.T) {
	ids := []string{"same", "same", "other"}
	n := 0
	s := New(context.Background(), repository.NewMemoryKVRepo(), model.AppSettings{},
		WithIDGenerator(func() string {
			id := ids[n]
			n++
			return id
		}))

	first := s.AddToQueue(model.NewPost{})
	second := s.AddToQueue(model.NewPost{})

	if first.ID != "same" || second.ID != "other" {
		t.Errorf("ids = %q, %q; want same, other", first.ID, second.ID)
	}
}

func TestAddToQueue_SetsTimestampsAndDefaultStatus(t *testing.T) {
	s, _ := newTestStore(t)
	item := s.AddToQueue(model.NewPost{})

	if !item.CreatedAt.Equal(t0) || !item.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v, want %v", item.CreatedAt, item.UpdatedAt, t0)
	}
	if item.Status != model.PostStatusDraft {
		t.Errorf("Status = %q, want draft", item.Status)
	}
}

func TestAddToQueue_InitialStatus(t *testing.T) {
	incomplete := model.NewPost{BoothName: "A"}
	ready := completeNewPost()
	ready.Status = model.PostStatusReady

	tests := []struct {
		name   string
		in     model.NewPost
		status model.PostStatus
		want   model.PostStatus
	}{
		{"ready with required fields kept", ready, model.PostStatusReady, model.PostStatusReady},
		{"ready without required fields becomes draft", incomplete, model.PostStatusReady, model.PostStatusDraft},
		{"sending becomes draft", completeNewPost(), model.PostStatusSending, model.PostStatusDraft},
		{"sent becomes draft", completeNewPost(), model.PostStatusSent, model.PostStatusDraft},
		{"failed becomes draft", completeNewPost(), model.PostStatusFailed, model.PostStatusDraft},
		{"unknown becomes draft", completeNewPost(), "archived", model.PostStatusDraft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			in := tt.in
			in.Status = tt.status

			item := s.AddToQueue(in)
			if item.Status != tt.want {
				t.Errorf("Status = %q, want %q", item.Status, tt.want)
			}
			if s.Len() != 1 {
				t.Errorf("Len() = %d, want 1", s.Len())
			}
		})
	}
}

func TestUpdateQueueItem_MergesAndRefreshesUpdatedAt(t *testing.T) {
	s, clock := newTestStore(t)
	orig := s.AddToQueue(model.NewPost{BoothName: "A", PersonName: "P"})
	clock.Advance(time.Minute)

	got, ok, err := s.UpdateQueueItem(0, model.PostUpdate{BoothName: strPtr("B")})
	if err != nil || !ok {
		t.Fatalf("UpdateQueueItem ok=%v err=%v", ok, err)
	}
	if got.BoothName != "B" || got.PersonName != "P" {
		t.Errorf("merge result = %+v", got)
	}
	if got.ID != orig.ID || !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Error("id or createdAt changed")
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}
}

func TestUpdateQueueItem_PreservesIDAndCreatedAtFromJSONPayload(t *testing.T) {
	s, clock := newTestStore(t)
	orig := s.AddToQueue(model.NewPost{})
	clock.Advance(time.Hour)

	// クライアントがidやcreatedAtを含めて送ってきても無視される
	var update model.PostUpdate
	payload := `{"id":"hijack","createdAt":"2000-01-01T00:00:00Z","boothName":"X"}`
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, _, err := s.UpdateQueueItem(0, update)
	if err != nil {
		t.Fatalf("UpdateQueueItem: %v", err)
	}
	if got.ID != orig.ID {
		t.Errorf("ID = %q, want %q", got.ID, orig.ID)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
}

func TestOutOfRangeIndex_IsNoOp(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.AddToQueue(model.NewPost{BoothName: "a"})
	b := s.AddToQueue(model.NewPost{BoothName: "b"})

	for _, idx := range []int{-1, 2, 100} {
		if _, ok, err := s.UpdateQueueItem(idx, model.PostUpdate{BoothName: strPtr("z")}); ok || err != nil {
			t.Errorf("UpdateQueueItem(%d) ok=%v err=%v", idx, ok, err)
		}
		if s.RemoveFromQueue(idx) {
			t.Errorf("RemoveFromQueue(%d) returned true", idx)
		}
		if _, ok := s.Item(idx); ok {
			t.Errorf("Item(%d) returned ok", idx)
		}
	}

	queue := s.Queue()
	if len(queue) != 2 || queue[0].ID != a.ID || queue[1].ID != b.ID {
		t.Errorf("queue changed: %+v", queue)
	}
	if queue[0].BoothName != "a" || queue[1].BoothName != "b" {
		t.Errorf("item contents changed: %+v", queue)
	}
}

func TestRemoveFromQueue_ShiftsDown(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.AddToQueue(model.NewPost{})
	s.AddToQueue(model.NewPost{})
	c := s.AddToQueue(model.NewPost{})

	if !s.RemoveFromQueue(1) {
		t.Fatal("RemoveFromQueue(1) = false")
	}
	queue := s.Queue()
	if len(queue) != 2 || queue[0].ID != a.ID || queue[1].ID != c.ID {
		t.Errorf("queue after remove = %+v", queue)
	}
}

func TestClearQueue_ResetsEditIndex(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue(model.NewPost{})
	s.AddToQueue(model.NewPost{})
	s.SetCurrentEditIndex(intPtr(1))

	s.ClearQueue()

	st := s.State()
	if len(st.Queue) != 0 || st.CurrentEditIndex != nil {
		t.Errorf("after clear: queue=%d editIndex=%v", len(st.Queue), st.CurrentEditIndex)
	}
}

func TestSetCurrentEditIndex_CopiesValue(t *testing.T) {
	s, _ := newTestStore(t)
	idx := 3
	s.SetCurrentEditIndex(&idx)
	idx = 7

	if got := s.State().CurrentEditIndex; got == nil || *got != 3 {
		t.Errorf("CurrentEditIndex = %v, want 3", got)
	}

	s.SetCurrentEditIndex(nil)
	if s.State().CurrentEditIndex != nil {
		t.Error("CurrentEditIndex should be nil")
	}
}

func TestSetStep(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetStep(3)
	if s.State().Step != 3 {
		t.Errorf("Step = %d, want 3", s.State().Step)
	}
}

func TestSetEventInfo_Merges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.SetEventInfo(ctx, model.EventInfoUpdate{EventEn: strPtr("Comiket"), Venue: strPtr("Big Sight")})
	got := s.SetEventInfo(ctx, model.EventInfoUpdate{Venue: strPtr("Makuhari")})

	if got.EventEn != "Comiket" || got.Venue != "Makuhari" {
		t.Errorf("EventInfo = %+v", got)
	}
}

func TestSetCurrentEventInfo_MirrorsLegacySlot(t *testing.T) {
	s, _ := newTestStore(t)
	info := model.EventInfo{EventEn: "TGS", EventJp: "東京ゲームショウ", Hashtags: "#TGS"}

	s.SetCurrentEventInfo(context.Background(), info)

	st := s.State()
	if !st.HasCurrentEventInfo {
		t.Error("HasCurrentEventInfo should be true")
	}
	if st.CurrentEventInfo != info || st.EventInfo != info {
		t.Errorf("current=%+v legacy=%+v, want both %+v", st.CurrentEventInfo, st.EventInfo, info)
	}

	s.ClearCurrentEventInfo()
	st = s.State()
	if st.HasCurrentEventInfo || st.CurrentEventInfo != (model.EventInfo{}) {
		t.Errorf("after clear: %+v", st)
	}
	if st.EventInfo != info {
		t.Errorf("legacy slot changed by clear: %+v", st.EventInfo)
	}
}

func TestSetSettings_Merges(t *testing.T) {
	s := New(context.Background(), repository.NewMemoryKVRepo(), model.AppSettings{WebhookURL: "https://a.example.com"})

	got := s.SetSettings(context.Background(), model.SettingsUpdate{
		DefaultEventInfo: &model.EventInfo{Category: "cosplay"},
	})
	if got.WebhookURL != "https://a.example.com" || got.DefaultEventInfo.Category != "cosplay" {
		t.Errorf("settings = %+v", got)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepo()

	s := New(ctx, kv, model.AppSettings{})
	s.SetSettings(ctx, model.SettingsUpdate{WebhookURL: strPtr("https://hook.example.com/abc")})
	s.SetEventInfo(ctx, model.EventInfoUpdate{EventEn: strPtr("Comiket"), Hashtags: strPtr("#C105")})
	s.AddToQueue(completeNewPost())
	s.SetCurrentEditIndex(intPtr(0))
	s.SetStep(4)

	reloaded := New(ctx, kv, model.AppSettings{WebhookURL: "https://ignored.example.com"})
	st := reloaded.State()

	if st.Settings.WebhookURL != "https://hook.example.com/abc" {
		t.Errorf("WebhookURL = %q", st.Settings.WebhookURL)
	}
	if st.EventInfo.EventEn != "Comiket" || st.EventInfo.Hashtags != "#C105" {
		t.Errorf("EventInfo = %+v", st.EventInfo)
	}
	if len(st.Queue) != 0 {
		t.Errorf("queue survived reload: %d items", len(st.Queue))
	}
	if st.CurrentEditIndex != nil {
		t.Error("edit index survived reload")
	}
	if st.Step != DefaultStep {
		t.Errorf("Step = %d, want %d", st.Step, DefaultStep)
	}
}

func TestPersistence_StoresOnlySettingsAndEventInfo(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepo()
	s := New(ctx, kv, model.AppSettings{})

	s.AddToQueue(model.NewPost{Image: "data:image/png;base64,AAAA"})
	s.SetSettings(ctx, model.SettingsUpdate{WebhookURL: strPtr("https://x.example.com")})

	raw, err := kv.Get(ctx, StorageKey)
	if err != nil || raw == nil {
		t.Fatalf("Get: %v, %v", raw, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc) != 2 {
		t.Errorf("persisted keys = %v, want settings and eventInfo only", doc)
	}
	if _, ok := doc["settings"]; !ok {
		t.Error("settings missing")
	}
	if _, ok := doc["eventInfo"]; !ok {
		t.Error("eventInfo missing")
	}
	if strings.Contains(string(raw), "base64") {
		t.Error("queue image payload leaked into durable storage")
	}
}

func TestLoad_CorruptDataFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepo()
	_ = kv.Put(ctx, StorageKey, []byte("{not json"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := New(ctx, kv, model.AppSettings{WebhookURL: "https://default.example.com"}, WithLogger(logger))

	if got := s.Settings().WebhookURL; got != "https://default.example.com" {
		t.Errorf("WebhookURL = %q", got)
	}
	if !strings.Contains(buf.String(), "破損") {
		t.Errorf("expected corrupt warning, got %s", buf.String())
	}
}

func TestLoad_ReadErrorFallsBackToDefaults(t *testing.T) {
	kv := &mockKV{
		getFn: func(ctx context.Context, key string) ([]byte, error) {
			return nil, errors.New("connection refused")
		},
	}
	s := New(context.Background(), kv, model.AppSettings{WebhookURL: "https://d.example.com"})

	if got := s.Settings().WebhookURL; got != "https://d.example.com" {
		t.Errorf("WebhookURL = %q", got)
	}
}

func TestSave_WriteErrorIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	kv := &mockKV{
		putFn: func(ctx context.Context, key string, value []byte) error {
			return errors.New("disk full")
		},
	}
	s := New(context.Background(), kv, model.AppSettings{}, WithLogger(logger))

	got := s.SetSettings(context.Background(), model.SettingsUpdate{WebhookURL: strPtr("https://x.example.com")})
	if got.WebhookURL != "https://x.example.com" {
		t.Errorf("in-memory settings not updated: %+v", got)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected write failure to be logged, got %s", buf.String())
	}
}

func TestUpdateQueueItem_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    model.PostStatus
		to      model.PostStatus
		wantErr bool
	}{
		{"draft to ready", model.PostStatusDraft, model.PostStatusReady, false},
		{"draft to sending", model.PostStatusDraft, model.PostStatusSending, false},
		{"draft to sent", model.PostStatusDraft, model.PostStatusSent, true},
		{"ready to draft", model.PostStatusReady, model.PostStatusDraft, false},
		{"ready to sending", model.PostStatusReady, model.PostStatusSending, false},
		{"sending to sent", model.PostStatusSending, model.PostStatusSent, false},
		{"sending to failed", model.PostStatusSending, model.PostStatusFailed, false},
		{"sending to draft", model.PostStatusSending, model.PostStatusDraft, true},
		{"failed to sending", model.PostStatusFailed, model.PostStatusSending, false},
		{"failed to draft", model.PostStatusFailed, model.PostStatusDraft, false},
		{"sent to draft", model.PostStatusSent, model.PostStatusDraft, true},
		{"sent to sent", model.PostStatusSent, model.PostStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			in := completeNewPost()
			in.Status = tt.from
			orig := s.AddToQueue(in)

			got, ok, err := s.UpdateQueueItem(0, model.PostUpdate{Status: statusPtr(tt.to)})
			if !ok {
				t.Fatal("ok = false")
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("err = %v, want ErrInvalidTransition", err)
				}
				current, _ := s.Item(0)
				if current.Status != tt.from || !current.UpdatedAt.Equal(orig.UpdatedAt) {
					t.Errorf("item changed on rejected transition: %+v", current)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.to {
				t.Errorf("Status = %q, want %q", got.Status, tt.to)
			}
		})
	}
}

func TestUpdateQueueItem_ReadyRequiresFields(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue(model.NewPost{BoothName: "A"})

	_, _, err := s.UpdateQueueItem(0, model.PostUpdate{Status: statusPtr(model.PostStatusReady)})
	var te *TransitionError
	if !errors.As(err, &te) || te.Reason == "" {
		t.Fatalf("err = %v, want TransitionError with reason", err)
	}

	// 同じ更新で不足フィールドを埋めれば遷移できる
	got, _, err := s.UpdateQueueItem(0, model.PostUpdate{
		PersonName: strPtr("Mika"),
		AIComment:  strPtr("hello"),
		Status:     statusPtr(model.PostStatusReady),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.PostStatusReady {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestUpdateQueueItem_UnknownStatusRejected(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue(model.NewPost{})

	_, _, err := s.UpdateQueueItem(0, model.PostUpdate{Status: statusPtr("archived")})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateQueueItemByID(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue(model.NewPost{BoothName: "a"})
	b := s.AddToQueue(model.NewPost{BoothName: "b"})

	s.RemoveFromQueue(0)

	got, ok, err := s.UpdateQueueItemByID(b.ID, model.PostUpdate{BoothName: strPtr("b2")})
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.ID != b.ID || got.BoothName != "b2" {
		t.Errorf("got %+v", got)
	}

	if _, ok, _ := s.UpdateQueueItemByID("missing", model.PostUpdate{}); ok {
		t.Error("missing id should not be found")
	}
}

func TestQueue_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue(model.NewPost{Images: []string{"img1"}})

	q := s.Queue()
	q[0].BoothName = "mutated"
	q[0].Images[0] = "mutated"

	item, _ := s.Item(0)
	if item.BoothName == "mutated" || item.Images[0] == "mutated" {
		t.Errorf("store aliased by returned slice: %+v", item)
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddToQueue(model.NewPost{})
		}()
	}
	wg.Wait()

	queue := s.Queue()
	if len(queue) != 50 {
		t.Fatalf("len = %d, want 50", len(queue))
	}
	ids := map[string]bool{}
	for _, p := range queue {
		if ids[p.ID] {
			t.Fatalf("duplicate id %q", p.ID)
		}
		ids[p.ID] = true
	}
}

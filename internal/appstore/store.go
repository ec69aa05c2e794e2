// Package appstore は投稿キュー・編集位置・ウィザードステップ・設定を保持する単一の状態ストアを提供する。
//
// 永続化されるのは設定と旧形式のイベント情報のみで、投稿キューと編集位置は
// 常にメモリ上にのみ存在する（再起動後は空）。
package appstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/repository"
)

// StorageKey は永続化レコードのキー。
const StorageKey = "app-store"

// DefaultStep は起動直後のウィザードステップ。
const DefaultStep = 1

// persistedState は永続化対象の部分状態。
// キューを含めないことで、キューが永続化されないことを型で保証する。
type persistedState struct {
	Settings  model.AppSettings `json:"settings"`
	EventInfo model.EventInfo   `json:"eventInfo"`
}

// State はストア全体のスナップショット。
type State struct {
	Step                int               `json:"step"`
	EventInfo           model.EventInfo   `json:"eventInfo"`
	Queue               []model.PostItem  `json:"queue"`
	CurrentEditIndex    *int              `json:"currentEditIndex"`
	Settings            model.AppSettings `json:"settings"`
	CurrentEventInfo    model.EventInfo   `json:"currentEventInfo"`
	HasCurrentEventInfo bool              `json:"hasCurrentEventInfo"`
}

// Store はアプリ状態のストア。
// HTTPハンドラから並行に呼ばれるため、全操作を1つのミューテックスで直列化する。
type Store struct {
	mu     sync.Mutex
	kv     repository.KVStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	step                int
	eventInfo           model.EventInfo
	queue               []model.PostItem
	currentEditIndex    *int
	settings            model.AppSettings
	currentEventInfo    model.EventInfo
	hasCurrentEventInfo bool
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator はID生成関数を差し替える。
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New はStoreを生成し、永続化済みの設定とイベント情報を読み込む。
// 読み込みに失敗した場合やデータが壊れている場合はdefaultsで開始する。
func New(ctx context.Context, kv repository.KVStore, defaults model.AppSettings, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    newPostID,
		step:     DefaultStep,
		queue:    []model.PostItem{},
		settings: defaults,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.load(ctx)
	return s
}

// newPostID は時刻順にソート可能なUUIDv7を生成する。
// 生成に失敗した場合はランダムなUUIDv4にフォールバックする。
func newPostID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) load(ctx context.Context) {
	raw, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("アプリ設定の読み込みに失敗しました。既定値で開始します", slog.String("error", err.Error()))
		return
	}
	if raw == nil {
		return
	}

	var p persistedState
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("アプリ設定が破損しています。既定値で開始します", slog.String("error", err.Error()))
		return
	}
	s.settings = p.Settings
	s.eventInfo = p.EventInfo
}

// persistLocked は設定とイベント情報を書き込む。失敗はログに記録して握りつぶす。
// 呼び出し側でs.muを保持していること。
func (s *Store) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(persistedState{Settings: s.settings, EventInfo: s.eventInfo})
	if err != nil {
		s.logger.Error("アプリ設定のシリアライズに失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := s.kv.Put(ctx, StorageKey, raw); err != nil {
		s.logger.Warn("アプリ設定の保存に失敗しました", slog.String("error", err.Error()))
	}
}

// State はストア全体のコピーを返す。
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Step:                s.step,
		EventInfo:           s.eventInfo,
		Queue:               s.queueCopyLocked(),
		CurrentEditIndex:    copyIndex(s.currentEditIndex),
		Settings:            s.settings,
		CurrentEventInfo:    s.currentEventInfo,
		HasCurrentEventInfo: s.hasCurrentEventInfo,
	}
}

// Settings は現在の設定を返す。
func (s *Store) Settings() model.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Queue はキューのコピーを返す。
func (s *Store) Queue() []model.PostItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueCopyLocked()
}

// Len はキューの件数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Item は指定位置のアイテムのコピーを返す。範囲外の場合はfalse。
func (s *Store) Item(index int) (model.PostItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inRangeLocked(index) {
		return model.PostItem{}, false
	}
	return s.queue[index].Clone(), true
}

// IndexOf はIDに対応する現在の位置を返す。見つからない場合は-1。
func (s *Store) IndexOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(id)
}

// SetStep はウィザードステップを設定する。
func (s *Store) SetStep(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
}

// SetEventInfo は旧形式のイベント情報に部分更新をマージして保存する。
func (s *Store) SetEventInfo(ctx context.Context, update model.EventInfoUpdate) model.EventInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventInfo = update.Apply(s.eventInfo)
	s.persistLocked(ctx)
	return s.eventInfo
}

// AddToQueue は新しい投稿をキュー末尾に追加する。
// IDと作成・更新日時はストアが付与する。ステータス未指定の場合はdraft。
func (s *Store) AddToQueue(in model.NewPost) model.PostItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for s.indexOfLocked(id) >= 0 {
		id = s.newID()
	}

	now := s.now()
	item := model.PostItem{
		ID:             id,
		Image:          in.Image,
		Images:         in.Images,
		BoothName:      in.BoothName,
		BoothAccount:   in.BoothAccount,
		PersonRole:     in.PersonRole,
		PersonName:     in.PersonName,
		PersonAccount:  in.PersonAccount,
		AIComment:      in.AIComment,
		AnalysisResult: in.AnalysisResult,
		Status:         in.Status,
		EventInfo:      in.EventInfo,
		ImageSettings:  in.ImageSettings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := CheckInitialStatus(in); err != nil || item.Status == "" {
		if err != nil {
			s.logger.Warn("作成時に指定できないステータスのため下書きとして追加します",
				slog.String("post_id", id),
				slog.String("status", string(in.Status)),
			)
		}
		item.Status = model.PostStatusDraft
	}
	item = item.Clone()

	s.queue = append(s.queue, item)
	return item.Clone()
}

// UpdateQueueItem は指定位置のアイテムに部分更新を浅くマージし、UpdatedAtを更新する。
// 範囲外の場合は何もせずokにfalseを返す。
// ステータスの遷移が許可されていない場合はエラーを返し、アイテムは変更しない。
func (s *Store) UpdateQueueItem(index int, update model.PostUpdate) (model.PostItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(index, update)
}

// UpdateQueueItemByID はIDで対象を特定して更新する。
// 並行する削除で位置がずれても別のアイテムを更新しない。
func (s *Store) UpdateQueueItemByID(id string, update model.PostUpdate) (model.PostItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(s.indexOfLocked(id), update)
}

func (s *Store) updateLocked(index int, update model.PostUpdate) (model.PostItem, bool, error) {
	if !s.inRangeLocked(index) {
		return model.PostItem{}, false, nil
	}

	before := s.queue[index]
	after := update.Apply(before.Clone())

	if update.Status != nil {
		if err := checkTransition(before, after); err != nil {
			return before.Clone(), true, err
		}
	}

	after.ID = before.ID
	after.CreatedAt = before.CreatedAt
	after.UpdatedAt = s.now()

	s.queue[index] = after
	return after.Clone(), true, nil
}

// RemoveFromQueue は指定位置のアイテムを1件削除し、後続を詰める。
// 範囲外の場合は何もせずfalseを返す。
func (s *Store) RemoveFromQueue(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inRangeLocked(index) {
		return false
	}
	s.queue = append(s.queue[:index], s.queue[index+1:]...)
	return true
}

// SetCurrentEditIndex は編集対象の位置を設定する。nilで選択解除。
func (s *Store) SetCurrentEditIndex(index *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentEditIndex = copyIndex(index)
}

// ClearQueue はキューと編集位置を同時にクリアする。
func (s *Store) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = []model.PostItem{}
	s.currentEditIndex = nil
}

// SetSettings は設定に部分更新をマージして保存する。
func (s *Store) SetSettings(ctx context.Context, update model.SettingsUpdate) model.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = update.Apply(s.settings)
	s.persistLocked(ctx)
	return s.settings
}

// SetCurrentEventInfo は現在のイベントを設定し、旧形式のイベント情報にも同じ値を反映する。
func (s *Store) SetCurrentEventInfo(ctx context.Context, info model.EventInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentEventInfo = info
	s.hasCurrentEventInfo = true
	s.eventInfo = info
	s.persistLocked(ctx)
}

// ClearCurrentEventInfo は現在のイベントを空に戻す。旧形式のイベント情報は変更しない。
func (s *Store) ClearCurrentEventInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentEventInfo = model.EventInfo{}
	s.hasCurrentEventInfo = false
}

func (s *Store) inRangeLocked(index int) bool {
	return index >= 0 && index < len(s.queue)
}

func (s *Store) indexOfLocked(id string) int {
	for i := range s.queue {
		if s.queue[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) queueCopyLocked() []model.PostItem {
	out := make([]model.PostItem, len(s.queue))
	for i := range s.queue {
		out[i] = s.queue[i].Clone()
	}
	return out
}

func copyIndex(index *int) *int {
	if index == nil {
		return nil
	}
	v := *index
	return &v
}

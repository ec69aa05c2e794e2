// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"

	"github.com/hitoshi/boothpost/internal/appstore"
	"github.com/hitoshi/boothpost/internal/kotaro"
	"github.com/hitoshi/boothpost/internal/model"
)

// AppStore はハンドラーが必要とするアプリ状態ストアのインターフェース。
// appstore.Storeが実装する。
type AppStore interface {
	State() appstore.State
	Settings() model.AppSettings
	Queue() []model.PostItem
	Item(index int) (model.PostItem, bool)
	IndexOf(id string) int

	SetStep(step int)
	SetEventInfo(ctx context.Context, update model.EventInfoUpdate) model.EventInfo
	AddToQueue(in model.NewPost) model.PostItem
	UpdateQueueItem(index int, update model.PostUpdate) (model.PostItem, bool, error)
	UpdateQueueItemByID(id string, update model.PostUpdate) (model.PostItem, bool, error)
	RemoveFromQueue(index int) bool
	SetCurrentEditIndex(index *int)
	ClearQueue()
	SetSettings(ctx context.Context, update model.SettingsUpdate) model.AppSettings
	SetCurrentEventInfo(ctx context.Context, info model.EventInfo)
	ClearCurrentEventInfo()
}

// PersonDirectory は人物データベースのインターフェース。
type PersonDirectory interface {
	Search(query string, limit int) []model.PersonRecord
	GetRecent(limit int) []model.PersonRecord
	Add(ctx context.Context, in model.PersonInput) model.PersonRecord
}

// PostSender はWebhook送信のインターフェース。
type PostSender interface {
	Configured() bool
	SendPost(ctx context.Context, post model.PostItem) (bool, error)
}

// ImageAnalyzer は画像解析ワーカーのインターフェース。
type ImageAnalyzer interface {
	Configured() bool
	Analyze(ctx context.Context, imageBase64, category string) (json.RawMessage, error)
}

// KotaroForwarder はKotaro-Engineへの転送インターフェース。
type KotaroForwarder interface {
	Forward(ctx context.Context, in kotaro.Request) ([]byte, error)
}

// URLValidator はWebhook URLの事前検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Pinger はストレージの疎通確認インターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

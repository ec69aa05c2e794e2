// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// MaxImagesPerPost は1投稿に添付できる画像の上限枚数。
const MaxImagesPerPost = 4

// PostStatus は投稿キューアイテムの状態を表す。
type PostStatus string

const (
	// PostStatusDraft は編集中の下書き状態。
	PostStatusDraft PostStatus = "draft"
	// PostStatusReady は送信準備が整った状態。
	PostStatusReady PostStatus = "ready"
	// PostStatusSending はWebhookへ送信中の状態。
	PostStatusSending PostStatus = "sending"
	// PostStatusSent は送信済みの状態。
	PostStatusSent PostStatus = "sent"
	// PostStatusFailed は送信に失敗した状態。
	PostStatusFailed PostStatus = "failed"
)

// Valid は既知のステータス値かどうかを返す。
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusReady, PostStatusSending, PostStatusSent, PostStatusFailed:
		return true
	default:
		return false
	}
}

// EventInfo は投稿やバッチに付与するイベントの説明情報。
// 識別子を持たない値オブジェクト。
type EventInfo struct {
	EventEn  string `json:"eventEn"`
	EventJp  string `json:"eventJp"`
	Date     string `json:"date"`
	Venue    string `json:"venue"`
	Category string `json:"category"`
	Hashtags string `json:"hashtags"`
}

// EventInfoUpdate はEventInfoの部分更新。nilのフィールドは変更しない。
type EventInfoUpdate struct {
	EventEn  *string `json:"eventEn,omitempty"`
	EventJp  *string `json:"eventJp,omitempty"`
	Date     *string `json:"date,omitempty"`
	Venue    *string `json:"venue,omitempty"`
	Category *string `json:"category,omitempty"`
	Hashtags *string `json:"hashtags,omitempty"`
}

// Apply は部分更新をEventInfoにマージした結果を返す。
func (u EventInfoUpdate) Apply(info EventInfo) EventInfo {
	if u.EventEn != nil {
		info.EventEn = *u.EventEn
	}
	if u.EventJp != nil {
		info.EventJp = *u.EventJp
	}
	if u.Date != nil {
		info.Date = *u.Date
	}
	if u.Venue != nil {
		info.Venue = *u.Venue
	}
	if u.Category != nil {
		info.Category = *u.Category
	}
	if u.Hashtags != nil {
		info.Hashtags = *u.Hashtags
	}
	return info
}

// CropArea は切り抜き範囲（ピクセル単位）。
type CropArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImageSettings は画像の切り抜き・フィルタ調整値。
type ImageSettings struct {
	Crop       *CropArea `json:"crop,omitempty"`
	Rotation   float64   `json:"rotation"`
	Brightness float64   `json:"brightness"`
	Contrast   float64   `json:"contrast"`
	Saturation float64   `json:"saturation"`
	Filter     string    `json:"filter,omitempty"`
}

// PostItem は投稿キューの1エントリ。
// IDとCreatedAtは生成後に変更されない。永続化されない。
type PostItem struct {
	ID             string          `json:"id"`
	Image          string          `json:"image,omitempty"`  // 旧形式の単一画像
	Images         []string        `json:"images,omitempty"` // 最大4枚
	BoothName      string          `json:"boothName"`
	BoothAccount   string          `json:"boothAccount"`
	PersonRole     string          `json:"personRole"`
	PersonName     string          `json:"personName"`
	PersonAccount  string          `json:"personAccount"`
	AIComment      string          `json:"aiComment"`
	AnalysisResult json.RawMessage `json:"analysisResult,omitempty"` // 中身は解釈しない
	Status         PostStatus      `json:"status"`
	EventInfo      EventInfo       `json:"eventInfo"`
	ImageSettings  *ImageSettings  `json:"imageSettings,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// PrimaryImage は送信に使う画像を返す。
// 複数画像がある場合は先頭、なければ旧形式の単一画像を返す。
func (p PostItem) PrimaryImage() string {
	if len(p.Images) > 0 && p.Images[0] != "" {
		return p.Images[0]
	}
	return p.Image
}

// Clone はスライスとポインタを複製したコピーを返す。
func (p PostItem) Clone() PostItem {
	c := p
	if p.Images != nil {
		c.Images = append([]string(nil), p.Images...)
	}
	if p.AnalysisResult != nil {
		c.AnalysisResult = append(json.RawMessage(nil), p.AnalysisResult...)
	}
	if p.ImageSettings != nil {
		s := *p.ImageSettings
		if s.Crop != nil {
			crop := *s.Crop
			s.Crop = &crop
		}
		c.ImageSettings = &s
	}
	return c
}

// NewPost はキュー追加時の入力。IDとタイムスタンプは含まない。
type NewPost struct {
	Image          string          `json:"image,omitempty"`
	Images         []string        `json:"images,omitempty"`
	BoothName      string          `json:"boothName"`
	BoothAccount   string          `json:"boothAccount"`
	PersonRole     string          `json:"personRole"`
	PersonName     string          `json:"personName"`
	PersonAccount  string          `json:"personAccount"`
	AIComment      string          `json:"aiComment"`
	AnalysisResult json.RawMessage `json:"analysisResult,omitempty"`
	Status         PostStatus      `json:"status"`
	EventInfo      EventInfo       `json:"eventInfo"`
	ImageSettings  *ImageSettings  `json:"imageSettings,omitempty"`
}

// PostUpdate はキューアイテムの部分更新。nilのフィールドは変更しない。
// IDとCreatedAtは更新対象に含めない。
type PostUpdate struct {
	Image          *string          `json:"image,omitempty"`
	Images         *[]string        `json:"images,omitempty"`
	BoothName      *string          `json:"boothName,omitempty"`
	BoothAccount   *string          `json:"boothAccount,omitempty"`
	PersonRole     *string          `json:"personRole,omitempty"`
	PersonName     *string          `json:"personName,omitempty"`
	PersonAccount  *string          `json:"personAccount,omitempty"`
	AIComment      *string          `json:"aiComment,omitempty"`
	AnalysisResult *json.RawMessage `json:"analysisResult,omitempty"`
	Status         *PostStatus      `json:"status,omitempty"`
	EventInfo      *EventInfo       `json:"eventInfo,omitempty"`
	ImageSettings  *ImageSettings   `json:"imageSettings,omitempty"`
}

// Apply は部分更新をPostItemに浅くマージした結果を返す。
// UpdatedAtの更新は呼び出し側の責務。
func (u PostUpdate) Apply(p PostItem) PostItem {
	if u.Image != nil {
		p.Image = *u.Image
	}
	if u.Images != nil {
		p.Images = append([]string(nil), (*u.Images)...)
	}
	if u.BoothName != nil {
		p.BoothName = *u.BoothName
	}
	if u.BoothAccount != nil {
		p.BoothAccount = *u.BoothAccount
	}
	if u.PersonRole != nil {
		p.PersonRole = *u.PersonRole
	}
	if u.PersonName != nil {
		p.PersonName = *u.PersonName
	}
	if u.PersonAccount != nil {
		p.PersonAccount = *u.PersonAccount
	}
	if u.AIComment != nil {
		p.AIComment = *u.AIComment
	}
	if u.AnalysisResult != nil {
		p.AnalysisResult = append(json.RawMessage(nil), (*u.AnalysisResult)...)
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.EventInfo != nil {
		p.EventInfo = *u.EventInfo
	}
	if u.ImageSettings != nil {
		s := *u.ImageSettings
		p.ImageSettings = &s
	}
	return p
}

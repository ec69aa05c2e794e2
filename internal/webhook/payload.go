package webhook

import (
	"strings"
	"time"

	"github.com/hitoshi/boothpost/internal/model"
)

// timestampLayout はペイロードのtimestamp形式（UTC、ミリ秒、Z終端）。
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Payload はWebhookに送信するJSONボディ。
type Payload struct {
	Timestamp string          `json:"timestamp"`
	Event     EventPayload    `json:"event"`
	Photo     PhotoPayload    `json:"photo"`
	Person    PersonPayload   `json:"person"`
	Booth     BoothPayload    `json:"booth"`
	Posts     PostsPayload    `json:"posts"`
	Settings  SettingsPayload `json:"settings"`
}

type EventPayload struct {
	EventEn  string `json:"eventEn"`
	EventJp  string `json:"eventJp"`
	Date     string `json:"date"`
	Venue    string `json:"venue"`
	Category string `json:"category"`
	Hashtags string `json:"hashtags"`
}

type PhotoPayload struct {
	Base64 string `json:"base64"`
}

type PersonPayload struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Account string `json:"account"`
}

type BoothPayload struct {
	Name    string `json:"name"`
	Account string `json:"account"`
}

// PostsPayload はプラットフォーム別の投稿本文。
// 現状は3つとも同じ本文を使う。
type PostsPayload struct {
	X1        string `json:"x1"`
	X2        string `json:"x2"`
	Instagram string `json:"instagram"`
}

type SettingsPayload struct {
	AIModel string `json:"aiModel"`
}

// BuildPayload は投稿からWebhookペイロードを組み立てる。
// どのフィールドが空でも失敗しない。
func (s *Service) BuildPayload(post model.PostItem, now time.Time) Payload {
	text := ""
	if post.AIComment != "" {
		text = s.sanitizer.Clean(post.AIComment)
	}
	if text == "" {
		text = FallbackText(post)
	}

	ev := post.EventInfo
	return Payload{
		Timestamp: now.UTC().Format(timestampLayout),
		Event: EventPayload{
			EventEn:  ev.EventEn,
			EventJp:  ev.EventJp,
			Date:     ev.Date,
			Venue:    ev.Venue,
			Category: ev.Category,
			Hashtags: ev.Hashtags,
		},
		Photo: PhotoPayload{Base64: StripDataURLPrefix(post.PrimaryImage())},
		Person: PersonPayload{
			Name:    post.PersonName,
			Role:    post.PersonRole,
			Account: post.PersonAccount,
		},
		Booth: BoothPayload{
			Name:    post.BoothName,
			Account: post.BoothAccount,
		},
		Posts:    PostsPayload{X1: text, X2: text, Instagram: text},
		Settings: SettingsPayload{AIModel: s.aiModel},
	}
}

// FallbackText はAIコメントが空のときに使う本文を組み立てる。
// イベント名（英語名、なければ日本語名）、ブース名、人物名、ハッシュタグのうち
// 空でないものを改行で連結する。
func FallbackText(post model.PostItem) string {
	eventName := post.EventInfo.EventEn
	if eventName == "" {
		eventName = post.EventInfo.EventJp
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{eventName, post.BoothName, post.PersonName, post.EventInfo.Hashtags} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// StripDataURLPrefix は "data:image/jpeg;base64," のような接頭辞を取り除く。
// 接頭辞がなければそのまま返す。
func StripDataURLPrefix(image string) string {
	if !strings.HasPrefix(image, "data:") {
		return image
	}
	if i := strings.Index(image, ","); i >= 0 {
		return image[i+1:]
	}
	return image
}

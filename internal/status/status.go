// Package status は投稿キューから表示用のバッジ・警告・完了率を導出する純粋関数を提供する。
// ストアへの書き込みは一切行わない。
package status

import (
	"math"
	"time"

	"github.com/hitoshi/boothpost/internal/model"
)

// StaleDraftThreshold は下書きが放置とみなされるまでの経過時間。
const StaleDraftThreshold = 5 * time.Minute

// 必須フィールド名（MissingFieldsで返す値）。
const (
	FieldBoothName  = "boothName"
	FieldPersonName = "personName"
	FieldAIComment  = "aiComment"
)

// Display はステータスごとの表示属性。
type Display struct {
	Color string `json:"color"`
	Label string `json:"label"`
	Class string `json:"class"`
}

var displayTable = map[model.PostStatus]Display{
	model.PostStatusDraft:  {Color: "gray", Label: "下書き", Class: "status-draft"},
	model.PostStatusReady:  {Color: "blue", Label: "準備完了", Class: "status-ready"},
	model.PostStatusSent:   {Color: "green", Label: "送信済み", Class: "status-sent"},
	model.PostStatusFailed: {Color: "red", Label: "送信失敗", Class: "status-failed"},
}

// DisplayFor はステータスの表示属性を返す。
// 表にないステータス（sendingを含む）はdraftの表示にフォールバックする。
func DisplayFor(s model.PostStatus) Display {
	if d, ok := displayTable[s]; ok {
		return d
	}
	return displayTable[model.PostStatusDraft]
}

// HasRequiredFields はブース名・人物名・AIコメントがすべて入力済みかを返す。
func HasRequiredFields(p model.PostItem) bool {
	return len(MissingFields(p)) == 0
}

// MissingFields は未入力の必須フィールド名を返す。
func MissingFields(p model.PostItem) []string {
	var missing []string
	if p.BoothName == "" {
		missing = append(missing, FieldBoothName)
	}
	if p.PersonName == "" {
		missing = append(missing, FieldPersonName)
	}
	if p.AIComment == "" {
		missing = append(missing, FieldAIComment)
	}
	return missing
}

// IsStaleDraft はdraft状態のまま作成からStaleDraftThresholdを超えたかを返す。
// CreatedAtが未設定の投稿は「今作成された」ものとして扱い、放置とはみなさない。
func IsStaleDraft(p model.PostItem, now time.Time) bool {
	if p.Status != model.PostStatusDraft {
		return false
	}
	if p.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(p.CreatedAt) > StaleDraftThreshold
}

// Completion はキューの完了率。
type Completion struct {
	Percentage int `json:"percentage"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// CalculateCompletionPercentage はsentとreadyを完了として数えた完了率を返す。
// 空のキューは{0,0,0}。
func CalculateCompletionPercentage(queue []model.PostItem) Completion {
	total := len(queue)
	if total == 0 {
		return Completion{}
	}

	completed := 0
	for _, p := range queue {
		if p.Status == model.PostStatusSent || p.Status == model.PostStatusReady {
			completed++
		}
	}

	pct := int(math.Round(float64(completed) / float64(total) * 100))
	return Completion{Percentage: pct, Completed: completed, Total: total}
}

// Badge は1件のキューアイテムに付与する表示情報。
type Badge struct {
	Index         int              `json:"index"`
	ID            string           `json:"id"`
	Status        model.PostStatus `json:"status"`
	Display       Display          `json:"display"`
	Classes       []string         `json:"classes"`
	MissingFields []string         `json:"missingFields"`
	Stale         bool             `json:"stale"`
}

// Snapshot はキュー全体の導出結果。
type Snapshot struct {
	Items       []Badge    `json:"items"`
	Completion  Completion `json:"completion"`
	StaleCount  int        `json:"staleCount"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// Derive はキューのスナップショットからバッジと完了率を導出する。
func Derive(queue []model.PostItem, now time.Time) Snapshot {
	snap := Snapshot{
		Items:       make([]Badge, 0, len(queue)),
		Completion:  CalculateCompletionPercentage(queue),
		GeneratedAt: now,
	}

	for i, p := range queue {
		d := DisplayFor(p.Status)
		missing := MissingFields(p)
		if missing == nil {
			missing = []string{}
		}
		stale := IsStaleDraft(p, now)

		classes := []string{d.Class}
		if len(missing) > 0 {
			classes = append(classes, "missing-fields")
		}
		if stale {
			classes = append(classes, "stale-draft")
			snap.StaleCount++
		}

		snap.Items = append(snap.Items, Badge{
			Index:         i,
			ID:            p.ID,
			Status:        p.Status,
			Display:       d,
			Classes:       classes,
			MissingFields: missing,
			Stale:         stale,
		})
	}

	return snap
}

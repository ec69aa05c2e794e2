// Package persondb は過去に入力した人物を素早く呼び出すためのランク付き検索テーブルを提供する。
// レコード数は上限付きで、超過時は保持スコアの最も低いレコードを1件破棄する。
package persondb

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/repository"
)

// StorageKey は永続化レコードのキー。
const StorageKey = "person-db"

// MaxRecords は保持するレコード数の上限。
const MaxRecords = 500

// DefaultLimit は検索・最近使用一覧の既定件数。
const DefaultLimit = 10

// スコア計算の重み。lastUsedはエポックミリ秒を1e6で割って頻度と同じ桁に揃える。
const (
	useCountWeight = 0.3
	lastUsedWeight = 0.7
	lastUsedScale  = 1_000_000
)

// Database は人物レコードの保持と検索を行う。
type Database struct {
	mu      sync.Mutex
	kv      repository.KVStore
	logger  *slog.Logger
	now     func() time.Time
	records []model.PersonRecord
}

// Option はDatabaseの生成オプション。
type Option func(*Database)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) { d.logger = l }
}

// New はDatabaseを生成し、永続化済みのレコードを読み込む。
// 読み込み失敗や壊れたデータは空のレコード集合として扱う。
func New(ctx context.Context, kv repository.KVStore, opts ...Option) *Database {
	d := &Database{
		kv:      kv,
		logger:  slog.Default(),
		now:     time.Now,
		records: []model.PersonRecord{},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.load(ctx)
	return d
}

func (d *Database) load(ctx context.Context) {
	raw, err := d.kv.Get(ctx, StorageKey)
	if err != nil {
		d.logger.Warn("人物データの読み込みに失敗しました", slog.String("error", err.Error()))
		return
	}
	if raw == nil {
		return
	}

	var records []model.PersonRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		d.logger.Warn("人物データが破損しています。空の状態で開始します", slog.String("error", err.Error()))
		return
	}
	if records != nil {
		d.records = records
	}
}

func (d *Database) saveLocked(ctx context.Context) {
	raw, err := json.Marshal(d.records)
	if err != nil {
		d.logger.Error("人物データのシリアライズに失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := d.kv.Put(ctx, StorageKey, raw); err != nil {
		d.logger.Warn("人物データの保存に失敗しました", slog.String("error", err.Error()))
	}
}

// Len はレコード数を返す。
func (d *Database) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Search は名前またはアカウントに大文字小文字を区別せず部分一致するレコードを
// 最近使用した順に最大limit件返す。空のクエリは空の結果を返す。
func (d *Database) Search(query string, limit int) []model.PersonRecord {
	if query == "" {
		return []model.PersonRecord{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.ToLower(query)

	d.mu.Lock()
	defer d.mu.Unlock()

	matches := make([]model.PersonRecord, 0)
	for _, r := range d.records {
		if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.Account), q) {
			matches = append(matches, cloneRecord(r))
		}
	}
	sortByRecent(matches)
	return truncate(matches, limit)
}

// GetRecent は全レコードを最近使用した順に最大limit件返す。
func (d *Database) GetRecent(limit int) []model.PersonRecord {
	if limit <= 0 {
		limit = DefaultLimit
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	all := make([]model.PersonRecord, len(d.records))
	for i, r := range d.records {
		all[i] = cloneRecord(r)
	}
	sortByRecent(all)
	return truncate(all, limit)
}

// Add は(name, account)の組をキーにレコードをアップサートし、全レコードを保存する。
// 既存の場合は空でないroleのみ上書きし、lastUsedの更新・useCountの加算・eventsの和集合を行う。
// 追加後に上限を超えた場合は保持スコアの最も低いレコードを1件だけ破棄する。
func (d *Database) Add(ctx context.Context, in model.PersonInput) model.PersonRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	nowMs := d.now().UnixMilli()

	var result model.PersonRecord
	if i := d.indexOfLocked(in.Name, in.Account); i >= 0 {
		r := &d.records[i]
		if in.Role != "" {
			r.Role = in.Role
		}
		r.LastUsed = nowMs
		r.UseCount++
		r.Events = unionEvents(r.Events, in.Events)
		result = cloneRecord(*r)
	} else {
		r := model.PersonRecord{
			ID:       uuid.NewString(),
			Name:     in.Name,
			Account:  in.Account,
			Role:     in.Role,
			LastUsed: nowMs,
			UseCount: 1,
			Events:   unionEvents(nil, in.Events),
		}
		d.records = append(d.records, r)
		result = cloneRecord(r)
		d.evictLocked()
	}

	d.saveLocked(ctx)
	return result
}

func (d *Database) indexOfLocked(name, account string) int {
	for i := range d.records {
		if d.records[i].Name == name && d.records[i].Account == account {
			return i
		}
	}
	return -1
}

// evictLocked は上限超過時に最低スコアのレコードを1件破棄する。
// 同点の場合は先に現れたレコードを破棄する。
func (d *Database) evictLocked() {
	if len(d.records) <= MaxRecords {
		return
	}

	lowest := 0
	lowestScore := Score(d.records[0])
	for i := 1; i < len(d.records); i++ {
		if s := Score(d.records[i]); s < lowestScore {
			lowest, lowestScore = i, s
		}
	}

	d.logger.Debug("人物レコードを破棄しました",
		slog.String("name", d.records[lowest].Name),
		slog.Float64("score", lowestScore),
	)
	d.records = append(d.records[:lowest], d.records[lowest+1:]...)
}

// Score はレコードの保持スコアを返す。値が小さいほど先に破棄される。
func Score(r model.PersonRecord) float64 {
	return float64(r.UseCount)*useCountWeight + (float64(r.LastUsed)/lastUsedScale)*lastUsedWeight
}

func unionEvents(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, e := range existing {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, e := range added {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func sortByRecent(records []model.PersonRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastUsed > records[j].LastUsed
	})
}

func truncate(records []model.PersonRecord, limit int) []model.PersonRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

func cloneRecord(r model.PersonRecord) model.PersonRecord {
	r.Events = append([]string(nil), r.Events...)
	if r.Events == nil {
		r.Events = []string{}
	}
	return r
}

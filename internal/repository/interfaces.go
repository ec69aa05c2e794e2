// Package repository はデータ永続化のインターフェースと実装を定義する。
// アプリ設定と人物データベースはキーバリュー形式で保存する。
package repository

import (
	"context"
	"errors"
)

// ErrStorageLocked は別プロセスが同じストレージを書き込み用に保持している場合のエラー。
var ErrStorageLocked = errors.New("storage is locked by another process")

// KVStore は永続キーバリューストレージのインターフェース。
// 値はJSONシリアライズ済みのバイト列として扱う。
type KVStore interface {
	// Get は指定キーの値を取得する。キーが存在しない場合はnil, nilを返す。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put は指定キーに値を上書き保存する。
	Put(ctx context.Context, key string, value []byte) error

	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error

	// Ping はストレージへの疎通を確認する。
	Ping(ctx context.Context) error
}

// prefixedStore はキーに名前空間を付与するKVStoreのラッパー。
type prefixedStore struct {
	inner  KVStore
	prefix string
}

// WithPrefix はすべてのキーにprefixを付与するKVStoreを返す。
// prefixが空の場合はinnerをそのまま返す。
func WithPrefix(inner KVStore, prefix string) KVStore {
	if prefix == "" {
		return inner
	}
	return &prefixedStore{inner: inner, prefix: prefix}
}

func (s *prefixedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *prefixedStore) Put(ctx context.Context, key string, value []byte) error {
	return s.inner.Put(ctx, s.prefix+key, value)
}

func (s *prefixedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

func (s *prefixedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

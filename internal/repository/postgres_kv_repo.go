package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresKVRepo はPostgreSQLのkv_entriesテーブルを使用したKVStore実装。
// テーブルはdatabaseパッケージのマイグレーションで作成する。
type PostgresKVRepo struct {
	db *sql.DB
}

// NewPostgresKVRepo はPostgresKVRepoを生成する。
func NewPostgresKVRepo(db *sql.DB) *PostgresKVRepo {
	return &PostgresKVRepo{db: db}
}

// Get は指定キーの値を取得する。見つからない場合はnilを返す。
func (r *PostgresKVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = $1`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キー %q の取得に失敗しました: %w", key, err)
	}
	return value, nil
}

// Put はUNIQUE(key)制約を利用したINSERT ON CONFLICTで値を保存する。
func (r *PostgresKVRepo) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET
		     value = EXCLUDED.value,
		     updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("キー %q の保存に失敗しました: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresKVRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("キー %q の削除に失敗しました: %w", key, err)
	}
	return nil
}

// Ping はDB接続を確認する。
func (r *PostgresKVRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLiteKVRepo はローカルSQLiteファイルを使用したKVStore実装。
// 同一ファイルを複数プロセスが同時に開かないよう、<path>.lock をflockで排他する。
type SQLiteKVRepo struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// OpenSQLiteKVRepo はSQLiteファイルを開き、テーブルを作成してSQLiteKVRepoを返す。
// 既に他プロセスがロックを保持している場合はErrStorageLockedを返す。
func OpenSQLiteKVRepo(path string) (*SQLiteKVRepo, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrStorageLocked
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("create kv_entries: %w", err)
	}

	return &SQLiteKVRepo{db: db, lock: lock, path: path}, nil
}

// Path はSQLiteファイルのパスを返す。
func (r *SQLiteKVRepo) Path() string {
	return r.path
}

// Get は指定キーの値を取得する。見つからない場合はnilを返す。
func (r *SQLiteKVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Put は指定キーに値を保存する。
func (r *SQLiteKVRepo) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *SQLiteKVRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Ping はDB接続を確認する。
func (r *SQLiteKVRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close はDB接続を閉じてロックを解放する。
func (r *SQLiteKVRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	err := r.db.Close()
	if unlockErr := r.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("release lock: %w", unlockErr)
	}
	return err
}

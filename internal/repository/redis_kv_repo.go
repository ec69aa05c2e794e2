package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVRepo はRedisを使用したKVStore実装。
// 値はTTLなしのSTRINGとして保存する。
type RedisKVRepo struct {
	client *redis.Client
}

// RedisOptions はRedis接続設定。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisKVRepo はRedis接続を生成してRedisKVRepoを返す。
// 接続確認は行わないため、Pingで疎通を確認すること。
func NewRedisKVRepo(opts RedisOptions) *RedisKVRepo {
	return &RedisKVRepo{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

// Get は指定キーの値を取得する。見つからない場合はnilを返す。
func (r *RedisKVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キー %q の取得に失敗しました: %w", key, err)
	}
	return v, nil
}

// Put は指定キーに値を保存する。
func (r *RedisKVRepo) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("キー %q の保存に失敗しました: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *RedisKVRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("キー %q の削除に失敗しました: %w", key, err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisKVRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close はRedis接続を閉じる。
func (r *RedisKVRepo) Close() error {
	return r.client.Close()
}

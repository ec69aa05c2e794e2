package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/boothpost/internal/config"
	"github.com/hitoshi/boothpost/internal/database"
	"github.com/hitoshi/boothpost/internal/repository"
)

// storage は選択された永続化バックエンドとその後始末をまとめたもの。
type storage struct {
	kv      repository.KVStore
	backend string
	close   func() error
}

func noopClose() error { return nil }

// openStorage はSTORAGE_BACKENDに応じたKVStoreを開く。
// postgresの場合は未適用のマイグレーションも適用する。
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		slog.Warn("メモリストレージで起動します。再起動で設定と人物データは失われます")
		return &storage{kv: repository.NewMemoryKVRepo(), backend: cfg.StorageBackend, close: noopClose}, nil

	case config.StorageSQLite:
		repo, err := repository.OpenSQLiteKVRepo(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		slog.Info("sqlite storage opened", slog.String("path", repo.Path()))
		return &storage{kv: repo, backend: cfg.StorageBackend, close: repo.Close}, nil

	case config.StoragePostgres:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := pingWithTimeout(ctx, db.PingContext); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &storage{kv: repository.NewPostgresKVRepo(db), backend: cfg.StorageBackend, close: db.Close}, nil

	case config.StorageRedis:
		repo := repository.NewRedisKVRepo(repository.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := pingWithTimeout(ctx, repo.Ping); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return &storage{kv: repo, backend: cfg.StorageBackend, close: repo.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.StorageBackend)
	}
}

func pingWithTimeout(ctx context.Context, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ping(ctx)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

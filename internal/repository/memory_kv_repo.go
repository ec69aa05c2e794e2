package repository

import (
	"context"
	"sync"
)

// MemoryKVRepo はプロセス内メモリのKVStore実装。
// テストおよびSTORAGE_BACKEND=memory用。再起動で内容は失われる。
type MemoryKVRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKVRepo はMemoryKVRepoを生成する。
func NewMemoryKVRepo() *MemoryKVRepo {
	return &MemoryKVRepo{data: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。
func (r *MemoryKVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Put は値のコピーを保存する。
func (r *MemoryKVRepo) Put(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete は指定キーを削除する。
func (r *MemoryKVRepo) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, key)
	return nil
}

// Ping は常に成功する。
func (r *MemoryKVRepo) Ping(ctx context.Context) error {
	return nil
}

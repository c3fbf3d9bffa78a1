package store

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore はプロセス内のマップでドキュメントを保持するストア。
// 開発用途とテストで使用する。プロセス終了で内容は失われる。
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Item
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string]Item)}
}

// Scan はテーブルの全ドキュメントをキー順に返す。
func (s *MemoryStore) Scan(ctx context.Context, table string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[table]
	keys := slices.Sorted(maps.Keys(t))
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, maps.Clone(t[k]))
	}
	return items, nil
}

// BatchWrite は1つのテーブルに対する書き込みと削除を適用する。
func (s *MemoryStore) BatchWrite(ctx context.Context, table string, puts []Put, deletes []string) error {
	return s.TransactWrite(ctx, batchOps(table, puts, deletes))
}

// TransactWrite は操作列をロック下でまとめて適用する。
// 検証に失敗した場合はいずれの操作も適用しない。
func (s *MemoryStore) TransactWrite(ctx context.Context, ops []WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateOps(ops); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		t := s.tables[op.Table]
		if t == nil {
			t = make(map[string]Item)
			s.tables[op.Table] = t
		}
		if op.Delete {
			delete(t, op.Key)
			continue
		}
		t[op.Key] = maps.Clone(op.Item)
	}
	return nil
}

// Ping は常に成功する。
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

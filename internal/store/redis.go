package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はテーブルごとのハッシュキーの接頭辞。
const keyPrefix = "radioedit:"

// RedisConfig はRedis接続設定。
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
}

// RedisStore はテーブルごとに1つのハッシュを使用するストア。
// ハッシュのフィールドがアイテムキー、値がJSONドキュメント。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore はRedisに接続してRedisStoreを生成する。接続確認に失敗した場合はエラーを返す。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	slog.Info("redis_connected", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient は既存のクライアントからRedisStoreを生成する。
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func hashKey(table string) string {
	return keyPrefix + table
}

// Scan はテーブルの全ドキュメントをキー順に返す。
func (s *RedisStore) Scan(ctx context.Context, table string) ([]Item, error) {
	m, err := s.client.HGetAll(ctx, hashKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		item, err := decodeItem([]byte(m[k]))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// BatchWrite は1つのテーブルに対する書き込みと削除をMULTI/EXECで適用する。
func (s *RedisStore) BatchWrite(ctx context.Context, table string, puts []Put, deletes []string) error {
	return s.TransactWrite(ctx, batchOps(table, puts, deletes))
}

// TransactWrite は操作列をMULTI/EXECでまとめて適用する。
// エンコードは送信前に完了させ、失敗時はいずれのコマンドも送信しない。
func (s *RedisStore) TransactWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	encoded := make([][]byte, len(ops))
	for i, op := range ops {
		if op.Delete {
			continue
		}
		data, err := encodeItem(op.Item)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			if op.Delete {
				pipe.HDel(ctx, hashKey(op.Table), op.Key)
				continue
			}
			pipe.HSet(ctx, hashKey(op.Table), op.Key, encoded[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("トランザクション書き込みに失敗しました: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore はPostgreSQLの documents テーブルを使用したストア。
// ドキュメントはJSONBとして (table_name, item_key) 単位で保持する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Scan はテーブルの全ドキュメントをキー順に返す。
func (s *PostgresStore) Scan(ctx context.Context, table string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM documents WHERE table_name = $1 ORDER BY item_key ASC`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ドキュメント行の読み取りに失敗しました: %w", err)
		}
		item, err := decodeItem(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// BatchWrite は1つのテーブルに対する書き込みと削除を1トランザクションで適用する。
func (s *PostgresStore) BatchWrite(ctx context.Context, table string, puts []Put, deletes []string) error {
	return s.TransactWrite(ctx, batchOps(table, puts, deletes))
}

// TransactWrite は操作列を1トランザクションで適用する。
// いずれかの操作が失敗した場合はロールバックする。
func (s *PostgresStore) TransactWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE table_name = $1 AND item_key = $2`,
				op.Table, op.Key,
			); err != nil {
				return fmt.Errorf("ドキュメントの削除に失敗しました (%s/%s): %w", op.Table, op.Key, err)
			}
			continue
		}

		data, err := encodeItem(op.Item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (table_name, item_key, doc, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (table_name, item_key)
			 DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
			op.Table, op.Key, data,
		); err != nil {
			return fmt.Errorf("ドキュメントの書き込みに失敗しました (%s/%s): %w", op.Table, op.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

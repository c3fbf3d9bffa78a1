// Package store は番組レコードを保持するドキュメントストアの抽象と実装を提供する。
//
// ストアは「テーブル名 + キー」でドキュメント（属性名→値のマップ）を保持する。
// 全件走査、一括書き込み、複数テーブルにまたがるトランザクション書き込みをサポートする。
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Item は永続化表現のドキュメント（属性名→値）。
type Item map[string]any

// Put は一括書き込みにおける1件の書き込み。
type Put struct {
	Key  string
	Item Item
}

// WriteOp はトランザクション書き込みの1操作。Delete が true の場合は削除する。
type WriteOp struct {
	Table  string
	Key    string
	Item   Item
	Delete bool
}

// DocumentStore はドキュメントストアのインターフェース。
type DocumentStore interface {
	// Scan はテーブルの全ドキュメントをキー順に返す。
	Scan(ctx context.Context, table string) ([]Item, error)

	// BatchWrite は1つのテーブルに対する書き込みと削除をまとめて適用する。
	// 番組一覧の保存は複数テーブルを同時に更新するため TransactWrite のみを使う。
	BatchWrite(ctx context.Context, table string, puts []Put, deletes []string) error

	// TransactWrite は複数テーブルにまたがる操作をすべて適用するか、いずれも適用しない。
	TransactWrite(ctx context.Context, ops []WriteOp) error

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// batchOps はBatchWriteの引数をトランザクション操作列に変換する。
func batchOps(table string, puts []Put, deletes []string) []WriteOp {
	ops := make([]WriteOp, 0, len(puts)+len(deletes))
	for _, p := range puts {
		ops = append(ops, WriteOp{Table: table, Key: p.Key, Item: p.Item})
	}
	for _, k := range deletes {
		ops = append(ops, WriteOp{Table: table, Key: k, Delete: true})
	}
	return ops
}

// validateOps は操作列の必須項目を検証する。
func validateOps(ops []WriteOp) error {
	for i, op := range ops {
		if op.Table == "" || op.Key == "" {
			return fmt.Errorf("ops[%d]: テーブル名とキーは必須です", i)
		}
		if !op.Delete && op.Item == nil {
			return fmt.Errorf("ops[%d]: 書き込むドキュメントがありません", i)
		}
	}
	return nil
}

// encodeItem はドキュメントをJSONに変換する。
func encodeItem(item Item) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのエンコードに失敗しました: %w", err)
	}
	return data, nil
}

// decodeItem はJSONをドキュメントに変換する。
func decodeItem(data []byte) (Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("ドキュメントのデコードに失敗しました: %w", err)
	}
	return item, nil
}

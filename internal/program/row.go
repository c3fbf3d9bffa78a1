package program

import (
	"bytes"
	"encoding/json"
)

// Column は外部表現の1列（キーと値）を表す。
type Column struct {
	Key   string
	Value any
}

// Row は外部（表示・編集）表現の番組レコード。
// 列は field_headers の順序で並び、JSONエンコード時もその順序を保つ。
type Row []Column

// Payload はクライアントから受け取った外部表現の番組レコード。
// JSONオブジェクトをデコードしたもので、キーの順序は持たない。
type Payload map[string]any

// Get は指定キーの値を返す。
func (r Row) Get(key string) (any, bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}
	return nil, false
}

// Payload はRowをPayloadに変換する。
// 読み込んだ一覧を編集して保存し直す場合に使用する。
func (r Row) Payload() Payload {
	p := make(Payload, len(r))
	for _, c := range r {
		p[c.Key] = c.Value
	}
	return p
}

// MarshalJSON は列順を保ったJSONオブジェクトを出力する。
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

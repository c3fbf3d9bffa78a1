// Package program は番組レコードの内部表現・外部表現・永続化表現の相互変換を提供する。
package program

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hitoshi/radioedit/internal/field"
	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/store"
)

// ToExternal は内部表現を外部表現に変換する。
// field_headers の順序で列を組み立て、列挙フィールドは順引きテーブルで変換する。
// 順引きは失敗しないため、この変換も常に成功する。
func ToExternal(p model.Program) Row {
	headers := field.OrderOf(field.FieldHeaders)
	row := make(Row, 0, len(headers))
	for _, key := range headers {
		v := rawValue(p, key)
		if name := field.Name(key); field.IsEnumerable(name) {
			s, _ := v.(string)
			v = field.Translate(name, s)
		}
		row = append(row, Column{Key: key, Value: v})
	}
	return row
}

// ToInternal は外部表現を内部表現に変換する。
//   - 列挙フィールドの値は正規順序に含まれることを検証し、逆引きテーブルで内部値に変換する
//   - 欠落または null の列挙フィールドは既定値で補う
//   - selected はUI専用のため破棄する
//
// 未知の列挙値は UNKNOWN_FIELD_VALUE、型の不正は INVALID_RECORD のエラーを返す。
func ToInternal(payload Payload) (model.Program, error) {
	var p model.Program
	for _, key := range field.OrderOf(field.DB) {
		if err := assign(&p, key, payload[key]); err != nil {
			return model.Program{}, err
		}
	}
	return p, nil
}

// assign は外部表現の1フィールドを内部表現に設定する。
func assign(p *model.Program, key string, raw any) error {
	if name := field.Name(key); field.IsEnumerable(name) {
		v, err := internalEnum(name, raw)
		if err != nil {
			return err
		}
		switch name {
		case field.Status:
			p.Status = v
		case field.Genre:
			p.Genre = v
		case field.DayOfWeek:
			p.DayOfWeek = v
		case field.Quality:
			p.Quality = v
		}
		return nil
	}

	switch key {
	case field.KeyPID:
		return assignString(&p.PID, key, raw)
	case field.KeyTitle:
		return assignString(&p.Title, key, raw)
	case field.KeySynopsis:
		return assignString(&p.Synopsis, key, raw)
	case field.KeyImageURI:
		return assignString(&p.ImageURI, key, raw)
	case field.KeyPos:
		// posは保存時に一覧の位置で上書きされるため、解釈できない値は無視する
		p.Pos, _ = intValue(raw)
	case field.KeyModifyTime:
		t, err := parseTime(key, raw)
		if err != nil {
			return err
		}
		if t != nil {
			p.ModifyTime = *t
		}
	case field.KeyDownloadTime:
		t, err := parseTime(key, raw)
		if err != nil {
			return err
		}
		p.DownloadTime = t
	}
	return nil
}

// internalEnum は列挙フィールドの外部値を内部値に変換する。
// null と欠落は区別せず、どちらも既定値として扱う。
func internalEnum(name field.Name, raw any) (string, error) {
	var external string
	switch v := raw.(type) {
	case nil:
		external, _ = field.DefaultOf(name)
	case string:
		external = v
	default:
		return "", model.NewInvalidRecordError(fmt.Sprintf("%s は文字列で指定してください", name))
	}

	if !field.Contains(name, external) {
		return "", model.NewUnknownFieldValueError(string(name), external)
	}
	return field.Reverse(name, external)
}

// assignString は文字列フィールドを設定する。nullは空文字列として扱う。
func assignString(dst *string, key string, raw any) error {
	switch v := raw.(type) {
	case nil:
		*dst = ""
	case string:
		*dst = v
	default:
		return model.NewInvalidRecordError(fmt.Sprintf("%s は文字列で指定してください", key))
	}
	return nil
}

// ToDocument は内部表現を永続化表現に変換する。
// db の順序に従い、永続化対象のキーのみを属性として出力する。
func ToDocument(p model.Program) store.Item {
	item := make(store.Item)
	for _, key := range field.OrderOf(field.DB) {
		attr, ok := field.Attribute(key)
		if !ok {
			continue
		}
		item[attr] = rawValue(p, key)
	}
	return item
}

// FromDocument は永続化表現を内部表現に変換する。
// 永続化表現は内部値を保持しているため、列挙値の変換は行わない。
func FromDocument(item store.Item) (model.Program, error) {
	var p model.Program
	for attr, raw := range item {
		key, ok := field.KeyForAttribute(attr)
		if !ok {
			continue
		}
		switch key {
		case field.KeyStatus:
			p.Status, _ = raw.(string)
		case field.KeyGenre:
			p.Genre, _ = raw.(string)
		case field.KeyDayOfWeek:
			p.DayOfWeek, _ = raw.(string)
		case field.KeyQuality:
			p.Quality, _ = raw.(string)
		case field.KeyPID:
			p.PID, _ = raw.(string)
		case field.KeyTitle:
			p.Title, _ = raw.(string)
		case field.KeySynopsis:
			p.Synopsis, _ = raw.(string)
		case field.KeyImageURI:
			p.ImageURI, _ = raw.(string)
		case field.KeyPos:
			pos, err := intValue(raw)
			if err != nil {
				return model.Program{}, fmt.Errorf("invalid pos in stored item: %w", err)
			}
			p.Pos = pos
		case field.KeyModifyTime:
			t, err := parseTime(key, raw)
			if err != nil {
				return model.Program{}, err
			}
			if t != nil {
				p.ModifyTime = *t
			}
		case field.KeyDownloadTime:
			t, err := parseTime(key, raw)
			if err != nil {
				return model.Program{}, err
			}
			p.DownloadTime = t
		}
	}
	if p.PID == "" {
		return model.Program{}, fmt.Errorf("stored item has no pid")
	}
	return p, nil
}

// rawValue は内部表現からキーに対応する生の値を取り出す。
// selected は永続化されないため常にnilを返す。
func rawValue(p model.Program, key string) any {
	switch key {
	case field.KeyPID:
		return p.PID
	case field.KeyPos:
		return p.Pos
	case field.KeyStatus:
		return p.Status
	case field.KeyGenre:
		return p.Genre
	case field.KeyDayOfWeek:
		return p.DayOfWeek
	case field.KeyQuality:
		return p.Quality
	case field.KeyTitle:
		return p.Title
	case field.KeySynopsis:
		return p.Synopsis
	case field.KeyImageURI:
		return p.ImageURI
	case field.KeyModifyTime:
		return FormatTime(p.ModifyTime)
	case field.KeyDownloadTime:
		if p.DownloadTime == nil {
			return ""
		}
		return FormatTime(*p.DownloadTime)
	}
	return nil
}

// FormatTime は時刻をUTCのRFC 3339形式で返す。ゼロ値は空文字列とする。
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime はRFC 3339形式の時刻を解析する。null と空文字列はnilを返す。
func parseTime(key string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, model.NewInvalidRecordError(fmt.Sprintf("%s の時刻形式が不正です: %q", key, v))
		}
		t = t.UTC()
		return &t, nil
	default:
		return nil, model.NewInvalidRecordError(fmt.Sprintf("%s は文字列で指定してください", key))
	}
}

// intValue はJSON由来の数値を整数に変換する。
func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("non-integral number %v", v)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(v)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported type %T", raw)
}

// Package field は番組レコードのフィールド対応表と正規順序を提供する。
//
// 順引き（内部値→外部値）は描画に使うため必ず成功し、未知の値は default エントリに
// フォールバックする。逆引き（外部値→内部値）は入力の解釈に使うため未知の値で失敗する。
// テーブルはプロセス起動時に固定され、実行時に変更する手段は提供しない。
package field

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/radioedit/internal/model"
)

// Name はフィールド名を表す。
type Name string

// 列挙フィールドと、キー順序を表す擬似フィールド。
const (
	Status       Name = "status"
	Genre        Name = "genre"
	DayOfWeek    Name = "day_of_week"
	Quality      Name = "quality"
	FieldHeaders Name = "field_headers"
	DB           Name = "db"
)

// 番組レコードのキー。
const (
	KeySelected     = "selected"
	KeyPos          = "pos"
	KeyPID          = "pid"
	KeyStatus       = "status"
	KeyTitle        = "title"
	KeyGenre        = "genre"
	KeyDayOfWeek    = "day_of_week"
	KeyQuality      = "quality"
	KeySynopsis     = "synopsis"
	KeyImageURI     = "image_uri"
	KeyModifyTime   = "modify_time"
	KeyDownloadTime = "download_time"
)

// enumerables は値の変換対象となる列挙フィールド。
var enumerables = []Name{Status, Genre, DayOfWeek, Quality}

// Enumerables は列挙フィールドの一覧を返す。
func Enumerables() []Name {
	return append([]Name(nil), enumerables...)
}

// IsEnumerable はnameが列挙フィールドかを判定する。
// field_headers と db はキー順序の擬似フィールドであり列挙フィールドではない。
func IsEnumerable(name Name) bool {
	for _, n := range enumerables {
		if n == name {
			return true
		}
	}
	return false
}

// Translate は内部値を外部値に変換する。
// 対応がない場合は default エントリを返すため失敗しない。
// 列挙フィールド以外の名前に対しては値をそのまま返す。
func Translate(name Name, value string) string {
	if !IsEnumerable(name) {
		return value
	}
	m := fieldMapCollection[name]
	if v, ok := m[value]; ok && value != defaultKey {
		return v
	}
	return m[defaultKey]
}

// Reverse は外部値を内部値に変換する。
// 逆引きテーブルに存在しない値は UNKNOWN_FIELD_VALUE エラーとなる。
func Reverse(name Name, value string) (string, error) {
	if !IsEnumerable(name) {
		return "", fmt.Errorf("field %q is not enumerable", name)
	}
	v, ok := reverseFieldMapCollection[name][value]
	if !ok {
		return "", model.NewUnknownFieldValueError(string(name), value)
	}
	return v, nil
}

// OrderOf はフィールドの正規順序のコピーを返す。
// 列挙フィールドは有効な外部値の並び、field_headers と db はレコードキーの並び。
func OrderOf(name Name) []string {
	return append([]string(nil), fieldOrderCollection[name]...)
}

// Contains はvalueがフィールドの正規順序に含まれるかを判定する。
func Contains(name Name, value string) bool {
	for _, v := range fieldOrderCollection[name] {
		if v == value {
			return true
		}
	}
	return false
}

// DefaultOf は列挙フィールドの既定の外部値を返す。
// field_headers と db には既定値がないため false を返す。
func DefaultOf(name Name) (string, bool) {
	if !IsEnumerable(name) {
		return "", false
	}
	v, ok := fieldMapCollection[name][defaultKey]
	return v, ok
}

// Label はレコードキーの列見出しを返す。未知のキーはそのまま返す。
func Label(key string) string {
	if l, ok := fieldMapCollection[FieldHeaders][key]; ok {
		return l
	}
	return key
}

// Attribute はレコードキーに対応する永続化属性名を返す。
// 永続化しないキー（selected）と未知のキーは false を返す。
func Attribute(key string) (string, bool) {
	a, ok := fieldMapCollection[DB][key]
	if !ok || a == "" {
		return "", false
	}
	return a, true
}

// KeyForAttribute は永続化属性名に対応するレコードキーを返す。
func KeyForAttribute(attr string) (string, bool) {
	k, ok := reverseFieldMapCollection[DB][attr]
	return k, ok
}

// Validate は対応表の整合性を検証する。
//   - 順引きと逆引きは default と永続化しないエントリを除いて互いに逆写像である
//   - 逆引きは default エントリを持たず、列挙フィールドの順引きは持つ
//   - 列挙フィールドの正規順序は逆引きのキー集合と一致し、既定値を含む
//   - field_headers と db の正規順序は順引きのキー集合（永続化しないキーを除く）と一致する
func Validate() error {
	var problems []string

	for _, name := range []Name{Status, Genre, DayOfWeek, Quality, FieldHeaders, DB} {
		fwd, rev := fieldMapCollection[name], reverseFieldMapCollection[name]
		if fwd == nil || rev == nil {
			problems = append(problems, fmt.Sprintf("%s: missing table", name))
			continue
		}
		if _, ok := rev[defaultKey]; ok {
			problems = append(problems, fmt.Sprintf("%s: reverse map has default entry", name))
		}
		_, hasDefault := fwd[defaultKey]
		if IsEnumerable(name) != hasDefault {
			problems = append(problems, fmt.Sprintf("%s: default entry presence mismatch", name))
		}

		mapped := 0
		for k, v := range fwd {
			if k == defaultKey || v == "" {
				continue
			}
			mapped++
			if back, ok := rev[v]; !ok || back != k {
				problems = append(problems, fmt.Sprintf("%s: %q -> %q is not reversed", name, k, v))
			}
		}
		if mapped != len(rev) {
			problems = append(problems, fmt.Sprintf("%s: forward has %d entries, reverse has %d", name, mapped, len(rev)))
		}

		order := fieldOrderCollection[name]
		domain := rev
		if !IsEnumerable(name) {
			domain = make(map[string]string, len(fwd))
			for k, v := range fwd {
				if v != "" {
					domain[k] = v
				}
			}
		}
		if !sameSet(order, domain) {
			problems = append(problems, fmt.Sprintf("%s: order does not match map domain", name))
		}
		if IsEnumerable(name) && !Contains(name, fwd[defaultKey]) {
			problems = append(problems, fmt.Sprintf("%s: default %q not in order", name, fwd[defaultKey]))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("field tables are inconsistent: %s", strings.Join(problems, "; "))
	}
	return nil
}

// sameSet はorderの要素集合がmのキー集合（default を除く）と一致し、重複がないかを判定する。
func sameSet(order []string, m map[string]string) bool {
	seen := make(map[string]bool, len(order))
	for _, v := range order {
		if seen[v] {
			return false
		}
		seen[v] = true
		if _, ok := m[v]; !ok || v == defaultKey {
			return false
		}
	}
	n := len(m)
	if _, ok := m[defaultKey]; ok {
		n--
	}
	return len(seen) == n
}

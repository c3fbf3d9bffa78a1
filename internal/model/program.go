// Package model はドメインモデルを定義する。
package model

import "time"

// Program はラジオ番組レコードの内部正規表現を表す。
// 列挙フィールドは内部値（例: Status は "Success"）で保持し、
// 表示用の外部値への変換は field パッケージのテーブルで行う。
// 時刻はUTCで保持する。外部表現から変換した時刻もUTCに揃える。
type Program struct {
	PID          string
	Status       string
	Genre        string
	DayOfWeek    string
	Quality      string
	Title        string
	Synopsis     string
	ImageURI     string
	Pos          int
	ModifyTime   time.Time
	DownloadTime *time.Time // 履歴スナップショット取得時のみ設定される
}

// 番組ステータスの内部値。
const (
	StatusPending = "Pending"
	StatusError   = "Error"
	StatusSuccess = "Success"
	StatusAlready = "Already"
)

// ジャンルの内部値。
const (
	GenreBooksSpoken = "Books&Spoken"
	GenreComedy      = "Comedy"
)

// 曜日の内部値。ANY は曜日指定なし。
const (
	DayAny = "ANY"
	DayMon = "Mon"
	DayTue = "Tue"
	DayWed = "Wed"
	DayThu = "Thu"
	DayFri = "Fri"
	DaySat = "Sat"
	DaySun = "Sun"
)

// 録音品質の内部値。
const (
	QualityNormal = "Normal"
	QualityHigh   = "HIGH"
)

// MaxPIDLength はpidの最大バイト数。
// 履歴キー（pid#時刻）がストアのキー長の上限 512 に収まる長さとする。
const MaxPIDLength = 256

// HistoryKey は履歴エントリのキー（pid, download_time）を返す。
// DownloadTime が未設定の場合は空文字列を返す。
func (p Program) HistoryKey() string {
	if p.DownloadTime == nil {
		return ""
	}
	return p.PID + "#" + p.DownloadTime.UTC().Format(time.RFC3339Nano)
}

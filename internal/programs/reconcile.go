// Package programs は番組一覧の読み込み・保存と履歴管理を提供する。
package programs

import (
	"sort"
	"time"

	"github.com/hitoshi/radioedit/internal/model"
)

// Plan は保存前の有効集合と新しい一覧を突き合わせた結果。
type Plan struct {
	// Active は新しい有効集合。pos は一覧内の位置（1始まり）、modify_time は保存時刻。
	Active []model.Program
	// Removed は一覧から外れた番組のpid。
	Removed []string
	// History は履歴に追加するスナップショット。download_time は保存時刻。
	History []model.Program
}

// Reconcile は保存前の有効集合 old と新しい一覧 next から書き込み計画を作る。
// ストアに依存しない純粋関数であり、next の pid は一意であることを前提とする。
//
// 履歴には次のスナップショットを追加する。
//   - next に含まれない番組（一覧から外れた）
//   - next に含まれるが永続化内容が変わった番組の変更前の版（上書きされた）
//
// 同じpidで再保存された番組は、永続化内容が変わった場合に限り上書きとみなす。
// pos と時刻だけの違いは内容の変更に含めないため、並び替えのみや同一内容の再保存では履歴に追加しない。
func Reconcile(old, next []model.Program, now time.Time) Plan {
	now = now.UTC()

	nextByPID := make(map[string]model.Program, len(next))
	plan := Plan{Active: make([]model.Program, 0, len(next))}
	for i, p := range next {
		p.Pos = i + 1
		p.ModifyTime = now
		p.DownloadTime = nil
		plan.Active = append(plan.Active, p)
		nextByPID[p.PID] = p
	}

	prev := append([]model.Program(nil), old...)
	sortByPos(prev)

	for _, o := range prev {
		n, retained := nextByPID[o.PID]
		if retained && sameContent(o, n) {
			continue
		}
		if !retained {
			plan.Removed = append(plan.Removed, o.PID)
		}
		plan.History = append(plan.History, snapshot(o, now))
	}
	return plan
}

// snapshot は履歴エントリとして保存する版を返す。
func snapshot(p model.Program, at time.Time) model.Program {
	t := at
	p.DownloadTime = &t
	return p
}

// sameContent は位置と時刻を除いた永続化内容が等しいかを判定する。
func sameContent(a, b model.Program) bool {
	return a.PID == b.PID &&
		a.Status == b.Status &&
		a.Genre == b.Genre &&
		a.DayOfWeek == b.DayOfWeek &&
		a.Quality == b.Quality &&
		a.Title == b.Title &&
		a.Synopsis == b.Synopsis &&
		a.ImageURI == b.ImageURI
}

// sortByPos はpos昇順（同順位はpid順）に並べ替える。
func sortByPos(ps []model.Program) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Pos != ps[j].Pos {
			return ps[i].Pos < ps[j].Pos
		}
		return ps[i].PID < ps[j].PID
	})
}

package programs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/program"
	"github.com/hitoshi/radioedit/internal/store"
)

// 既定のテーブル名。
const (
	DefaultProgramsTable = "programs"
	DefaultHistoryTable  = "program_history"
)

// Options はSynchronizerの設定。
type Options struct {
	ProgramsTable string
	HistoryTable  string
	// MaxPrograms は有効な番組数の上限。0以下の場合は上限なし。
	MaxPrograms int
	// Now は保存時刻の取得に使用する。nilの場合は time.Now。
	Now func() time.Time
}

// SaveResult は保存結果。
type SaveResult struct {
	// Programs は保存後の有効集合（外部表現、pos順）。
	Programs []program.Row
	// Historized は履歴に追加したスナップショット数。
	Historized int
}

// Synchronizer はストア上の有効集合とクライアントの一覧を同期する。
// Save は同一の有効集合に対して並行に呼び出してはならない（Service が直列化する）。
type Synchronizer struct {
	store         store.DocumentStore
	programsTable string
	historyTable  string
	maxPrograms   int
	now           func() time.Time
}

// NewSynchronizer はSynchronizerを生成する。
func NewSynchronizer(s store.DocumentStore, opts Options) *Synchronizer {
	if opts.ProgramsTable == "" {
		opts.ProgramsTable = DefaultProgramsTable
	}
	if opts.HistoryTable == "" {
		opts.HistoryTable = DefaultHistoryTable
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		store:         s,
		programsTable: opts.ProgramsTable,
		historyTable:  opts.HistoryTable,
		maxPrograms:   opts.MaxPrograms,
		now:           opts.Now,
	}
}

// MaxPrograms は有効な番組数の上限を返す。
func (s *Synchronizer) MaxPrograms() int {
	return s.maxPrograms
}

// Load は有効集合をpos昇順の外部表現で返す。
// ストアの読み込みに失敗した場合は STORE_UNAVAILABLE を返す。再試行はしない。
func (s *Synchronizer) Load(ctx context.Context) ([]program.Row, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	return toRows(active), nil
}

// Active は有効集合をpos昇順の内部表現で返す。
func (s *Synchronizer) Active(ctx context.Context) ([]model.Program, error) {
	active, err := s.scan(ctx, s.programsTable)
	if err != nil {
		return nil, err
	}
	sortByPos(active)
	return active, nil
}

// Save はクライアントの一覧（外部表現）を新しい有効集合として保存する。
//  1. 件数が上限を超える場合は CAPACITY_EXCEEDED（書き込みなし）
//  2. 各レコードを内部表現に変換し、pos を一覧内の位置で上書きする
//  3. 一覧から外れた番組と上書きされた番組を履歴に移す
//  4. 有効集合と履歴を1トランザクションで書き込む。失敗時は PERSISTENCE_FAILURE
func (s *Synchronizer) Save(ctx context.Context, payloads []program.Payload) (*SaveResult, error) {
	if err := s.checkCapacity(len(payloads)); err != nil {
		return nil, err
	}

	next := make([]model.Program, 0, len(payloads))
	for i, payload := range payloads {
		p, err := program.ToInternal(payload)
		if err != nil {
			return nil, fmt.Errorf("programs[%d]: %w", i, err)
		}
		next = append(next, p)
	}

	return s.Commit(ctx, next)
}

// Commit は内部表現の一覧を新しい有効集合として書き込む。
// 空のpidにはUUIDを割り当て、重複するpidは INVALID_RECORD とする。
func (s *Synchronizer) Commit(ctx context.Context, next []model.Program) (*SaveResult, error) {
	if err := s.checkCapacity(len(next)); err != nil {
		return nil, err
	}
	next, err := assignPIDs(next)
	if err != nil {
		return nil, err
	}

	old, err := s.scan(ctx, s.programsTable)
	if err != nil {
		return nil, err
	}

	plan := Reconcile(old, next, s.now())
	if ops := s.writeOps(plan); len(ops) > 0 {
		if err := s.store.TransactWrite(ctx, ops); err != nil {
			return nil, model.NewPersistenceFailureError(err)
		}
	}

	return &SaveResult{
		Programs:   toRows(plan.Active),
		Historized: len(plan.History),
	}, nil
}

// History は履歴スナップショットを新しい順の外部表現で返す。
// pid が空でない場合はその番組の履歴のみを返す。
func (s *Synchronizer) History(ctx context.Context, pid string) ([]program.Row, error) {
	all, err := s.scan(ctx, s.historyTable)
	if err != nil {
		return nil, err
	}

	var entries []model.Program
	for _, p := range all {
		if pid == "" || p.PID == pid {
			entries = append(entries, p)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := downloadTime(entries[i]), downloadTime(entries[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].PID < entries[j].PID
	})
	return toRows(entries), nil
}

// Ping はストアへの疎通を確認する。
func (s *Synchronizer) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Synchronizer) checkCapacity(n int) error {
	if s.maxPrograms > 0 && n > s.maxPrograms {
		return model.NewCapacityExceededError(s.maxPrograms, n)
	}
	return nil
}

// scan はテーブルの全ドキュメントを内部表現で返す。
func (s *Synchronizer) scan(ctx context.Context, table string) ([]model.Program, error) {
	items, err := s.store.Scan(ctx, table)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}

	ps := make([]model.Program, 0, len(items))
	for _, item := range items {
		p, err := program.FromDocument(item)
		if err != nil {
			return nil, model.NewStoreUnavailableError(fmt.Errorf("%s: %w", table, err))
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// writeOps は書き込み計画をストア操作に変換する。
func (s *Synchronizer) writeOps(plan Plan) []store.WriteOp {
	ops := make([]store.WriteOp, 0, len(plan.Active)+len(plan.Removed)+len(plan.History))
	for _, p := range plan.Active {
		ops = append(ops, store.WriteOp{Table: s.programsTable, Key: p.PID, Item: program.ToDocument(p)})
	}
	for _, pid := range plan.Removed {
		ops = append(ops, store.WriteOp{Table: s.programsTable, Key: pid, Delete: true})
	}
	for _, p := range plan.History {
		ops = append(ops, store.WriteOp{Table: s.historyTable, Key: p.HistoryKey(), Item: program.ToDocument(p)})
	}
	return ops
}

// assignPIDs は空のpidにUUIDを割り当て、pidの長さと重複を検証する。
func assignPIDs(ps []model.Program) ([]model.Program, error) {
	out := make([]model.Program, len(ps))
	seen := make(map[string]int, len(ps))
	for i, p := range ps {
		if p.PID == "" {
			p.PID = uuid.New().String()
		}
		if len(p.PID) > model.MaxPIDLength {
			return nil, model.NewInvalidRecordError(
				fmt.Sprintf("%d 件目のpidが長すぎます（最大 %d バイト）", i+1, model.MaxPIDLength))
		}
		if j, dup := seen[p.PID]; dup {
			return nil, model.NewInvalidRecordError(
				fmt.Sprintf("pid %q が重複しています（%d 件目と %d 件目）", p.PID, j+1, i+1))
		}
		seen[p.PID] = i
		out[i] = p
	}
	return out, nil
}

func toRows(ps []model.Program) []program.Row {
	rows := make([]program.Row, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, program.ToExternal(p))
	}
	return rows
}

func downloadTime(p model.Program) time.Time {
	if p.DownloadTime == nil {
		return time.Time{}
	}
	return *p.DownloadTime
}

package importer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/radioedit/internal/field"
	"github.com/hitoshi/radioedit/internal/metrics"
	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/program"
	"github.com/hitoshi/radioedit/internal/programs"
)

// 取り込み時に格納する文字列の最大長（文字数）。
const (
	maxTitleRunes    = 200
	maxSynopsisRunes = 2000
)

// ProgramUpdater は番組一覧の読み込み・変更・書き込みを直列に行う。
// programs.Service が実装する。
type ProgramUpdater interface {
	Update(ctx context.Context, fn programs.UpdateFunc) ([]program.Row, error)
	MaxPrograms() int
}

// TextSanitizer はフィード由来の文字列を整える。
type TextSanitizer interface {
	PlainText(raw string, maxRunes int) string
	ImageURL(raw string) string
}

// Result は1回の取り込み結果。
type Result struct {
	FeedURL string
	// Added は新たに一覧へ追加した番組数。
	Added int
	// Skipped は既に一覧にある、または上限のため追加しなかった項目数。
	Skipped int
	// Programs は取り込み後の有効集合（外部表現）。
	Programs []program.Row
}

// Options はImporterの設定。
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
}

// Importer はフィードの項目を Pending の番組として一覧の末尾に追加する。
type Importer struct {
	updater   ProgramUpdater
	detector  *FeedDetector
	sanitizer TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// New はImporterを生成する。metricsCollector はnilでもよい。
func New(
	updater ProgramUpdater,
	ssrfGuard SSRFValidator,
	sanitizer TextSanitizer,
	metricsCollector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	detector := NewFeedDetector(ssrfGuard, opts.Timeout, opts.MaxBodySize)
	if metricsCollector != nil {
		detector.onResponse = func(status int, elapsed time.Duration) {
			metricsCollector.RecordHTTPStatus(status)
			metricsCollector.RecordFetchLatency(elapsed)
		}
	}
	return &Importer{
		updater:   updater,
		detector:  detector,
		sanitizer: sanitizer,
		metrics:   metricsCollector,
		logger:    logger,
	}
}

// Import はURLのフィードを取得し、一覧にない番組を追加する。
// URLがHTMLページの場合はページ内のフィードリンクを使う。
// 追加は番組数の上限までで、超えた分はスキップとして数える。
func (imp *Importer) Import(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	doc, err := imp.detector.Detect(ctx, rawURL)
	if err != nil {
		imp.recordFailure(rawURL, err)
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(doc.Body))
	if err != nil {
		imp.logger.Warn("フィードの解析に失敗しました",
			slog.String("feed_url", doc.URL),
			slog.String("error", err.Error()),
		)
		perr := model.NewParseFailedError()
		imp.recordFailure(rawURL, perr)
		return nil, perr
	}

	candidates := imp.convertItems(feed)

	result := &Result{FeedURL: doc.URL}
	rows, err := imp.updater.Update(ctx, func(current []model.Program) ([]model.Program, error) {
		next, added, skipped := appendUnseen(current, candidates, imp.updater.MaxPrograms())
		result.Added, result.Skipped = added, skipped
		return next, nil
	})
	if err != nil {
		imp.recordFailure(rawURL, err)
		return nil, err
	}
	result.Programs = rows

	if imp.metrics != nil {
		imp.metrics.RecordImport(result.Added, result.Skipped)
	}
	imp.logger.Info("フィードから番組を取り込みました",
		slog.String("feed_url", doc.URL),
		slog.Int("items_total", len(candidates)),
		slog.Int("added", result.Added),
		slog.Int("skipped", result.Skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

// appendUnseen は current にない pid の候補を上限まで末尾に追加する。
// limit が0以下の場合は上限なし。
func appendUnseen(current, candidates []model.Program, limit int) ([]model.Program, int, int) {
	seen := make(map[string]struct{}, len(current)+len(candidates))
	for _, p := range current {
		seen[p.PID] = struct{}{}
	}

	next := append([]model.Program(nil), current...)
	added, skipped := 0, 0
	for _, c := range candidates {
		if _, ok := seen[c.PID]; ok {
			skipped++
			continue
		}
		if limit > 0 && len(next) >= limit {
			skipped++
			continue
		}
		seen[c.PID] = struct{}{}
		next = append(next, c)
		added++
	}
	return next, added, skipped
}

// convertItems はフィードの項目を番組の内部表現に変換する。
func (imp *Importer) convertItems(feed *gofeed.Feed) []model.Program {
	var feedImage string
	if feed.Image != nil {
		feedImage = feed.Image.URL
	}

	out := make([]model.Program, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		p := model.Program{
			PID:       itemPID(item),
			Status:    model.StatusPending,
			Genre:     genreOf(item.Categories),
			DayOfWeek: model.DayAny,
			Quality:   model.QualityNormal,
			Title:     imp.sanitizer.PlainText(item.Title, maxTitleRunes),
			Synopsis:  imp.sanitizer.PlainText(firstNonEmpty(item.Description, item.Content), maxSynopsisRunes),
			ImageURI:  imp.sanitizer.ImageURL(firstNonEmpty(itemImage(item), feedImage)),
		}
		out = append(out, p)
	}
	return out
}

// itemPID は項目の識別子から pid を決める。
// GUIDまたはリンクの末尾セグメントを使い、どちらもなければタイトルから決定的なUUIDを作る。
func itemPID(item *gofeed.Item) string {
	for _, id := range []string{item.GUID, item.Link} {
		if seg := lastSegment(id); seg != "" {
			return seg
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.Title+"\x00"+item.Published)).String()
}

// lastSegment は "/" または ":" で区切られた末尾の要素を返す。
// クエリとフラグメントは取り除く。
func lastSegment(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		id = id[i+1:]
	}
	return id
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if item.ITunesExt != nil {
		return item.ITunesExt.Image
	}
	return ""
}

// genreOf はカテゴリのうちジャンルの選択肢（外部値）に一致する最初のものを内部値で返す。
// 一致しない場合はジャンルの既定値を使う。
func genreOf(categories []string) string {
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if !field.Contains(field.Genre, c) {
			continue
		}
		if v, err := field.Reverse(field.Genre, c); err == nil {
			return v
		}
	}
	def, _ := field.DefaultOf(field.Genre)
	v, err := field.Reverse(field.Genre, def)
	if err != nil {
		return model.GenreComedy
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (imp *Importer) recordFailure(rawURL string, err error) {
	code := "UNKNOWN"
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	imp.logger.Warn("番組の取り込みに失敗しました",
		slog.String("url", rawURL),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	if imp.metrics != nil {
		imp.metrics.RecordImportFailure(code)
	}
}

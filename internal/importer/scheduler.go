package importer

import (
	"context"
	"log/slog"
	"time"
)

// FeedImporter は1つのURLを取り込む。
type FeedImporter interface {
	Import(ctx context.Context, rawURL string) (*Result, error)
}

// Scheduler は設定されたフィードURLを一定間隔で取り込む。
// 取り込みは Service のロックで直列化されるため、URLは順に処理する。
// 失敗したフィードはバックオフし、恒久的なエラーのフィードは以後取り込まない。
type Scheduler struct {
	importer FeedImporter
	urls     []string
	logger   *slog.Logger
	now      func() time.Time

	states map[string]*feedState
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(importer FeedImporter, urls []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		importer: importer,
		urls:     append([]string(nil), urls...),
		logger:   logger,
		now:      time.Now,
		states:   make(map[string]*feedState, len(urls)),
	}
}

// Start は起動直後に1回、その後 interval ごとに RunOnce を実行する。
// コンテキストがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("feed_count", len(s.urls)),
	)

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は取り込み時期に達したURLを1回ずつ取り込み、追加された番組の合計を返す。
// 個々のURLの失敗はログに記録して次のURLへ進む。並行に呼び出してはならない。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := s.now()
	total, failed, skipped := 0, 0, 0
	for _, u := range s.urls {
		if ctx.Err() != nil {
			break
		}
		state := s.stateOf(u)
		if !state.due(s.now()) {
			skipped++
			continue
		}

		res, err := s.importer.Import(ctx, u)
		if err != nil {
			failed++
			action := state.applyFailure(err, s.now())
			attrs := []any{
				slog.String("url", u),
				slog.String("error", err.Error()),
				slog.Int("consecutive_errors", state.consecutiveErrors),
			}
			if state.stopped {
				s.logger.Error("フィードの取り込みを停止しました", attrs...)
			} else if action == actionBackoff {
				s.logger.Warn("フィードの取り込みに失敗しました。バックオフします",
					append(attrs, slog.Time("next_attempt_at", state.nextAttemptAt))...)
			} else {
				s.logger.Warn("フィードの取り込みに失敗しました", attrs...)
			}
			continue
		}
		state.applySuccess()
		total += res.Added
	}

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("feed_count", len(s.urls)),
		slog.Int("added", total),
		slog.Int("failed", failed),
		slog.Int("deferred", skipped),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return total
}

func (s *Scheduler) stateOf(rawURL string) *feedState {
	st, ok := s.states[rawURL]
	if !ok {
		st = &feedState{}
		s.states[rawURL] = st
	}
	return st
}

package programs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/radioedit/internal/metrics"
	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/program"
)

// UpdateFunc は現在の有効集合（内部表現、pos順）から新しい一覧を作る。
type UpdateFunc func(current []model.Program) ([]model.Program, error)

// Service は番組一覧のサービス層。
// 保存と読み込み・変更・書き込みの一連の操作をプロセス内で直列化する。
// 読み込みはロックを取らず、その時点でコミット済みの状態を返す。
type Service struct {
	mu      sync.Mutex
	syncer  *Synchronizer
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。metricsCollector はnilでもよい。
func NewService(s *Synchronizer, metricsCollector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		syncer:  s,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// LoadPrograms は有効な番組一覧を返す（loadProgs）。
func (s *Service) LoadPrograms(ctx context.Context) ([]program.Row, error) {
	start := time.Now()
	rows, err := s.syncer.Load(ctx)
	if err != nil {
		s.logger.Error("番組一覧の読み込みに失敗しました", slog.String("error", err.Error()))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLoad(time.Since(start))
	}
	return rows, nil
}

// SavePrograms は番組一覧を保存し、保存後の一覧を返す（saveProgs）。
func (s *Service) SavePrograms(ctx context.Context, payloads []program.Payload) ([]program.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.syncer.Save(ctx, payloads)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	s.recordSuccess(result, time.Since(start))
	return result.Programs, nil
}

// Update は現在の有効集合に fn を適用した結果を保存する。
// 読み込みから書き込みまでを保存と同じロックで直列化する。
func (s *Service) Update(ctx context.Context, fn UpdateFunc) ([]program.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	current, err := s.syncer.Active(ctx)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	result, err := s.syncer.Commit(ctx, next)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	s.recordSuccess(result, time.Since(start))
	return result.Programs, nil
}

// ListHistory は履歴スナップショットを新しい順で返す。
func (s *Service) ListHistory(ctx context.Context, pid string) ([]program.Row, error) {
	return s.syncer.History(ctx, pid)
}

// MaxPrograms は有効な番組数の上限を返す。
func (s *Service) MaxPrograms() int {
	return s.syncer.MaxPrograms()
}

// Ping はストアへの疎通を確認する。
func (s *Service) Ping(ctx context.Context) error {
	return s.syncer.Ping(ctx)
}

func (s *Service) recordSuccess(result *SaveResult, elapsed time.Duration) {
	s.logger.Info("番組一覧を保存しました",
		slog.Int("programs", len(result.Programs)),
		slog.Int("historized", result.Historized),
	)
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSave(len(result.Programs), elapsed)
	if result.Historized > 0 {
		s.metrics.RecordHistoryAppended(result.Historized)
	}
}

func (s *Service) recordFailure(err error) {
	code := "UNKNOWN"
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}

	if apiErr != nil && apiErr.Category == "validation" {
		s.logger.Warn("番組一覧の保存を拒否しました", slog.String("code", code), slog.String("error", err.Error()))
	} else {
		s.logger.Error("番組一覧の保存に失敗しました", slog.String("code", code), slog.String("error", err.Error()))
	}
	if s.metrics != nil {
		s.metrics.RecordSaveFailure(code)
	}
}

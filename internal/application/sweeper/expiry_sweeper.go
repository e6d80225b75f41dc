// Package sweeper バックグラウンドの状態収束処理を提供する。
//
// 期限スイーパーは期限切れのpendingコードをexpiredへ遷移させ、
// リカバリースイーパーは結果未確定のままredeemingに残ったコードを
// 元帳への照会で終端状態へ収束させる。どちらの遷移も引き換えクレームと
// 同じ条件付きUPDATEの規律に従うため、並行する引き換えと二重に
// 勝つことはない
package sweeper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/infrastructure/config"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
)

// ExpirySweeper 期限切れpendingコードをexpiredへ遷移させるスイーパー
type ExpirySweeper struct {
	codeRepo domain.DepositCodeRepository
	cfg      *config.SweeperConfig
	logger   *otelinfra.Logger
	metrics  *otelinfra.Metrics
	tracer   trace.Tracer
}

// NewExpirySweeper 新しいExpirySweeperを作成
func NewExpirySweeper(
	codeRepo domain.DepositCodeRepository,
	cfg *config.SweeperConfig,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *ExpirySweeper {
	return &ExpirySweeper{
		codeRepo: codeRepo,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("expiry-sweeper"),
	}
}

// Start 定期実行ループを開始する。ctxのキャンセルで停止する
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExpiryInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Expiry sweeper started", map[string]interface{}{
		"interval":   s.cfg.ExpiryInterval.String(),
		"batch_size": s.cfg.BatchSize,
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Expiry sweeper stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				// 途中で失敗した周回の残りは次の周回か遅延チェックが拾う
				s.logger.Error(ctx, "Expiry sweep cycle failed", err, nil)
			}
		}
	}
}

// RunOnce 1周回分のスイープを実行し、遷移させた件数を返す
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ExpirySweeper.RunOnce")
	defer span.End()

	now := time.Now()
	codes, err := s.codeRepo.FindExpiredPending(ctx, now, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, err
	}

	swept := 0
	for _, dc := range codes {
		err := s.codeRepo.MarkExpired(ctx, dc.ID(), now)
		if err == domain.ErrCodeNotPending {
			// 並行する引き換えかキャンセルに敗れた。正しい敗北なので飛ばす
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return swept, err
		}
		swept++
		s.metrics.RecordSweepTransition(ctx, "expiry", domain.CodeStatusExpired.String())
	}

	if swept > 0 {
		s.logger.Info(ctx, "Expired deposit codes swept", map[string]interface{}{
			"count": swept,
		})
	}

	span.SetAttributes(attribute.Int("sweep.count", swept))
	span.SetStatus(otelcodes.Ok, "expiry sweep completed")
	return swept, nil
}

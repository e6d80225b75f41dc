package sweeper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/ledger"
	"deposit-code-server/internal/infrastructure/config"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
)

// RecoverySweeper redeemingに残ったコードを元帳照会で終端状態へ収束させるスイーパー
//
// 引き換え試行が結果未確定のまま終わった場合（元帳タイムアウト、
// コミット前のプロセスクラッシュ）、コードは冪等キーを保持したまま
// redeemingに残る。このスイーパーがそのキーで元帳に「この送金は
// 完了したか」を照会し、確定した結果だけを書き込む
type RecoverySweeper struct {
	codeRepo     domain.DepositCodeRepository
	ledgerClient ledger.Client
	cfg          *config.SweeperConfig
	logger       *otelinfra.Logger
	metrics      *otelinfra.Metrics
	tracer       trace.Tracer
}

// NewRecoverySweeper 新しいRecoverySweeperを作成
func NewRecoverySweeper(
	codeRepo domain.DepositCodeRepository,
	ledgerClient ledger.Client,
	cfg *config.SweeperConfig,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *RecoverySweeper {
	return &RecoverySweeper{
		codeRepo:     codeRepo,
		ledgerClient: ledgerClient,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("recovery-sweeper"),
	}
}

// Start 定期実行ループを開始する。ctxのキャンセルで停止する
func (s *RecoverySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RecoveryInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Recovery sweeper started", map[string]interface{}{
		"interval":          s.cfg.RecoveryInterval.String(),
		"claim_stuck_after": s.cfg.ClaimStuckAfter.String(),
		"batch_size":        s.cfg.BatchSize,
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Recovery sweeper stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error(ctx, "Recovery sweep cycle failed", err, nil)
			}
		}
	}
}

// RunOnce 1周回分のリカバリーを実行し、収束させた件数を返す
func (s *RecoverySweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "RecoverySweeper.RunOnce")
	defer span.End()

	// 進行中の正常な引き換えを拾わないよう、一定時間以上
	// redeemingに滞留しているコードだけを対象にする
	olderThan := time.Now().Add(-s.cfg.ClaimStuckAfter)
	codes, err := s.codeRepo.FindStuckRedeeming(ctx, olderThan, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, err
	}

	resolved := 0
	for _, dc := range codes {
		finalized, err := s.resolve(ctx, dc)
		if err != nil {
			s.logger.Error(ctx, "Failed to resolve stuck redemption", err, map[string]interface{}{
				"code_id": dc.ID(),
			})
			continue
		}
		// 元帳が未確定のまま持ち越したコードは収束件数に含めない
		if finalized {
			resolved++
		}
	}

	span.SetAttributes(attribute.Int("sweep.count", resolved))
	span.SetStatus(otelcodes.Ok, "recovery sweep completed")
	return resolved, nil
}

// resolve 1件の滞留コードを元帳照会の結果に応じて終端させる。
// このスイープで終端遷移を書き込んだときだけtrueを返す
func (s *RecoverySweeper) resolve(ctx context.Context, dc *domain.DepositCode) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "RecoverySweeper.resolve")
	defer span.End()

	span.SetAttributes(attribute.String("code_id", dc.ID()))

	key := dc.RedemptionIdempotencyKey()
	if key == nil {
		// クレームは必ずキーを書き込むため、ここに来るのはデータ異常のみ
		err := domain.ErrInvalidTransition
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "stuck code without idempotency key")
		return false, err
	}

	result, err := s.ledgerClient.QueryTransfer(ctx, *key)
	if err == ledger.ErrTransferNotFound {
		// 元帳に送金が届いていない。資金は動いていないのでfailedで終端できる
		return s.finalize(ctx, span, dc, domain.CodeStatusFailed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, err
	}

	switch result.Outcome {
	case ledger.TransferOutcomeSuccess:
		return s.finalize(ctx, span, dc, domain.CodeStatusSuccess)
	case ledger.TransferOutcomeFailed:
		return s.finalize(ctx, span, dc, domain.CodeStatusFailed)
	default:
		// まだ未確定。次の周回で再照会する
		span.SetStatus(otelcodes.Ok, "transfer still unresolved")
		return false, nil
	}
}

func (s *RecoverySweeper) finalize(ctx context.Context, span trace.Span, dc *domain.DepositCode, status domain.CodeStatus) (bool, error) {
	err := s.codeRepo.FinalizeRedemption(ctx, dc.ID(), status, time.Now())
	if err == domain.ErrInvalidTransition {
		// 別のプロセスが先に終端させた。既に収束している
		span.SetStatus(otelcodes.Ok, "already finalized")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, err
	}

	s.metrics.RecordSweepTransition(ctx, "recovery", status.String())
	s.logger.Info(ctx, "Stuck redemption resolved", map[string]interface{}{
		"code_id": dc.ID(),
		"status":  status.String(),
	})
	span.SetStatus(otelcodes.Ok, "redemption resolved")
	return true, nil
}

// Package redemption 預け入れコード引き換えの調整を担う。
//
// 引き換えは2つの外部システムにまたがる: ステータスの真実を持つコードストアと、
// 資金の真実を持つ外部元帳。両者は分散トランザクションを構成しないため、
// 正しさは3つの仕組みで担保する:
//
//  1. クレーム: pending → redeemingの原子的な条件付き遷移。並行する試行のうち
//     勝者だけが元帳に触れる
//  2. 冪等キー: クレーム時に一度だけ生成しレコードに保存する。同一試行の
//     再送は元帳側で重複排除される
//  3. リカバリースイープ: 結果未確定のままredeemingに残ったコードを、
//     保存済みの冪等キーで元帳に照会して終端状態へ収束させる
package redemption

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/ledger"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
)

const (
	// maxCommitRetries 終端コミットの再試行上限。
	// コミットのみ再試行する（送金の再実行は冪等キーがあっても行わない）
	maxCommitRetries = 3
)

// RedemptionCoordinator 引き換え調整サービス
type RedemptionCoordinator struct {
	codeRepo     domain.DepositCodeRepository
	ledgerClient ledger.Client
	logger       *otelinfra.Logger
	metrics      *otelinfra.Metrics
	tracer       trace.Tracer
}

// NewRedemptionCoordinator 新しいRedemptionCoordinatorを作成
func NewRedemptionCoordinator(
	codeRepo domain.DepositCodeRepository,
	ledgerClient ledger.Client,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *RedemptionCoordinator {
	return &RedemptionCoordinator{
		codeRepo:     codeRepo,
		ledgerClient: ledgerClient,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("redemption-coordinator"),
	}
}

// Redeem コードを引き換える
func (s *RedemptionCoordinator) Redeem(ctx context.Context, req *RedeemCodeRequest) (*RedeemCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RedemptionCoordinator.Redeem")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", req.Code),
		attribute.String("redeemer_id", req.RedeemerID),
	)

	s.logger.Info(ctx, "Redeeming deposit code", map[string]interface{}{
		"code":        req.Code,
		"redeemer_id": req.RedeemerID,
	})

	dc, err := s.codeRepo.FindByCode(ctx, req.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	idempotencyKey := uuid.NewString()

	// エンティティ側の検証で早期に拒絶する。ただしこの時点の観測は
	// 助言にすぎず、権威はクレームの条件付きUPDATEにある
	if err := dc.BeginRedemption(req.RedeemerID, idempotencyKey, now); err != nil {
		if err == domain.ErrCodeExpired && dc.Status().IsPending() {
			// 期限切れの遅延遷移。敗れても拒絶理由は変わらない
			_ = s.codeRepo.MarkExpired(ctx, dc.ID(), now)
			s.metrics.RecordSweepTransition(ctx, "lazy", domain.CodeStatusExpired.String())
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	// クレーム: 勝者だけが元帳に触れる
	err = s.codeRepo.ClaimForRedemption(ctx, dc.ID(), req.RedeemerID, idempotencyKey, now)
	if err == domain.ErrClaimNotAcquired {
		mapped := s.mapClaimRejection(ctx, dc.ID())
		span.RecordError(mapped)
		span.SetStatus(otelcodes.Error, mapped.Error())
		return nil, mapped
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to claim deposit code: %w", err)
	}

	// クレームを獲得した時点で資金が動きうるため、呼び出し側の
	// キャンセルに関わらず試行を終端まで進める
	ctx = context.WithoutCancel(ctx)

	return s.executeTransfer(ctx, dc, req.RedeemerID, idempotencyKey)
}

// executeTransfer クレーム獲得後の送金実行と終端コミット
func (s *RedemptionCoordinator) executeTransfer(ctx context.Context, dc *domain.DepositCode, redeemerID, idempotencyKey string) (*RedeemCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RedemptionCoordinator.executeTransfer")
	defer span.End()

	span.SetAttributes(
		attribute.String("code_id", dc.ID()),
		attribute.String("direction", dc.Direction().String()),
	)

	payerID, payeeID := dc.Direction().Participants(dc.CreatorID(), redeemerID)

	transferReq := &ledger.TransferRequest{
		PayerID:        payerID,
		PayeeID:        payeeID,
		Amount:         dc.Amount(),
		IdempotencyKey: idempotencyKey,
	}
	if dc.Direction() == domain.CodeDirectionSend && dc.CreatorAuthorization() != nil {
		transferReq.PayerAuthorization = *dc.CreatorAuthorization()
	}

	result, err := s.ledgerClient.Transfer(ctx, transferReq)
	if err != nil {
		// リクエスト不備などの確定的エラー。送金は開始されていない
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.metrics.RecordLedgerTransfer(ctx, ledger.TransferOutcomeFailed.String())
		if commitErr := s.commitWithRetry(ctx, dc.ID(), domain.CodeStatusFailed); commitErr != nil {
			return nil, domain.ErrRedemptionInProgress
		}
		s.metrics.RecordRedemption(ctx, dc.Direction().String(), "failed")
		return nil, fmt.Errorf("transfer rejected: %w", err)
	}

	s.metrics.RecordLedgerTransfer(ctx, result.Outcome.String())

	switch result.Outcome {
	case ledger.TransferOutcomeSuccess:
		if err := s.commitWithRetry(ctx, dc.ID(), domain.CodeStatusSuccess); err != nil {
			// 資金は動いている。コミットはリカバリースイープが収束させる
			s.logger.Error(ctx, "Failed to commit successful redemption", err, map[string]interface{}{
				"code_id":         dc.ID(),
				"idempotency_key": idempotencyKey,
			})
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, domain.ErrRedemptionInProgress
		}
		s.metrics.RecordRedemption(ctx, dc.Direction().String(), "success")
		s.logger.Info(ctx, "Deposit code redeemed", map[string]interface{}{
			"code_id":     dc.ID(),
			"redeemer_id": redeemerID,
			"amount":      dc.Amount(),
		})
		span.SetStatus(otelcodes.Ok, "redemption succeeded")
		return &RedeemCodeResponse{
			CodeID:    dc.ID(),
			Amount:    dc.Amount(),
			Direction: dc.Direction().String(),
			Outcome:   "success",
		}, nil

	case ledger.TransferOutcomeFailed:
		if err := s.commitWithRetry(ctx, dc.ID(), domain.CodeStatusFailed); err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, domain.ErrRedemptionInProgress
		}
		s.metrics.RecordRedemption(ctx, dc.Direction().String(), "failed")
		s.logger.Warn(ctx, "Deposit code redemption failed at ledger", map[string]interface{}{
			"code_id": dc.ID(),
			"reason":  result.FailureReason,
		})
		span.SetStatus(otelcodes.Ok, "redemption failed at ledger")
		return &RedeemCodeResponse{
			CodeID:    dc.ID(),
			Amount:    dc.Amount(),
			Direction: dc.Direction().String(),
			Outcome:   "failed",
			Reason:    result.FailureReason,
		}, nil

	default:
		// 結果未確定。redeemingのまま残し、リカバリースイープに委ねる。
		// pendingにも終端にも遷移させてはならない
		s.logger.Warn(ctx, "Transfer outcome unknown, leaving code for recovery", map[string]interface{}{
			"code_id":         dc.ID(),
			"idempotency_key": idempotencyKey,
		})
		s.metrics.RecordRedemption(ctx, dc.Direction().String(), "unknown")
		span.SetStatus(otelcodes.Ok, "redemption pending recovery")
		return nil, domain.ErrRedemptionInProgress
	}
}

// commitWithRetry 終端コミットをバックオフ付きで再試行する
//
// 再試行はコミットのみ。送金を再実行すると冪等キーの保護を超えて
// 二重送金の窓を広げるため行わない
func (s *RedemptionCoordinator) commitWithRetry(ctx context.Context, codeID string, status domain.CodeStatus) error {
	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 10 * time.Millisecond
			time.Sleep(backoff)
		}

		err := s.codeRepo.FinalizeRedemption(ctx, codeID, status, time.Now())
		if err == nil {
			return nil
		}
		if err == domain.ErrInvalidTransition {
			// 既に収束済みか確認する（再試行と先行コミットの競合）
			dc, findErr := s.codeRepo.FindByID(ctx, codeID)
			if findErr == nil && dc.Status() == status {
				return nil
			}
			return err
		}
		lastErr = err
	}
	return lastErr
}

// mapClaimRejection クレーム敗北の正確な拒絶理由を読み直して決定する
func (s *RedemptionCoordinator) mapClaimRejection(ctx context.Context, codeID string) error {
	dc, err := s.codeRepo.FindByID(ctx, codeID)
	if err != nil {
		return err
	}
	if dc.Status().IsPending() {
		// pendingのままクレームが0件になるのは期限切れ条件のみ。
		// 記録側も遅延遷移させる。敗れても拒絶理由は変わらない
		if err := s.codeRepo.MarkExpired(ctx, dc.ID(), time.Now()); err == nil {
			s.metrics.RecordSweepTransition(ctx, "lazy", domain.CodeStatusExpired.String())
		}
		return domain.ErrCodeExpired
	}
	return domain.RejectionError(dc.Status())
}

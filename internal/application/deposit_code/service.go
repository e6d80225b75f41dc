package deposit_code

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/user"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
)

const (
	// DefaultExpiry 有効期限を指定しない場合のデフォルト
	DefaultExpiry = 7 * 24 * time.Hour
	// maxCodeAttempts コード生成の衝突リトライ上限
	maxCodeAttempts = 10
	// defaultListLimit 一覧取得のデフォルト件数
	defaultListLimit = 20
	// maxListLimit 一覧取得の最大件数
	maxListLimit = 100
)

// TransferAuthorizer sendコード用の送金認可グラントを発行する
type TransferAuthorizer interface {
	MintTransferAuthorization(ctx context.Context, userID, codeID string, amount int64, expiresAt time.Time) (string, error)
}

// DepositCodeApplicationService 預け入れコードアプリケーションサービス
type DepositCodeApplicationService struct {
	codeRepo   domain.DepositCodeRepository
	userDir    user.Directory
	authorizer TransferAuthorizer
	logger     *otelinfra.Logger
	metrics    *otelinfra.Metrics
	tracer     trace.Tracer
}

// NewDepositCodeApplicationService 新しいDepositCodeApplicationServiceを作成
func NewDepositCodeApplicationService(
	codeRepo domain.DepositCodeRepository,
	userDir user.Directory,
	authorizer TransferAuthorizer,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *DepositCodeApplicationService {
	return &DepositCodeApplicationService{
		codeRepo:   codeRepo,
		userDir:    userDir,
		authorizer: authorizer,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("deposit-code-service"),
	}
}

// Issue 新しい預け入れコードを発行する
func (s *DepositCodeApplicationService) Issue(ctx context.Context, req *IssueCodeRequest) (*IssueCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "DepositCodeApplicationService.Issue")
	defer span.End()

	span.SetAttributes(
		attribute.String("creator_id", req.CreatorID),
		attribute.String("direction", req.Direction),
		attribute.Int64("amount", req.Amount),
	)

	s.logger.Info(ctx, "Issuing deposit code", map[string]interface{}{
		"creator_id": req.CreatorID,
		"direction":  req.Direction,
		"amount":     req.Amount,
	})

	direction, err := domain.NewCodeDirection(req.Direction)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	exists, err := s.userDir.Exists(ctx, req.CreatorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to verify creator: %w", err)
	}
	if !exists {
		err := user.ErrUserNotFound
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	expiresAt := time.Now().Add(DefaultExpiry)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	id := uuid.NewString()

	// sendコードは作成者が引き換え時に不在のため、発行時点で
	// 送金認可グラントを取得してコードに預ける
	var creatorAuthorization *string
	if direction == domain.CodeDirectionSend {
		grant, err := s.authorizer.MintTransferAuthorization(ctx, req.CreatorID, id, req.Amount, expiresAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to mint transfer authorization: %w", err)
		}
		creatorAuthorization = &grant
	}

	// コード文字列の衝突はpending集合内でのみ起こりうる。
	// 生成と条件付きINSERTを衝突が解消するまで繰り返す
	var dc *domain.DepositCode
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := domain.GenerateCode()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		// 既知の衝突は事前チェックで弾く。最終判定は条件付きINSERTに委ねる
		taken, err := s.codeRepo.ExistsPendingCode(ctx, code)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to check code collision: %w", err)
		}
		if taken {
			continue
		}

		candidate, err := domain.NewDepositCode(id, code, req.Amount, direction, req.CreatorID, expiresAt, creatorAuthorization)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}

		err = s.codeRepo.Create(ctx, candidate)
		if err == domain.ErrCodeAlreadyExists {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			s.logger.Error(ctx, "Failed to create deposit code", err, map[string]interface{}{
				"creator_id": req.CreatorID,
			})
			return nil, fmt.Errorf("failed to create deposit code: %w", err)
		}
		dc = candidate
		break
	}
	if dc == nil {
		err := domain.ErrCodeGenerationExhausted
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Code generation exhausted", err, map[string]interface{}{
			"creator_id": req.CreatorID,
			"attempts":   maxCodeAttempts,
		})
		return nil, err
	}

	s.metrics.RecordCodeIssued(ctx, direction.String())

	s.logger.Info(ctx, "Deposit code issued", map[string]interface{}{
		"code_id":    dc.ID(),
		"creator_id": req.CreatorID,
		"direction":  direction.String(),
		"expires_at": dc.ExpiresAt().Unix(),
	})

	return &IssueCodeResponse{
		ID:        dc.ID(),
		Code:      dc.Code(),
		Amount:    dc.Amount(),
		Direction: dc.Direction().String(),
		Status:    dc.Status().String(),
		ExpiresAt: dc.ExpiresAt(),
		CreatedAt: dc.CreatedAt(),
	}, nil
}

// Get コード文字列でコードを取得する
//
// 期限切れのpendingコードは読み取り時にその場でexpiredへ遷移させる。
// スイーパーより先に読まれたコードも必ず期限切れとして観測される
func (s *DepositCodeApplicationService) Get(ctx context.Context, req *GetCodeRequest) (*GetCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "DepositCodeApplicationService.Get")
	defer span.End()

	span.SetAttributes(attribute.String("code", req.Code))

	dc, err := s.findWithLazyExpiry(ctx, req.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	creatorName, err := s.userDir.ResolveUsername(ctx, dc.CreatorID())
	if err != nil && err != user.ErrUserNotFound {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to resolve creator name: %w", err)
	}

	return &GetCodeResponse{
		ID:             dc.ID(),
		Code:           dc.Code(),
		Amount:         dc.Amount(),
		Direction:      dc.Direction().String(),
		CreatorID:      dc.CreatorID(),
		CreatorName:    creatorName,
		CounterpartyID: dc.CounterpartyID(),
		Status:         dc.Status().String(),
		ExpiresAt:      dc.ExpiresAt(),
		CreatedAt:      dc.CreatedAt(),
		ResolvedAt:     dc.ResolvedAt(),
	}, nil
}

// List 作成者のコード一覧を取得する
func (s *DepositCodeApplicationService) List(ctx context.Context, req *ListCodesRequest) (*ListCodesResponse, error) {
	ctx, span := s.tracer.Start(ctx, "DepositCodeApplicationService.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("creator_id", req.CreatorID),
		attribute.Int("limit", req.Limit),
		attribute.Int("offset", req.Offset),
	)

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	codes, err := s.codeRepo.FindByCreatorID(ctx, req.CreatorID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list deposit codes: %w", err)
	}

	// 一覧の読み取りでも期限切れpendingをその場でexpiredへ遷移させる
	now := time.Now()
	for i, dc := range codes {
		if !dc.Status().IsPending() || !dc.IsExpiredAt(now) {
			continue
		}
		if err := s.codeRepo.MarkExpired(ctx, dc.ID(), now); err != nil && err != domain.ErrCodeNotPending {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to expire deposit code: %w", err)
		}
		refreshed, err := s.codeRepo.FindByID(ctx, dc.ID())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		codes[i] = refreshed
		s.metrics.RecordSweepTransition(ctx, "lazy", domain.CodeStatusExpired.String())
	}

	return &ListCodesResponse{
		Codes:  codes,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// Cancel 未使用のコードを作成者がキャンセルする
func (s *DepositCodeApplicationService) Cancel(ctx context.Context, req *CancelCodeRequest) (*CancelCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "DepositCodeApplicationService.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("code_id", req.CodeID),
		attribute.String("requester_id", req.RequesterID),
	)

	now := time.Now()
	err := s.codeRepo.Cancel(ctx, req.CodeID, req.RequesterID, now)
	if err == domain.ErrCodeNotPending {
		// 条件付きUPDATEは失敗理由を区別しないため、読み直して正確な
		// エラーへ写像する
		mapped := s.mapCancelRejection(ctx, req)
		span.RecordError(mapped)
		span.SetStatus(otelcodes.Error, mapped.Error())
		return nil, mapped
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to cancel deposit code", err, map[string]interface{}{
			"code_id": req.CodeID,
		})
		return nil, fmt.Errorf("failed to cancel deposit code: %w", err)
	}

	s.logger.Info(ctx, "Deposit code cancelled", map[string]interface{}{
		"code_id":      req.CodeID,
		"requester_id": req.RequesterID,
	})

	return &CancelCodeResponse{
		ID:          req.CodeID,
		Status:      domain.CodeStatusCancelled.String(),
		CancelledAt: now,
	}, nil
}

// findWithLazyExpiry コードを取得し、期限切れのpendingをその場でexpiredへ遷移させる
func (s *DepositCodeApplicationService) findWithLazyExpiry(ctx context.Context, code string) (*domain.DepositCode, error) {
	dc, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if dc.Status().IsPending() && dc.IsExpiredAt(time.Now()) {
		now := time.Now()
		err := s.codeRepo.MarkExpired(ctx, dc.ID(), now)
		if err != nil && err != domain.ErrCodeNotPending {
			return nil, fmt.Errorf("failed to expire deposit code: %w", err)
		}
		// 並行する遷移に敗れた場合も含め、現在の状態を読み直す
		dc, err = s.codeRepo.FindByID(ctx, dc.ID())
		if err != nil {
			return nil, err
		}
		s.metrics.RecordSweepTransition(ctx, "lazy", domain.CodeStatusExpired.String())
	}

	return dc, nil
}

// mapCancelRejection キャンセル失敗の正確な理由を読み直して決定する
func (s *DepositCodeApplicationService) mapCancelRejection(ctx context.Context, req *CancelCodeRequest) error {
	dc, err := s.codeRepo.FindByID(ctx, req.CodeID)
	if err != nil {
		return err
	}
	if dc.CreatorID() != req.RequesterID {
		return domain.ErrNotCreator
	}
	if dc.Status().IsPending() {
		// pendingのままUPDATEが0件になるのは期限切れとの競合のみ
		if dc.IsExpiredAt(time.Now()) {
			return domain.ErrCodeExpired
		}
		return domain.ErrCodeNotPending
	}
	return domain.RejectionError(dc.Status())
}

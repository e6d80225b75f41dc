package handler

import (
	"context"
	"time"

	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/ledger"

	"github.com/stretchr/testify/mock"
)

// MockDepositCodeRepository モックデポジットコードリポジトリ
type MockDepositCodeRepository struct {
	mock.Mock
}

func (m *MockDepositCodeRepository) Create(ctx context.Context, code *domain.DepositCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FindByID(ctx context.Context, id string) (*domain.DepositCode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindByCode(ctx context.Context, code string) (*domain.DepositCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindByCreatorID(ctx context.Context, creatorID string, limit, offset int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, creatorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) ExistsPendingCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockDepositCodeRepository) ClaimForRedemption(ctx context.Context, id, redeemerID, idempotencyKey string, now time.Time) error {
	args := m.Called(ctx, id, redeemerID, idempotencyKey, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FinalizeRedemption(ctx context.Context, id string, status domain.CodeStatus, now time.Time) error {
	args := m.Called(ctx, id, status, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) Cancel(ctx context.Context, id, creatorID string, now time.Time) error {
	args := m.Called(ctx, id, creatorID, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindStuckRedeeming(ctx context.Context, olderThan time.Time, limit int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

// MockUserDirectory モックユーザーディレクトリ
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserDirectory) ResolveUsername(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// MockTransferAuthorizer モック送金認可発行者
type MockTransferAuthorizer struct {
	mock.Mock
}

func (m *MockTransferAuthorizer) MintTransferAuthorization(ctx context.Context, userID, codeID string, amount int64, expiresAt time.Time) (string, error) {
	args := m.Called(ctx, userID, codeID, amount, expiresAt)
	return args.String(0), args.Error(1)
}

// MockLedgerClient モック元帳クライアント
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) Transfer(ctx context.Context, req *ledger.TransferRequest) (*ledger.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransferResult), args.Error(1)
}

func (m *MockLedgerClient) QueryTransfer(ctx context.Context, idempotencyKey string) (*ledger.TransferResult, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransferResult), args.Error(1)
}

// pendingCode テスト用のpendingコードを作成
func pendingCode(id, code, creatorID string, direction domain.CodeDirection) *domain.DepositCode {
	now := time.Now()
	return domain.RestoreDepositCode(
		id,
		code,
		2500,
		direction,
		creatorID,
		nil,
		domain.CodeStatusPending,
		now.Add(24*time.Hour),
		now.Add(-time.Hour),
		now.Add(-time.Hour),
		nil,
		nil,
		nil,
	)
}

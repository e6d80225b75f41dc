package deposit_code

import (
	"time"

	domain "deposit-code-server/internal/domain/deposit_code"
)

// IssueCodeRequest コード発行リクエスト
type IssueCodeRequest struct {
	CreatorID string
	Amount    int64
	Direction string     // "get" | "send"
	ExpiresAt *time.Time // 省略時はデフォルト有効期限
}

// IssueCodeResponse コード発行レスポンス
type IssueCodeResponse struct {
	ID        string
	Code      string
	Amount    int64
	Direction string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// GetCodeRequest コード取得リクエスト
type GetCodeRequest struct {
	Code string
}

// GetCodeResponse コード取得レスポンス
// 送金認可リファレンスと冪等キーは内部状態のため含まない
type GetCodeResponse struct {
	ID             string
	Code           string
	Amount         int64
	Direction      string
	CreatorID      string
	CreatorName    string
	CounterpartyID *string
	Status         string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// ListCodesRequest コード一覧取得リクエスト
type ListCodesRequest struct {
	CreatorID string
	Limit     int
	Offset    int
}

// ListCodesResponse コード一覧取得レスポンス
type ListCodesResponse struct {
	Codes  []*domain.DepositCode
	Limit  int
	Offset int
}

// CancelCodeRequest コードキャンセルリクエスト
type CancelCodeRequest struct {
	CodeID      string
	RequesterID string
}

// CancelCodeResponse コードキャンセルレスポンス
type CancelCodeResponse struct {
	ID          string
	Status      string
	CancelledAt time.Time
}

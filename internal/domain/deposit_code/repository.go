package deposit_code

import (
	"context"
	"time"
)

// DepositCodeRepository デポジットコードリポジトリインターフェース
//
// ステータスを変更する操作（Claim / Finalize / MarkExpired / Cancel）はすべて
// 現在のステータスを条件とする単一の条件付き書き込みで実装されなければならない。
// 条件が満たされなかった場合、各操作は状態を変更せずエラーを返す
type DepositCodeRepository interface {
	// Create コードを保存する。コード文字列がpending/redeemingの集合内で
	// 重複する場合はErrCodeAlreadyExistsを返す
	Create(ctx context.Context, code *DepositCode) error

	// FindByID IDでコードを取得
	FindByID(ctx context.Context, id string) (*DepositCode, error)

	// FindByCode コード文字列でコードを取得
	// コード文字列は再利用されうるため、複数存在する場合は最新のものを返す
	FindByCode(ctx context.Context, code string) (*DepositCode, error)

	// FindByCreatorID 作成者のコード一覧を新しい順に取得
	FindByCreatorID(ctx context.Context, creatorID string, limit, offset int) ([]*DepositCode, error)

	// ExistsPendingCode コード文字列がpending/redeemingの集合内に存在するか
	ExistsPendingCode(ctx context.Context, code string) (bool, error)

	// ClaimForRedemption pending → redeemingの原子的な条件付き遷移。
	// クレームに勝った呼び出しのみnilを返し、その他はErrClaimNotAcquiredを返す
	ClaimForRedemption(ctx context.Context, id, redeemerID, idempotencyKey string, now time.Time) error

	// FinalizeRedemption redeeming → success/failedの原子的な条件付き遷移
	FinalizeRedemption(ctx context.Context, id string, status CodeStatus, now time.Time) error

	// MarkExpired pending → expiredの原子的な条件付き遷移。
	// 並行する引き換えに負けた場合はErrCodeNotPendingを返す
	MarkExpired(ctx context.Context, id string, now time.Time) error

	// Cancel pending → cancelledの原子的な条件付き遷移（作成者のみ）。
	// 送金認可リファレンスも同時に破棄する
	Cancel(ctx context.Context, id, creatorID string, now time.Time) error

	// FindExpiredPending 期限切れのpendingコードを取得（スイーパー用）
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*DepositCode, error)

	// FindStuckRedeeming 一定時間以上redeemingのまま残っているコードを取得
	// （リカバリースイープ用）
	FindStuckRedeeming(ctx context.Context, olderThan time.Time, limit int) ([]*DepositCode, error)
}

package deposit_code

import (
	"fmt"
)

// CodeStatus デポジットコードのステータスを表す値オブジェクト
type CodeStatus string

const (
	CodeStatusPending   CodeStatus = "pending"   // 引き換え待ち
	CodeStatusRedeeming CodeStatus = "redeeming" // 引き換え処理中（クレーム獲得済み）
	CodeStatusSuccess   CodeStatus = "success"   // 引き換え成功
	CodeStatusFailed    CodeStatus = "failed"    // 送金失敗
	CodeStatusExpired   CodeStatus = "expired"   // 期限切れ
	CodeStatusCancelled CodeStatus = "cancelled" // 作成者によるキャンセル
)

// NewCodeStatus 新しいCodeStatusを作成
func NewCodeStatus(s string) (CodeStatus, error) {
	switch s {
	case "pending", "redeeming", "success", "failed", "expired", "cancelled":
		return CodeStatus(s), nil
	default:
		return "", fmt.Errorf("invalid code status: %s", s)
	}
}

// String 文字列表現を返す
func (cs CodeStatus) String() string {
	return string(cs)
}

// Valid 有効なコードステータスかどうかを返す
func (cs CodeStatus) Valid() bool {
	switch cs {
	case CodeStatusPending, CodeStatusRedeeming, CodeStatusSuccess,
		CodeStatusFailed, CodeStatusExpired, CodeStatusCancelled:
		return true
	default:
		return false
	}
}

// IsPending 引き換え待ちかどうかを返す
func (cs CodeStatus) IsPending() bool {
	return cs == CodeStatusPending
}

// IsTerminal 終端状態かどうかを返す（pendingにもredeemingにも戻れない）
func (cs CodeStatus) IsTerminal() bool {
	switch cs {
	case CodeStatusSuccess, CodeStatusFailed, CodeStatusExpired, CodeStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo ステータス遷移が許可されているかどうかを返す
// 遷移は単方向: pending → redeeming → {success, failed}
// および pending → {expired, cancelled}
func (cs CodeStatus) CanTransitionTo(next CodeStatus) bool {
	switch cs {
	case CodeStatusPending:
		return next == CodeStatusRedeeming || next == CodeStatusExpired || next == CodeStatusCancelled
	case CodeStatusRedeeming:
		return next == CodeStatusSuccess || next == CodeStatusFailed
	default:
		return false
	}
}

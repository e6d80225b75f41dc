package deposit_code

import "errors"

var (
	// ErrCodeNotFound デポジットコードが見つからないエラー
	ErrCodeNotFound = errors.New("code not found")
	// ErrCodeAlreadyExists 同一コード文字列がpending集合内に既に存在するエラー
	ErrCodeAlreadyExists = errors.New("code already exists")
	// ErrCodeExpired デポジットコードが期限切れエラー
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeAlreadyUsed デポジットコードが既に使用済みエラー
	ErrCodeAlreadyUsed = errors.New("code already used")
	// ErrCodeCancelled デポジットコードがキャンセル済みエラー
	ErrCodeCancelled = errors.New("code cancelled")
	// ErrCodeNotPending 引き換え待ちではないコードへの操作エラー
	ErrCodeNotPending = errors.New("code not pending")
	// ErrOwnCodeRedemption 作成者自身による引き換えエラー
	ErrOwnCodeRedemption = errors.New("cannot redeem own code")
	// ErrClaimNotAcquired クレーム（排他権）を獲得できなかったエラー
	ErrClaimNotAcquired = errors.New("claim not acquired")
	// ErrCodeGenerationExhausted コード生成の再試行上限に達したエラー
	ErrCodeGenerationExhausted = errors.New("code generation attempts exhausted")
	// ErrNotCreator コード作成者以外による操作エラー
	ErrNotCreator = errors.New("not the code creator")
	// ErrInvalidTransition 許可されていないステータス遷移エラー
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRedemptionInProgress 結果が未確定のまま解決待ちのエラー。
	// 呼び出し側はコードのステータスをポーリングする
	ErrRedemptionInProgress = errors.New("redemption in progress")
)

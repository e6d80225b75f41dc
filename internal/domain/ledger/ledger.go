// Package ledger 外部の勘定元帳サービスへの抽象を提供する。
// 元帳はat-least-once配送と冪等キーによる重複排除を提供する外部システムであり、
// コードストアとの分散トランザクションには参加しない
package ledger

import (
	"context"
)

// TransferOutcome 送金結果を表す値オブジェクト
type TransferOutcome string

const (
	// TransferOutcomeSuccess 送金が確定的に成功した
	TransferOutcomeSuccess TransferOutcome = "success"
	// TransferOutcomeFailed 送金が確定的に失敗した（資金は移動していない）
	TransferOutcomeFailed TransferOutcome = "failed"
	// TransferOutcomeUnknown 結果が未確定（タイムアウト等）。リカバリースイープで解決する
	TransferOutcomeUnknown TransferOutcome = "unknown"
)

// String 文字列表現を返す
func (o TransferOutcome) String() string {
	return string(o)
}

// TransferRequest 送金リクエスト
type TransferRequest struct {
	PayerID        string
	PayeeID        string
	Amount         int64 // マイナー単位
	IdempotencyKey string
	// PayerAuthorization 支払人が引き換え時に不在となるsendコードのために
	// 発行時に取得した認可リファレンス。getコードでは空
	PayerAuthorization string
}

// TransferResult 送金結果
type TransferResult struct {
	Outcome       TransferOutcome
	FailureReason string // Outcome == TransferOutcomeFailed の場合のみ
}

// Client 元帳サービスクライアントインターフェース
type Client interface {
	// Transfer 冪等キー付きで送金を実行する。
	// 結果が確定できない場合はTransferOutcomeUnknownを返す（エラーではない）
	Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)

	// QueryTransfer 冪等キーで過去の送金の結果を照会する
	QueryTransfer(ctx context.Context, idempotencyKey string) (*TransferResult, error)
}

package ledger

import "errors"

var (
	// ErrTransferNotFound 冪等キーに対応する送金が見つからないエラー
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrInvalidTransferRequest 送金リクエストが不正なエラー
	ErrInvalidTransferRequest = errors.New("invalid transfer request")
)

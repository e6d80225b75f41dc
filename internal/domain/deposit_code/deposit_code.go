package deposit_code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// CodeLength コード文字列の桁数
	CodeLength = 6
	// MaxAmount 最大金額（マイナー単位で10兆）
	MaxAmount = 10_000_000_000_000
)

// DepositCode デポジットコードエンティティ
// 2ユーザー間の資金移動を表す一回限りの引き換えトークン
type DepositCode struct {
	id                       string
	code                     string
	amount                   int64 // マイナー単位の整数値
	direction                CodeDirection
	creatorID                string
	counterpartyID           *string
	status                   CodeStatus
	expiresAt                time.Time
	createdAt                time.Time
	updatedAt                time.Time
	resolvedAt               *time.Time
	redemptionIdempotencyKey *string
	creatorAuthorization     *string // sendコードのみ。キャンセルで失効する
}

// NewDepositCode 新しいDepositCodeエンティティを作成
func NewDepositCode(
	id string,
	code string,
	amount int64,
	direction CodeDirection,
	creatorID string,
	expiresAt time.Time,
	creatorAuthorization *string,
) (*DepositCode, error) {
	if id == "" {
		return nil, errors.New("invalid id")
	}
	if len(code) != CodeLength {
		return nil, fmt.Errorf("invalid code length: %d", len(code))
	}
	if amount <= 0 || amount > MaxAmount {
		return nil, errors.New("invalid amount")
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("invalid direction: %s", direction)
	}
	if creatorID == "" {
		return nil, errors.New("invalid creator id")
	}
	if direction == CodeDirectionSend && (creatorAuthorization == nil || *creatorAuthorization == "") {
		return nil, errors.New("creator authorization required for send codes")
	}

	now := time.Now()
	if !expiresAt.After(now) {
		return nil, errors.New("expiry must be in the future")
	}

	return &DepositCode{
		id:                   id,
		code:                 code,
		amount:               amount,
		direction:            direction,
		creatorID:            creatorID,
		status:               CodeStatusPending,
		expiresAt:            expiresAt,
		createdAt:            now,
		updatedAt:            now,
		creatorAuthorization: creatorAuthorization,
	}, nil
}

// RestoreDepositCode 永続化された状態からエンティティを復元（リポジトリ用）
func RestoreDepositCode(
	id string,
	code string,
	amount int64,
	direction CodeDirection,
	creatorID string,
	counterpartyID *string,
	status CodeStatus,
	expiresAt time.Time,
	createdAt time.Time,
	updatedAt time.Time,
	resolvedAt *time.Time,
	redemptionIdempotencyKey *string,
	creatorAuthorization *string,
) *DepositCode {
	return &DepositCode{
		id:                       id,
		code:                     code,
		amount:                   amount,
		direction:                direction,
		creatorID:                creatorID,
		counterpartyID:           counterpartyID,
		status:                   status,
		expiresAt:                expiresAt,
		createdAt:                createdAt,
		updatedAt:                updatedAt,
		resolvedAt:               resolvedAt,
		redemptionIdempotencyKey: redemptionIdempotencyKey,
		creatorAuthorization:     creatorAuthorization,
	}
}

// ID IDを返す
func (dc *DepositCode) ID() string {
	return dc.id
}

// Code コード文字列を返す
func (dc *DepositCode) Code() string {
	return dc.code
}

// Amount 金額を返す
func (dc *DepositCode) Amount() int64 {
	return dc.amount
}

// Direction 資金移動の向きを返す
func (dc *DepositCode) Direction() CodeDirection {
	return dc.direction
}

// CreatorID 作成者のユーザーIDを返す
func (dc *DepositCode) CreatorID() string {
	return dc.creatorID
}

// CounterpartyID 引き換え者のユーザーIDを返す（未引き換えの場合はnil）
func (dc *DepositCode) CounterpartyID() *string {
	return dc.counterpartyID
}

// Status ステータスを返す
func (dc *DepositCode) Status() CodeStatus {
	return dc.status
}

// ExpiresAt 有効期限を返す
func (dc *DepositCode) ExpiresAt() time.Time {
	return dc.expiresAt
}

// CreatedAt 作成日時を返す
func (dc *DepositCode) CreatedAt() time.Time {
	return dc.createdAt
}

// UpdatedAt 更新日時を返す
func (dc *DepositCode) UpdatedAt() time.Time {
	return dc.updatedAt
}

// ResolvedAt 終端状態への遷移日時を返す（未遷移の場合はnil）
func (dc *DepositCode) ResolvedAt() *time.Time {
	return dc.resolvedAt
}

// RedemptionIdempotencyKey 引き換え試行の冪等キーを返す（クレーム前はnil）
func (dc *DepositCode) RedemptionIdempotencyKey() *string {
	return dc.redemptionIdempotencyKey
}

// CreatorAuthorization 作成者の送金認可リファレンスを返す（getコードはnil）
func (dc *DepositCode) CreatorAuthorization() *string {
	return dc.creatorAuthorization
}

// IsExpiredAt 指定時刻において期限切れかどうかを返す
func (dc *DepositCode) IsExpiredAt(now time.Time) bool {
	return !dc.expiresAt.After(now)
}

// IsRedeemableAt 指定時刻において引き換え可能かどうかを返す
func (dc *DepositCode) IsRedeemableAt(now time.Time) bool {
	return dc.status.IsPending() && !dc.IsExpiredAt(now)
}

// BeginRedemption 引き換えクレームを獲得し、redeemingへ遷移する
// counterpartyと冪等キーはこの一度の遷移でのみ割り当てられる
func (dc *DepositCode) BeginRedemption(redeemerID, idempotencyKey string, now time.Time) error {
	if redeemerID == dc.creatorID {
		return ErrOwnCodeRedemption
	}
	if dc.IsExpiredAt(now) {
		return ErrCodeExpired
	}
	if !dc.status.CanTransitionTo(CodeStatusRedeeming) {
		return RejectionError(dc.status)
	}
	dc.status = CodeStatusRedeeming
	dc.counterpartyID = &redeemerID
	dc.redemptionIdempotencyKey = &idempotencyKey
	dc.updatedAt = now
	return nil
}

// CompleteRedemption redeemingから終端状態へ遷移する
func (dc *DepositCode) CompleteRedemption(succeeded bool, now time.Time) error {
	next := CodeStatusSuccess
	if !succeeded {
		next = CodeStatusFailed
	}
	if !dc.status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	dc.status = next
	dc.resolvedAt = &now
	dc.updatedAt = now
	return nil
}

// Expire pendingから期限切れへ遷移する
func (dc *DepositCode) Expire(now time.Time) error {
	if !dc.status.CanTransitionTo(CodeStatusExpired) {
		return ErrInvalidTransition
	}
	dc.status = CodeStatusExpired
	dc.resolvedAt = &now
	dc.updatedAt = now
	return nil
}

// Cancel 作成者によるキャンセル。送金認可リファレンスも失効させる
func (dc *DepositCode) Cancel(requesterID string, now time.Time) error {
	if requesterID != dc.creatorID {
		return ErrNotCreator
	}
	if !dc.status.CanTransitionTo(CodeStatusCancelled) {
		return ErrCodeNotPending
	}
	dc.status = CodeStatusCancelled
	dc.creatorAuthorization = nil
	dc.resolvedAt = &now
	dc.updatedAt = now
	return nil
}

// RejectionError 終端状態（または処理中）のコードに対する決定的な拒否エラーを返す
func RejectionError(status CodeStatus) error {
	switch status {
	case CodeStatusExpired:
		return ErrCodeExpired
	case CodeStatusCancelled:
		return ErrCodeCancelled
	case CodeStatusSuccess, CodeStatusFailed, CodeStatusRedeeming:
		return ErrCodeAlreadyUsed
	default:
		return ErrCodeNotPending
	}
}

// GenerateCode 暗号論的乱数から固定長の数字コードを生成
func GenerateCode() (string, error) {
	// 100000〜999999の範囲（先頭ゼロなし）
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// MustNewDepositCode テスト用ヘルパー: NewDepositCodeを呼び出し、エラーが発生した場合はpanicする
func MustNewDepositCode(
	id string,
	code string,
	amount int64,
	direction CodeDirection,
	creatorID string,
	expiresAt time.Time,
	creatorAuthorization *string,
) *DepositCode {
	dc, err := NewDepositCode(id, code, amount, direction, creatorID, expiresAt, creatorAuthorization)
	if err != nil {
		panic(err)
	}
	return dc
}

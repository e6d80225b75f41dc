package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deposit-code-server/internal/domain/deposit_code"
)

// DepositCodeRepository MySQL実装のDepositCodeRepository
//
// ステータスを変更するクエリはすべて現在のステータスをWHERE句の条件に含む
// 単一のUPDATEであり、RowsAffectedで勝敗を判定する。読み取ってから書く方式は
// 並行する引き換え試行の下で正しさを保証できないため使用しない
type DepositCodeRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewDepositCodeRepository 新しいDepositCodeRepositoryを作成
func NewDepositCodeRepository(db *DB) *DepositCodeRepository {
	return &DepositCodeRepository{
		db:     db,
		tracer: otel.Tracer("deposit-code-repository"),
	}
}

const depositCodeColumns = `
			id, code, amount, direction, creator_id, counterparty_id,
			status, expires_at, created_at, updated_at, resolved_at,
			redemption_idempotency_key, creator_authorization
`

// scanDepositCode 1行をエンティティに復元する
func scanDepositCode(row interface{ Scan(dest ...any) error }) (*deposit_code.DepositCode, error) {
	var (
		id, code, dbDirection, creatorID, dbStatus string
		amount                                     int64
		counterpartyID                             sql.NullString
		expiresAt, createdAt, updatedAt            time.Time
		resolvedAt                                 sql.NullTime
		idempotencyKey                             sql.NullString
		creatorAuthorization                       sql.NullString
	)

	err := row.Scan(
		&id,
		&code,
		&amount,
		&dbDirection,
		&creatorID,
		&counterpartyID,
		&dbStatus,
		&expiresAt,
		&createdAt,
		&updatedAt,
		&resolvedAt,
		&idempotencyKey,
		&creatorAuthorization,
	)
	if err != nil {
		return nil, err
	}

	direction, err := deposit_code.NewCodeDirection(dbDirection)
	if err != nil {
		return nil, fmt.Errorf("invalid direction: %w", err)
	}

	status, err := deposit_code.NewCodeStatus(dbStatus)
	if err != nil {
		return nil, fmt.Errorf("invalid code status: %w", err)
	}

	return deposit_code.RestoreDepositCode(
		id,
		code,
		amount,
		direction,
		creatorID,
		nullableString(counterpartyID),
		status,
		expiresAt,
		createdAt,
		updatedAt,
		nullableTime(resolvedAt),
		nullableString(idempotencyKey),
		nullableString(creatorAuthorization),
	), nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

// Create コードを保存する
// コード文字列の一意性はpending/redeemingの集合内でのみ強制する。
// 条件付きINSERTにより、存在チェックと挿入の間の競合を排除する
func (r *DepositCodeRepository) Create(ctx context.Context, dc *deposit_code.DepositCode) error {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", dc.ID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		INSERT INTO deposit_codes (
			id, code, amount, direction, creator_id,
			status, expires_at, created_at, updated_at, creator_authorization
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM DUAL
		WHERE NOT EXISTS (
			SELECT 1 FROM deposit_codes
			WHERE code = ? AND status IN ('pending', 'redeeming')
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		dc.ID(),
		dc.Code(),
		dc.Amount(),
		dc.Direction().String(),
		dc.CreatorID(),
		dc.Status().String(),
		dc.ExpiresAt(),
		dc.CreatedAt(),
		dc.UpdatedAt(),
		dc.CreatorAuthorization(),
		dc.Code(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create deposit code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Ok, "code collision")
		return deposit_code.ErrCodeAlreadyExists
	}

	span.SetStatus(otelcodes.Ok, "deposit code created")
	return nil
}

// FindByID IDでコードを取得
func (r *DepositCodeRepository) FindByID(ctx context.Context, id string) (*deposit_code.DepositCode, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", id),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT ` + depositCodeColumns + `
		FROM deposit_codes
		WHERE id = ?
	`

	dc, err := scanDepositCode(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "deposit code not found")
		return nil, deposit_code.ErrCodeNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find deposit code: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "deposit code found")
	return dc, nil
}

// FindByCode コード文字列でコードを取得
// コード文字列はpendingを離れた後に再利用されうるため、最新の1件を返す
func (r *DepositCodeRepository) FindByCode(ctx context.Context, code string) (*deposit_code.DepositCode, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FindByCode")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code", code),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT ` + depositCodeColumns + `
		FROM deposit_codes
		WHERE code = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	dc, err := scanDepositCode(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		span.SetStatus(otelcodes.Ok, "deposit code not found")
		return nil, deposit_code.ErrCodeNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find deposit code: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "deposit code found")
	return dc, nil
}

// FindByCreatorID 作成者のコード一覧を新しい順に取得
func (r *DepositCodeRepository) FindByCreatorID(ctx context.Context, creatorID string, limit, offset int) ([]*deposit_code.DepositCode, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FindByCreatorID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.creator_id", creatorID),
		attribute.Int("db.limit", limit),
		attribute.Int("db.offset", offset),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT ` + depositCodeColumns + `
		FROM deposit_codes
		WHERE creator_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, creatorID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list deposit codes: %w", err)
	}
	defer rows.Close()

	var codes []*deposit_code.DepositCode
	for rows.Next() {
		dc, err := scanDepositCode(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan deposit code: %w", err)
		}
		codes = append(codes, dc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate deposit codes: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", len(codes)))
	span.SetStatus(otelcodes.Ok, "deposit codes listed")
	return codes, nil
}

// ExistsPendingCode コード文字列がpending/redeemingの集合内に存在するか
func (r *DepositCodeRepository) ExistsPendingCode(ctx context.Context, code string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.ExistsPendingCode")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code", code),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT COUNT(*)
		FROM deposit_codes
		WHERE code = ? AND status IN ('pending', 'redeeming')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to check pending code: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", count))
	span.SetStatus(otelcodes.Ok, "pending code checked")
	return count > 0, nil
}

// ClaimForRedemption pending → redeemingの原子的な条件付き遷移
// 勝者のみがcounterpartyと冪等キーを書き込める。WHERE句のstatus条件が
// クレームの線形化ポイントとなる
func (r *DepositCodeRepository) ClaimForRedemption(ctx context.Context, id, redeemerID, idempotencyKey string, now time.Time) error {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.ClaimForRedemption")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", id),
		attribute.String("db.redeemer_id", redeemerID),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		UPDATE deposit_codes
		SET
			status = 'redeeming',
			counterparty_id = ?,
			redemption_idempotency_key = ?,
			updated_at = ?
		WHERE id = ? AND status = 'pending' AND expires_at > ?
	`

	result, err := r.db.ExecContext(ctx, query, redeemerID, idempotencyKey, now, id, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to claim deposit code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Ok, "claim not acquired")
		return deposit_code.ErrClaimNotAcquired
	}

	span.SetStatus(otelcodes.Ok, "claim acquired")
	return nil
}

// FinalizeRedemption redeeming → success/failedの原子的な条件付き遷移
func (r *DepositCodeRepository) FinalizeRedemption(ctx context.Context, id string, status deposit_code.CodeStatus, now time.Time) error {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FinalizeRedemption")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", id),
		attribute.String("db.status", status.String()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "deposit_codes"),
	)

	if status != deposit_code.CodeStatusSuccess && status != deposit_code.CodeStatusFailed {
		err := deposit_code.ErrInvalidTransition
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}

	query := `
		UPDATE deposit_codes
		SET
			status = ?,
			resolved_at = ?,
			updated_at = ?
		WHERE id = ? AND status = 'redeeming'
	`

	result, err := r.db.ExecContext(ctx, query, status.String(), now, now, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to finalize deposit code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Ok, "code not in redeeming state")
		return deposit_code.ErrInvalidTransition
	}

	span.SetStatus(otelcodes.Ok, "deposit code finalized")
	return nil
}

// MarkExpired pending → expiredの原子的な条件付き遷移
func (r *DepositCodeRepository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.MarkExpired")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", id),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		UPDATE deposit_codes
		SET
			status = 'expired',
			resolved_at = ?,
			updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to mark deposit code expired: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Ok, "code not pending")
		return deposit_code.ErrCodeNotPending
	}

	span.SetStatus(otelcodes.Ok, "deposit code expired")
	return nil
}

// Cancel pending → cancelledの原子的な条件付き遷移（作成者のみ）
// 送金認可リファレンスも同時に破棄する
func (r *DepositCodeRepository) Cancel(ctx context.Context, id, creatorID string, now time.Time) error {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.code_id", id),
		attribute.String("db.creator_id", creatorID),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		UPDATE deposit_codes
		SET
			status = 'cancelled',
			creator_authorization = NULL,
			resolved_at = ?,
			updated_at = ?
		WHERE id = ? AND creator_id = ? AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, now, now, id, creatorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to cancel deposit code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Ok, "code not cancellable")
		return deposit_code.ErrCodeNotPending
	}

	span.SetStatus(otelcodes.Ok, "deposit code cancelled")
	return nil
}

// FindExpiredPending 期限切れのpendingコードを取得（期限スイーパー用）
func (r *DepositCodeRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*deposit_code.DepositCode, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FindExpiredPending")
	defer span.End()

	span.SetAttributes(
		attribute.Int("db.limit", limit),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT ` + depositCodeColumns + `
		FROM deposit_codes
		WHERE status = 'pending' AND expires_at <= ?
		ORDER BY expires_at ASC
		LIMIT ?
	`

	return r.queryCodes(ctx, span, query, now, limit)
}

// FindStuckRedeeming 一定時間以上redeemingのまま残っているコードを取得
// （リカバリースイープ用）
func (r *DepositCodeRepository) FindStuckRedeeming(ctx context.Context, olderThan time.Time, limit int) ([]*deposit_code.DepositCode, error) {
	ctx, span := r.tracer.Start(ctx, "DepositCodeRepository.FindStuckRedeeming")
	defer span.End()

	span.SetAttributes(
		attribute.Int("db.limit", limit),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "deposit_codes"),
	)

	query := `
		SELECT ` + depositCodeColumns + `
		FROM deposit_codes
		WHERE status = 'redeeming' AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.queryCodes(ctx, span, query, olderThan, limit)
}

// queryCodes 複数行のSELECTを実行してエンティティに復元する
func (r *DepositCodeRepository) queryCodes(ctx context.Context, span trace.Span, query string, args ...any) ([]*deposit_code.DepositCode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to query deposit codes: %w", err)
	}
	defer rows.Close()

	var codes []*deposit_code.DepositCode
	for rows.Next() {
		dc, err := scanDepositCode(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan deposit code: %w", err)
		}
		codes = append(codes, dc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate deposit codes: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", len(codes)))
	span.SetStatus(otelcodes.Ok, "deposit codes queried")
	return codes, nil
}

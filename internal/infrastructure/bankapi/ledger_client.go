// Package bankapi 外部銀行APIのHTTPクライアント実装を提供する。
// 元帳（送金）とユーザーディレクトリの2つのクライアントが同一のベースURLと
// APIキーを共有する
package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deposit-code-server/internal/domain/ledger"
	"deposit-code-server/internal/infrastructure/config"
)

// LedgerClient 銀行元帳APIのHTTPクライアント
//
// 元帳はトランザクション参加者ではないため、結果の分類がすべてである。
// 2xxは確定的成功、4xxは確定的失敗（資金は移動していない）、
// 5xx・タイムアウト・ネットワーク断は未確定として扱い、同一の冪等キーでの
// 再試行または照会に委ねる
type LedgerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewLedgerClient 新しいLedgerClientを作成
func NewLedgerClient(cfg *config.BankAPIConfig) *LedgerClient {
	return &LedgerClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tracer: otel.Tracer("ledger-client"),
	}
}

// transferRequestBody 元帳APIの送金リクエストボディ
type transferRequestBody struct {
	PayerID            string `json:"payer_id"`
	PayeeID            string `json:"payee_id"`
	Amount             int64  `json:"amount"`
	PayerAuthorization string `json:"payer_authorization,omitempty"`
}

// transferResponseBody 元帳APIの送金レスポンスボディ
type transferResponseBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// errorResponseBody 元帳APIのエラーレスポンスボディ
type errorResponseBody struct {
	Error string `json:"error"`
}

// Transfer 冪等キー付きで送金を実行する
func (c *LedgerClient) Transfer(ctx context.Context, req *ledger.TransferRequest) (*ledger.TransferResult, error) {
	ctx, span := c.tracer.Start(ctx, "LedgerClient.Transfer")
	defer span.End()

	span.SetAttributes(
		attribute.String("ledger.idempotency_key", req.IdempotencyKey),
		attribute.Int64("ledger.amount", req.Amount),
	)

	if req.PayerID == "" || req.PayeeID == "" || req.Amount <= 0 || req.IdempotencyKey == "" {
		err := ledger.ErrInvalidTransferRequest
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	body, err := json.Marshal(&transferRequestBody{
		PayerID:            req.PayerID,
		PayeeID:            req.PayeeID,
		Amount:             req.Amount,
		PayerAuthorization: req.PayerAuthorization,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// 結果が届かなかっただけで元帳側では処理された可能性がある
		span.RecordError(err)
		span.SetStatus(otelcodes.Ok, "transfer outcome unknown")
		return &ledger.TransferResult{Outcome: ledger.TransferOutcomeUnknown}, nil
	}
	defer resp.Body.Close()

	result, err := c.classifyTransferResponse(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("ledger.outcome", result.Outcome.String()))
	span.SetStatus(otelcodes.Ok, "transfer completed")
	return result, nil
}

// QueryTransfer 冪等キーで過去の送金の結果を照会する
func (c *LedgerClient) QueryTransfer(ctx context.Context, idempotencyKey string) (*ledger.TransferResult, error) {
	ctx, span := c.tracer.Start(ctx, "LedgerClient.QueryTransfer")
	defer span.End()

	span.SetAttributes(attribute.String("ledger.idempotency_key", idempotencyKey))

	endpoint := c.baseURL + "/transfers/" + url.PathEscape(idempotencyKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Ok, "transfer outcome unknown")
		return &ledger.TransferResult{Outcome: ledger.TransferOutcomeUnknown}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		span.SetStatus(otelcodes.Ok, "transfer not found")
		return nil, ledger.ErrTransferNotFound
	}

	result, err := c.classifyTransferResponse(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("ledger.outcome", result.Outcome.String()))
	span.SetStatus(otelcodes.Ok, "transfer queried")
	return result, nil
}

// classifyTransferResponse HTTPステータスコードを送金結果に分類する
func (c *LedgerClient) classifyTransferResponse(resp *http.Response) (*ledger.TransferResult, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body transferResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode transfer response: %w", err)
		}
		// 照会APIは確定済みの失敗も200で返す
		if body.Status == "failed" {
			return &ledger.TransferResult{
				Outcome:       ledger.TransferOutcomeFailed,
				FailureReason: body.Reason,
			}, nil
		}
		if body.Status == "pending" {
			return &ledger.TransferResult{Outcome: ledger.TransferOutcomeUnknown}, nil
		}
		return &ledger.TransferResult{Outcome: ledger.TransferOutcomeSuccess}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var body errorResponseBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &ledger.TransferResult{
			Outcome:       ledger.TransferOutcomeFailed,
			FailureReason: body.Error,
		}, nil

	default:
		// 5xxは元帳側の状態が不明
		_, _ = io.Copy(io.Discard, resp.Body)
		return &ledger.TransferResult{Outcome: ledger.TransferOutcomeUnknown}, nil
	}
}

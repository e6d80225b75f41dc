package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// 発行されたコード数
	CodesIssued metric.Int64Counter

	// 引き換え試行数（結果別）
	RedemptionCount metric.Int64Counter

	// 元帳への送金数（結果別）
	LedgerTransferCount metric.Int64Counter

	// スイーパーによるステータス遷移数
	SweepTransitionCount metric.Int64Counter

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー率
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	codesIssued, err := meter.Int64Counter(
		"deposit_codes_issued_total",
		metric.WithDescription("Total number of deposit codes issued"),
	)
	if err != nil {
		return nil, err
	}

	redemptionCount, err := meter.Int64Counter(
		"redemptions_total",
		metric.WithDescription("Total number of redemption attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	ledgerTransferCount, err := meter.Int64Counter(
		"ledger_transfers_total",
		metric.WithDescription("Total number of ledger transfer submissions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	sweepTransitionCount, err := meter.Int64Counter(
		"sweep_transitions_total",
		metric.WithDescription("Total number of status transitions performed by sweepers"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"response_time_seconds",
		metric.WithDescription("Response time in seconds"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		CodesIssued:          codesIssued,
		RedemptionCount:      redemptionCount,
		LedgerTransferCount:  ledgerTransferCount,
		SweepTransitionCount: sweepTransitionCount,
		RequestCount:         requestCount,
		ResponseTime:         responseTime,
		ErrorCount:           errorCount,
	}, nil
}

// RecordCodeIssued コード発行を記録
func (m *Metrics) RecordCodeIssued(ctx context.Context, direction string) {
	m.CodesIssued.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
		),
	)
}

// RecordRedemption 引き換え試行を記録
func (m *Metrics) RecordRedemption(ctx context.Context, direction, outcome string) {
	m.RedemptionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordLedgerTransfer 元帳への送金を記録
func (m *Metrics) RecordLedgerTransfer(ctx context.Context, outcome string) {
	m.LedgerTransferCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSweepTransition スイーパーによる遷移を記録
func (m *Metrics) RecordSweepTransition(ctx context.Context, sweep, toStatus string) {
	m.SweepTransitionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sweep", sweep),
			attribute.String("to_status", toStatus),
		),
	)
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/ledger"
	"deposit-code-server/internal/domain/user"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
)

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandlerMiddleware エラーハンドリングミドルウェア
func ErrorHandlerMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			return handleError(c, err, logger)
		}
	}
}

// handleError エラーを処理して適切なHTTPレスポンスを返す
func handleError(c echo.Context, err error, logger *otelinfra.Logger) error {
	ctx := c.Request().Context()

	if errors.Is(err, deposit_code.ErrCodeNotFound) {
		logger.Warn(ctx, "Deposit code not found", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrCodeAlreadyUsed) {
		logger.Warn(ctx, "Deposit code already used", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_used",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrCodeExpired) {
		logger.Warn(ctx, "Deposit code expired", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusGone, ErrorResponse{
			Error:   "expired",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrCodeCancelled) {
		logger.Warn(ctx, "Deposit code cancelled", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusGone, ErrorResponse{
			Error:   "cancelled",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrOwnCodeRedemption) {
		logger.Warn(ctx, "Own code redemption rejected", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "own_code",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrNotCreator) {
		logger.Warn(ctx, "Not the code creator", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "not_creator",
			Message: err.Error(),
		})
	}

	if errors.Is(err, deposit_code.ErrCodeNotPending) {
		logger.Warn(ctx, "Deposit code not pending", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_pending",
			Message: err.Error(),
		})
	}

	// 結果が未確定のまま解決待ち。失敗ではないため202で返し、
	// 呼び出し側はコードのステータスをポーリングする
	if errors.Is(err, deposit_code.ErrRedemptionInProgress) {
		logger.Info(ctx, "Redemption in progress", map[string]interface{}{
			"path": c.Request().URL.Path,
		})
		return c.JSON(http.StatusAccepted, ErrorResponse{
			Error:   "in_progress",
			Message: "redemption is still resolving, poll the code status",
		})
	}

	if errors.Is(err, deposit_code.ErrCodeGenerationExhausted) {
		logger.Error(ctx, "Code generation exhausted", err, nil)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "capacity",
			Message: err.Error(),
		})
	}

	if errors.Is(err, user.ErrUserNotFound) {
		logger.Warn(ctx, "User not found", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "user_not_found",
			Message: err.Error(),
		})
	}

	if errors.Is(err, ledger.ErrInvalidTransferRequest) {
		logger.Warn(ctx, "Invalid transfer request", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_transfer",
			Message: err.Error(),
		})
	}

	// EchoのHTTPエラー
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		logger.Warn(ctx, "HTTP error", map[string]interface{}{
			"status_code": httpErr.Code,
			"message":     httpErr.Message,
		})
		message := ""
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(httpErr.Code)
		}
		return c.JSON(httpErr.Code, ErrorResponse{
			Error:   http.StatusText(httpErr.Code),
			Message: message,
		})
	}

	// 予期しないエラー
	logger.Error(ctx, "Internal server error", err, map[string]interface{}{
		"path": c.Request().URL.Path,
	})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_server_error",
		Message: "An unexpected error occurred",
	})
}

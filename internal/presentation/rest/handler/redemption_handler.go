package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"deposit-code-server/internal/application/redemption"
)

// RedemptionHandler コード引き換えハンドラー
type RedemptionHandler struct {
	coordinator *redemption.RedemptionCoordinator
}

// NewRedemptionHandler 新しいRedemptionHandlerを作成
func NewRedemptionHandler(coordinator *redemption.RedemptionCoordinator) *RedemptionHandler {
	return &RedemptionHandler{
		coordinator: coordinator,
	}
}

// RedeemCode コード引き換えハンドラー
// @Summary コードを引き換え
// @Description コードを引き換えて送金を実行します。引き換えは全体で一度だけ成立します
// @Tags codes
// @Accept json
// @Produce json
// @Param code path string true "コード文字列"
// @Param request body RedeemCodeRequest true "コード引き換えリクエスト"
// @Success 200 {object} RedeemCodeResponse "引き換え完了"
// @Failure 202 {object} ErrorResponse "引き換え処理中"
// @Failure 409 {object} ErrorResponse "引き換え済み"
// @Failure 410 {object} ErrorResponse "期限切れまたはキャンセル済み"
// @Security BearerAuth
// @Router /codes/{code}/redeem [post]
func (h *RedemptionHandler) RedeemCode(c echo.Context) error {
	var reqBody RedeemCodeRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if reqBody.RedeemerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "redeemer_id is required")
	}

	// 本人のトークンでのみ引き換えできる
	tokenUserID, ok := c.Get("user_id").(string)
	if !ok || tokenUserID != reqBody.RedeemerID {
		return echo.NewHTTPError(http.StatusForbidden, "redeemer_id mismatch")
	}

	resp, err := h.coordinator.Redeem(c.Request().Context(), &redemption.RedeemCodeRequest{
		Code:       c.Param("code"),
		RedeemerID: reqBody.RedeemerID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RedeemCodeResponse{
		CodeID:    resp.CodeID,
		Amount:    strconv.FormatInt(resp.Amount, 10),
		Direction: resp.Direction,
		Outcome:   resp.Outcome,
		Reason:    resp.Reason,
	})
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"deposit-code-server/internal/application/sweeper"
)

// AdminHandler 運用系APIハンドラー
type AdminHandler struct {
	expirySweeper   *sweeper.ExpirySweeper
	recoverySweeper *sweeper.RecoverySweeper
}

// NewAdminHandler 新しいAdminHandlerを作成
func NewAdminHandler(expirySweeper *sweeper.ExpirySweeper, recoverySweeper *sweeper.RecoverySweeper) *AdminHandler {
	return &AdminHandler{
		expirySweeper:   expirySweeper,
		recoverySweeper: recoverySweeper,
	}
}

// RunExpirySweep 期限切れスイープの手動実行
// @Summary 期限切れスイープを実行
// @Description 期限切れのpendingコードを一括でexpiredへ遷移させます
// @Tags admin
// @Produce json
// @Success 200 {object} SweepResponse "実行成功"
// @Failure 401 {object} ErrorResponse "認証失敗"
// @Security ApiKeyAuth
// @Router /admin/sweeps/expiry [post]
func (h *AdminHandler) RunExpirySweep(c echo.Context) error {
	swept, err := h.expirySweeper.RunOnce(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SweepResponse{Swept: swept})
}

// RunRecoverySweep 復旧スイープの手動実行
// @Summary 復旧スイープを実行
// @Description redeemingのまま滞留しているコードを台帳照会で解決します
// @Tags admin
// @Produce json
// @Success 200 {object} SweepResponse "実行成功"
// @Failure 401 {object} ErrorResponse "認証失敗"
// @Security ApiKeyAuth
// @Router /admin/sweeps/recovery [post]
func (h *AdminHandler) RunRecoverySweep(c echo.Context) error {
	resolved, err := h.recoverySweeper.RunOnce(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SweepResponse{Swept: resolved})
}

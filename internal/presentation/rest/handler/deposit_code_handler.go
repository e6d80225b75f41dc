package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	codeapp "deposit-code-server/internal/application/deposit_code"
	domain "deposit-code-server/internal/domain/deposit_code"
)

// DepositCodeHandler 預け入れコード関連ハンドラー
type DepositCodeHandler struct {
	codeService *codeapp.DepositCodeApplicationService
}

// NewDepositCodeHandler 新しいDepositCodeHandlerを作成
func NewDepositCodeHandler(codeService *codeapp.DepositCodeApplicationService) *DepositCodeHandler {
	return &DepositCodeHandler{
		codeService: codeService,
	}
}

// IssueCode コード発行ハンドラー
// @Summary 預け入れコードを発行
// @Description 認証ユーザーを作成者として新しい預け入れコードを発行します
// @Tags codes
// @Accept json
// @Produce json
// @Param request body IssueCodeRequest true "コード発行リクエスト"
// @Success 201 {object} IssueCodeResponse "発行成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Security BearerAuth
// @Router /codes [post]
func (h *DepositCodeHandler) IssueCode(c echo.Context) error {
	var reqBody IssueCodeRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	creatorID, ok := c.Get("user_id").(string)
	if !ok || creatorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authenticated user")
	}

	amount, err := strconv.ParseInt(reqBody.Amount, 10, 64)
	if err != nil || amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a positive integer")
	}

	var expiresAt *time.Time
	if reqBody.ExpiryDays != 0 {
		if reqBody.ExpiryDays < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "expiry_days must be positive")
		}
		t := time.Now().AddDate(0, 0, reqBody.ExpiryDays)
		expiresAt = &t
	}

	resp, err := h.codeService.Issue(c.Request().Context(), &codeapp.IssueCodeRequest{
		CreatorID: creatorID,
		Amount:    amount,
		Direction: reqBody.Direction,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, IssueCodeResponse{
		ID:        resp.ID,
		Code:      resp.Code,
		Amount:    strconv.FormatInt(resp.Amount, 10),
		Direction: resp.Direction,
		Status:    resp.Status,
		ExpiresAt: resp.ExpiresAt.Format(time.RFC3339),
		CreatedAt: resp.CreatedAt.Format(time.RFC3339),
	})
}

// GetCode コード取得ハンドラー
// @Summary コード文字列でコードを取得
// @Description コード文字列から現在の状態を取得します。期限切れのpendingコードは取得時点でexpiredへ遷移します
// @Tags codes
// @Produce json
// @Param code path string true "コード文字列"
// @Success 200 {object} CodeResponse "取得成功"
// @Failure 404 {object} ErrorResponse "コードが見つからない"
// @Security BearerAuth
// @Router /codes/{code} [get]
func (h *DepositCodeHandler) GetCode(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	resp, err := h.codeService.Get(c.Request().Context(), &codeapp.GetCodeRequest{Code: code})
	if err != nil {
		return err
	}

	body := CodeResponse{
		ID:             resp.ID,
		Code:           resp.Code,
		Amount:         strconv.FormatInt(resp.Amount, 10),
		Direction:      resp.Direction,
		CreatorID:      resp.CreatorID,
		CreatorName:    resp.CreatorName,
		CounterpartyID: resp.CounterpartyID,
		Status:         resp.Status,
		ExpiresAt:      resp.ExpiresAt.Format(time.RFC3339),
		CreatedAt:      resp.CreatedAt.Format(time.RFC3339),
	}
	if resp.ResolvedAt != nil {
		s := resp.ResolvedAt.Format(time.RFC3339)
		body.ResolvedAt = &s
	}

	return c.JSON(http.StatusOK, body)
}

// ListCodes コード一覧取得ハンドラー
// @Summary ユーザーのコード一覧を取得
// @Description 指定ユーザーが作成したコードの一覧を新しい順に取得します
// @Tags codes
// @Produce json
// @Param user_id query string true "ユーザーID"
// @Param limit query int false "取得件数"
// @Param offset query int false "取得開始位置"
// @Success 200 {object} ListCodesResponse "取得成功"
// @Security BearerAuth
// @Router /codes [get]
func (h *DepositCodeHandler) ListCodes(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	// 自分のコードのみ一覧できる
	tokenUserID, ok := c.Get("user_id").(string)
	if !ok || tokenUserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "user_id mismatch")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	resp, err := h.codeService.List(c.Request().Context(), &codeapp.ListCodesRequest{
		CreatorID: userID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return err
	}

	items := make([]CodeResponse, 0, len(resp.Codes))
	for _, dc := range resp.Codes {
		items = append(items, toCodeResponse(dc))
	}

	return c.JSON(http.StatusOK, ListCodesResponse{
		Codes:  items,
		Limit:  resp.Limit,
		Offset: resp.Offset,
	})
}

// UpdateCode コード更新ハンドラー（キャンセルのみ）
// @Summary コードをキャンセル
// @Description 作成者がpendingのコードをキャンセルします。他のステータスへの更新は受け付けません
// @Tags codes
// @Accept json
// @Produce json
// @Param id path string true "コードID"
// @Param request body UpdateCodeRequest true "コード更新リクエスト"
// @Success 200 {object} UpdateCodeResponse "キャンセル成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 403 {object} ErrorResponse "作成者以外"
// @Security BearerAuth
// @Router /codes/{id} [put]
func (h *DepositCodeHandler) UpdateCode(c echo.Context) error {
	var reqBody UpdateCodeRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if reqBody.Status != domain.CodeStatusCancelled.String() {
		return echo.NewHTTPError(http.StatusBadRequest, "status can only be updated to cancelled")
	}

	requesterID, ok := c.Get("user_id").(string)
	if !ok || requesterID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authenticated user")
	}

	resp, err := h.codeService.Cancel(c.Request().Context(), &codeapp.CancelCodeRequest{
		CodeID:      c.Param("id"),
		RequesterID: requesterID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, UpdateCodeResponse{
		ID:          resp.ID,
		Status:      resp.Status,
		CancelledAt: resp.CancelledAt.Format(time.RFC3339),
	})
}

// toCodeResponse エンティティをレスポンスモデルへ変換
func toCodeResponse(dc *domain.DepositCode) CodeResponse {
	body := CodeResponse{
		ID:             dc.ID(),
		Code:           dc.Code(),
		Amount:         strconv.FormatInt(dc.Amount(), 10),
		Direction:      dc.Direction().String(),
		CreatorID:      dc.CreatorID(),
		CounterpartyID: dc.CounterpartyID(),
		Status:         dc.Status().String(),
		ExpiresAt:      dc.ExpiresAt().Format(time.RFC3339),
		CreatedAt:      dc.CreatedAt().Format(time.RFC3339),
	}
	if dc.ResolvedAt() != nil {
		s := dc.ResolvedAt().Format(time.RFC3339)
		body.ResolvedAt = &s
	}
	return body
}

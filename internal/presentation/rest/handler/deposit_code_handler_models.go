package handler

// IssueCodeRequest コード発行リクエスト
// @Description コード発行リクエスト
type IssueCodeRequest struct {
	Amount     string `json:"amount" example:"2500"`
	Direction  string `json:"direction" example:"get" enums:"get,send"`
	ExpiryDays int    `json:"expiry_days" example:"7"`
}

// IssueCodeResponse コード発行レスポンス
// @Description コード発行レスポンス
type IssueCodeResponse struct {
	ID        string `json:"id" example:"2f4a1c9e-0b7d-4f7a-9c3e-5d8b1a2f6e0c"`
	Code      string `json:"code" example:"483920"`
	Amount    string `json:"amount" example:"2500"`
	Direction string `json:"direction" example:"get"`
	Status    string `json:"status" example:"pending"`
	ExpiresAt string `json:"expires_at" example:"2024-01-08T00:00:00Z"`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// CodeResponse コード取得レスポンス
// @Description コード取得レスポンス
type CodeResponse struct {
	ID             string  `json:"id" example:"2f4a1c9e-0b7d-4f7a-9c3e-5d8b1a2f6e0c"`
	Code           string  `json:"code" example:"483920"`
	Amount         string  `json:"amount" example:"2500"`
	Direction      string  `json:"direction" example:"get"`
	CreatorID      string  `json:"creator_id" example:"user123"`
	CreatorName    string  `json:"creator_name,omitempty" example:"alice"`
	CounterpartyID *string `json:"counterparty_id,omitempty" example:"user456"`
	Status         string  `json:"status" example:"pending" enums:"pending,redeeming,success,failed,expired,cancelled"`
	ExpiresAt      string  `json:"expires_at" example:"2024-01-08T00:00:00Z"`
	CreatedAt      string  `json:"created_at" example:"2024-01-01T00:00:00Z"`
	ResolvedAt     *string `json:"resolved_at,omitempty" example:"2024-01-02T00:00:00Z"`
}

// ListCodesResponse コード一覧取得レスポンス
// @Description コード一覧取得レスポンス
type ListCodesResponse struct {
	Codes  []CodeResponse `json:"codes"`
	Limit  int            `json:"limit" example:"20"`
	Offset int            `json:"offset" example:"0"`
}

// UpdateCodeRequest コード更新リクエスト（キャンセルのみ）
// @Description コード更新リクエスト。statusはcancelledのみ受け付けます
type UpdateCodeRequest struct {
	Status string `json:"status" example:"cancelled" enums:"cancelled"`
}

// UpdateCodeResponse コード更新レスポンス
// @Description コード更新レスポンス
type UpdateCodeResponse struct {
	ID          string `json:"id" example:"2f4a1c9e-0b7d-4f7a-9c3e-5d8b1a2f6e0c"`
	Status      string `json:"status" example:"cancelled"`
	CancelledAt string `json:"cancelled_at" example:"2024-01-02T00:00:00Z"`
}

// RedeemCodeRequest コード引き換えリクエスト
// @Description コード引き換えリクエスト
type RedeemCodeRequest struct {
	RedeemerID string `json:"redeemer_id" example:"user456"`
}

// RedeemCodeResponse コード引き換えレスポンス
// @Description コード引き換えレスポンス
type RedeemCodeResponse struct {
	CodeID    string `json:"code_id" example:"2f4a1c9e-0b7d-4f7a-9c3e-5d8b1a2f6e0c"`
	Amount    string `json:"amount" example:"2500"`
	Direction string `json:"direction" example:"get"`
	Outcome   string `json:"outcome" example:"success" enums:"success,failed"`
	Reason    string `json:"reason,omitempty" example:"insufficient balance"`
}

// SweepResponse スイープ実行レスポンス
// @Description スイープ実行レスポンス
type SweepResponse struct {
	Swept int `json:"swept" example:"3"`
}

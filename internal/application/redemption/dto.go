package redemption

// RedeemCodeRequest コード引き換えリクエスト
type RedeemCodeRequest struct {
	Code       string
	RedeemerID string
}

// RedeemCodeResponse コード引き換えレスポンス
type RedeemCodeResponse struct {
	CodeID    string
	Amount    int64
	Direction string
	Outcome   string // "success" | "failed"
	Reason    string // Outcome == "failed" の場合のみ
}

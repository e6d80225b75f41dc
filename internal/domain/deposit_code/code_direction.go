package deposit_code

import (
	"fmt"
)

// CodeDirection 資金移動の向きを表す値オブジェクト
// get  = 作成者が受け取る（引き換え者が支払う）
// send = 作成者が支払う（引き換え者が受け取る）
type CodeDirection string

const (
	CodeDirectionGet  CodeDirection = "get"
	CodeDirectionSend CodeDirection = "send"
)

// NewCodeDirection 新しいCodeDirectionを作成
func NewCodeDirection(s string) (CodeDirection, error) {
	switch s {
	case "get", "send":
		return CodeDirection(s), nil
	default:
		return "", fmt.Errorf("invalid code direction: %s", s)
	}
}

// String 文字列表現を返す
func (cd CodeDirection) String() string {
	return string(cd)
}

// Valid 有効なコード方向かどうかを返す
func (cd CodeDirection) Valid() bool {
	switch cd {
	case CodeDirectionGet, CodeDirectionSend:
		return true
	default:
		return false
	}
}

// Participants 方向から支払人・受取人を決定する
// 方向の解釈はここで一元管理する。呼び出し側で再解釈してはならない
func (cd CodeDirection) Participants(creatorID, redeemerID string) (payerID, payeeID string) {
	if cd == CodeDirectionSend {
		return creatorID, redeemerID
	}
	return redeemerID, creatorID
}

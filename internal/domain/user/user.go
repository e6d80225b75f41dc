// Package user 外部のユーザーディレクトリサービスへの抽象を提供する
package user

import (
	"context"
	"errors"
)

// ErrUserNotFound ユーザーが見つからないエラー
var ErrUserNotFound = errors.New("user not found")

// Directory ユーザーディレクトリインターフェース
type Directory interface {
	// Exists ユーザーIDが既知のユーザーに解決できるか
	Exists(ctx context.Context, userID string) (bool, error)

	// ResolveUsername ユーザーIDから表示用ユーザー名を解決する
	ResolveUsername(ctx context.Context, userID string) (string, error)
}

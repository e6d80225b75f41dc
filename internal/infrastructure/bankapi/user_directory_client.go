package bankapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deposit-code-server/internal/domain/user"
	"deposit-code-server/internal/infrastructure/config"
)

// UserDirectoryClient 銀行ユーザーディレクトリAPIのHTTPクライアント
type UserDirectoryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewUserDirectoryClient 新しいUserDirectoryClientを作成
func NewUserDirectoryClient(cfg *config.BankAPIConfig) *UserDirectoryClient {
	return &UserDirectoryClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tracer: otel.Tracer("user-directory-client"),
	}
}

// userResponseBody ユーザーディレクトリAPIのレスポンスボディ
type userResponseBody struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Exists ユーザーIDが既知のユーザーに解決できるか
func (c *UserDirectoryClient) Exists(ctx context.Context, userID string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "UserDirectoryClient.Exists")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	_, err := c.fetchUser(ctx, userID)
	if err == user.ErrUserNotFound {
		span.SetStatus(otelcodes.Ok, "user not found")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, err
	}

	span.SetStatus(otelcodes.Ok, "user exists")
	return true, nil
}

// ResolveUsername ユーザーIDから表示用ユーザー名を解決する
func (c *UserDirectoryClient) ResolveUsername(ctx context.Context, userID string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "UserDirectoryClient.ResolveUsername")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	u, err := c.fetchUser(ctx, userID)
	if err != nil {
		if err != user.ErrUserNotFound {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		} else {
			span.SetStatus(otelcodes.Ok, "user not found")
		}
		return "", err
	}

	span.SetStatus(otelcodes.Ok, "username resolved")
	return u.Username, nil
}

// fetchUser ユーザーディレクトリAPIからユーザーを取得する
func (c *UserDirectoryClient) fetchUser(ctx context.Context, userID string) (*userResponseBody, error) {
	endpoint := c.baseURL + "/users/" + url.PathEscape(userID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call user directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, user.ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user directory returned status %d", resp.StatusCode)
	}

	var body userResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &body, nil
}

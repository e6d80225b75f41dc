package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authapp "deposit-code-server/internal/application/auth"
	codeapp "deposit-code-server/internal/application/deposit_code"
	redemptionapp "deposit-code-server/internal/application/redemption"
	"deposit-code-server/internal/application/sweeper"
	domain "deposit-code-server/internal/domain/deposit_code"
	"deposit-code-server/internal/domain/ledger"
	"deposit-code-server/internal/infrastructure/config"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// MockDepositCodeRepository モックデポジットコードリポジトリ
type MockDepositCodeRepository struct {
	mock.Mock
}

func (m *MockDepositCodeRepository) Create(ctx context.Context, code *domain.DepositCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FindByID(ctx context.Context, id string) (*domain.DepositCode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindByCode(ctx context.Context, code string) (*domain.DepositCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindByCreatorID(ctx context.Context, creatorID string, limit, offset int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, creatorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) ExistsPendingCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockDepositCodeRepository) ClaimForRedemption(ctx context.Context, id, redeemerID, idempotencyKey string, now time.Time) error {
	args := m.Called(ctx, id, redeemerID, idempotencyKey, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FinalizeRedemption(ctx context.Context, id string, status domain.CodeStatus, now time.Time) error {
	args := m.Called(ctx, id, status, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) Cancel(ctx context.Context, id, creatorID string, now time.Time) error {
	args := m.Called(ctx, id, creatorID, now)
	return args.Error(0)
}

func (m *MockDepositCodeRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

func (m *MockDepositCodeRepository) FindStuckRedeeming(ctx context.Context, olderThan time.Time, limit int) ([]*domain.DepositCode, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DepositCode), args.Error(1)
}

// MockUserDirectory モックユーザーディレクトリ
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserDirectory) ResolveUsername(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// MockLedgerClient モック元帳クライアント
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) Transfer(ctx context.Context, req *ledger.TransferRequest) (*ledger.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransferResult), args.Error(1)
}

func (m *MockLedgerClient) QueryTransfer(ctx context.Context, idempotencyKey string) (*ledger.TransferResult, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransferResult), args.Error(1)
}

// setupTestRouter テスト用のルーターをセットアップ
func setupTestRouter(t *testing.T) (*Router, *MockDepositCodeRepository, *MockUserDirectory, *MockLedgerClient) {
	t.Helper()

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret-key-for-testing-purposes-only",
			Expiration: 24 * time.Hour,
			Issuer:     "test-issuer",
		},
		Sweeper: config.SweeperConfig{
			Enabled:          true,
			ExpiryInterval:   time.Minute,
			RecoveryInterval: 30 * time.Second,
			ClaimStuckAfter:  2 * time.Minute,
			BatchSize:        100,
		},
		AdminAPI: config.AdminAPIConfig{
			Enabled: true,
			APIKey:  "test-admin-key",
		},
	}

	tracer := noop.NewTracerProvider().Tracer("test")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("test")
	require.NoError(t, err)

	mockRepo := new(MockDepositCodeRepository)
	mockUserDir := new(MockUserDirectory)
	mockLedger := new(MockLedgerClient)

	authService := authapp.NewAuthApplicationService(&cfg.JWT, logger)
	codeService := codeapp.NewDepositCodeApplicationService(
		mockRepo,
		mockUserDir,
		authService,
		logger,
		metrics,
	)
	coordinator := redemptionapp.NewRedemptionCoordinator(mockRepo, mockLedger, logger, metrics)
	expirySweeper := sweeper.NewExpirySweeper(mockRepo, &cfg.Sweeper, logger, metrics)
	recoverySweeper := sweeper.NewRecoverySweeper(mockRepo, mockLedger, &cfg.Sweeper, logger, metrics)

	router, err := NewRouter(
		cfg,
		logger,
		metrics,
		nil,
		authService,
		codeService,
		coordinator,
		expirySweeper,
		recoverySweeper,
	)
	require.NoError(t, err)
	require.NotNil(t, router)

	return router, mockRepo, mockUserDir, mockLedger
}

// obtainToken 認証トークンを取得
func obtainToken(t *testing.T, router *Router, userID string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"user_id": userID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	router.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokenResp map[string]interface{}
	err := json.Unmarshal(rec.Body.Bytes(), &tokenResp)
	require.NoError(t, err)
	return tokenResp["token"].(string)
}

func TestNewRouter(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	assert.NotNil(t, router)
	assert.NotNil(t, router.echo)
	assert.NotNil(t, router.authHandler)
	assert.NotNil(t, router.depositHandler)
	assert.NotNil(t, router.redemptionHandler)
	assert.NotNil(t, router.adminHandler)
}

func TestRouter_HealthCheck(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestRouter_AuthTokenEndpoint(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
	}{
		{
			name: "正常系: トークン生成成功",
			requestBody: map[string]interface{}{
				"user_id": "user123",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "異常系: リクエストボディが空",
			requestBody:    nil,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.requestBody != nil {
				body, _ = json.Marshal(tt.requestBody)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()

			router.echo.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestRouter_AuthenticatedEndpoints(t *testing.T) {
	router, mockRepo, mockUserDir, _ := setupTestRouter(t)
	token := obtainToken(t, router, "user123")

	t.Run("正常系: 認証付きでコード発行", func(t *testing.T) {
		mockUserDir.On("Exists", mock.Anything, "user123").Return(true, nil)
		mockRepo.On("ExistsPendingCode", mock.Anything, mock.Anything).Return(false, nil)
		mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		body, _ := json.Marshal(map[string]string{
			"amount":    "2500",
			"direction": "get",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()

		router.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		mockRepo.AssertExpectations(t)
		mockUserDir.AssertExpectations(t)
	})

	t.Run("異常系: トークンなしは拒否される", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{
			"amount":    "2500",
			"direction": "get",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		router.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter_AdminEndpoints(t *testing.T) {
	router, mockRepo, _, _ := setupTestRouter(t)

	t.Run("正常系: APIキー付きでスイープ実行", func(t *testing.T) {
		mockRepo.On("FindExpiredPending", mock.Anything, mock.Anything, 100).Return([]*domain.DepositCode{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweeps/expiry", nil)
		req.Header.Set("X-API-Key", "test-admin-key")
		rec := httptest.NewRecorder()

		router.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("異常系: APIキーなしは拒否される", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweeps/expiry", nil)
		rec := httptest.NewRecorder()

		router.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter_SwaggerEndpoints(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		path   string
		method string
	}{
		{
			name:   "ReDocエンドポイント",
			path:   "/redoc",
			method: http.MethodGet,
		},
		{
			name:   "OpenAPI仕様エンドポイント",
			path:   "/openapi.yaml",
			method: http.MethodGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			router.echo.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code, "path: %s", tt.path)
		})
	}
}

func TestRouter_StartShutdown(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	go func() {
		err := router.Start(":0")
		// シャットダウン時のエラーは正常
		_ = err
	}()

	time.Sleep(100 * time.Millisecond)

	err := router.Shutdown()
	assert.NoError(t, err)
}

func TestRouter_RouteRegistration(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	routes := router.echo.Routes()
	registered := make(map[string]bool)
	for _, route := range routes {
		registered[route.Method+" "+route.Path] = true
	}

	endpoints := []string{
		"GET /health",
		"POST /api/v1/auth/token",
		"POST /api/v1/codes",
		"GET /api/v1/codes",
		"GET /api/v1/codes/:code",
		"PUT /api/v1/codes/:id",
		"POST /api/v1/codes/:code/redeem",
		"POST /api/v1/admin/sweeps/expiry",
		"POST /api/v1/admin/sweeps/recovery",
	}

	for _, endpoint := range endpoints {
		assert.True(t, registered[endpoint], "エンドポイント %s が登録されていることを確認", endpoint)
	}
}

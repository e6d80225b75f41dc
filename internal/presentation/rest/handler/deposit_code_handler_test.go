package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	codeapp "deposit-code-server/internal/application/deposit_code"
	domain "deposit-code-server/internal/domain/deposit_code"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
	restmiddleware "deposit-code-server/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupCodeHandlerTest テスト用のハンドラーと依存を作成
func setupCodeHandlerTest(t *testing.T) (*DepositCodeHandler, *MockDepositCodeRepository, *MockUserDirectory, *otelinfra.Logger) {
	t.Helper()

	mockRepo := new(MockDepositCodeRepository)
	mockUserDir := new(MockUserDirectory)
	mockAuthorizer := new(MockTransferAuthorizer)
	tracer := noop.NewTracerProvider().Tracer("test")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("test")
	require.NoError(t, err)

	appService := codeapp.NewDepositCodeApplicationService(
		mockRepo,
		mockUserDir,
		mockAuthorizer,
		logger,
		metrics,
	)

	return NewDepositCodeHandler(appService), mockRepo, mockUserDir, logger
}

// invokeHandler エラーハンドリングミドルウェア越しにハンドラーを実行
func invokeHandler(t *testing.T, logger *otelinfra.Logger, c echo.Context, h echo.HandlerFunc) {
	t.Helper()

	middlewareFunc := restmiddleware.ErrorHandlerMiddleware(logger)
	err := middlewareFunc(h)(c)
	assert.NoError(t, err)
}

func TestDepositCodeHandler_IssueCode(t *testing.T) {
	tests := []struct {
		name           string
		tokenUserID    string
		requestBody    map[string]interface{}
		setupMock      func(*MockDepositCodeRepository, *MockUserDirectory)
		expectedStatus int
	}{
		{
			name:        "正常系: getコード発行成功",
			tokenUserID: "user123",
			requestBody: map[string]interface{}{
				"amount":    "2500",
				"direction": "get",
			},
			setupMock: func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {
				userDir.On("Exists", mock.Anything, "user123").Return(true, nil)
				repo.On("ExistsPendingCode", mock.Anything, mock.Anything).Return(false, nil)
				repo.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "異常系: 金額が数値でない",
			tokenUserID: "user123",
			requestBody: map[string]interface{}{
				"amount":    "abc",
				"direction": "get",
			},
			setupMock:      func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "異常系: 金額が0以下",
			tokenUserID: "user123",
			requestBody: map[string]interface{}{
				"amount":    "0",
				"direction": "get",
			},
			setupMock:      func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "異常系: 認証ユーザーがいない",
			tokenUserID: "",
			requestBody: map[string]interface{}{
				"amount":    "2500",
				"direction": "get",
			},
			setupMock:      func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			handler, mockRepo, mockUserDir, logger := setupCodeHandlerTest(t)
			tt.setupMock(mockRepo, mockUserDir)

			body, _ := json.Marshal(tt.requestBody)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.tokenUserID != "" {
				c.Set("user_id", tt.tokenUserID)
			}

			invokeHandler(t, logger, c, handler.IssueCode)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusCreated {
				var response IssueCodeResponse
				err := json.Unmarshal(rec.Body.Bytes(), &response)
				require.NoError(t, err)
				assert.Len(t, response.Code, domain.CodeLength)
				assert.Equal(t, "2500", response.Amount)
				assert.Equal(t, "pending", response.Status)
			}

			mockRepo.AssertExpectations(t)
			mockUserDir.AssertExpectations(t)
		})
	}
}

func TestDepositCodeHandler_GetCode(t *testing.T) {
	tests := []struct {
		name           string
		code           string
		setupMock      func(*MockDepositCodeRepository, *MockUserDirectory)
		expectedStatus int
	}{
		{
			name: "正常系: コード取得成功",
			code: "483920",
			setupMock: func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {
				dc := pendingCode("code-1", "483920", "user123", domain.CodeDirectionGet)
				repo.On("FindByCode", mock.Anything, "483920").Return(dc, nil)
				userDir.On("ResolveUsername", mock.Anything, "user123").Return("alice", nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "異常系: コードが見つからない",
			code: "000000",
			setupMock: func(repo *MockDepositCodeRepository, userDir *MockUserDirectory) {
				repo.On("FindByCode", mock.Anything, "000000").Return(nil, domain.ErrCodeNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			handler, mockRepo, mockUserDir, logger := setupCodeHandlerTest(t)
			tt.setupMock(mockRepo, mockUserDir)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/"+tt.code, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath("/api/v1/codes/:code")
			c.SetParamNames("code")
			c.SetParamValues(tt.code)
			c.Set("user_id", "user456")

			invokeHandler(t, logger, c, handler.GetCode)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var response CodeResponse
				err := json.Unmarshal(rec.Body.Bytes(), &response)
				require.NoError(t, err)
				assert.Equal(t, "483920", response.Code)
				assert.Equal(t, "alice", response.CreatorName)
				assert.Equal(t, "pending", response.Status)
				assert.Nil(t, response.ResolvedAt)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestDepositCodeHandler_ListCodes(t *testing.T) {
	tests := []struct {
		name           string
		tokenUserID    string
		queryUserID    string
		setupMock      func(*MockDepositCodeRepository)
		expectedStatus int
		expectedCount  int
	}{
		{
			name:        "正常系: 自分のコード一覧取得",
			tokenUserID: "user123",
			queryUserID: "user123",
			setupMock: func(repo *MockDepositCodeRepository) {
				codes := []*domain.DepositCode{
					pendingCode("code-1", "483920", "user123", domain.CodeDirectionGet),
					pendingCode("code-2", "112233", "user123", domain.CodeDirectionGet),
				}
				repo.On("FindByCreatorID", mock.Anything, "user123", 20, 0).Return(codes, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "異常系: 他ユーザーのコードは一覧できない",
			tokenUserID:    "user123",
			queryUserID:    "user456",
			setupMock:      func(repo *MockDepositCodeRepository) {},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "異常系: user_idがない",
			tokenUserID:    "user123",
			queryUserID:    "",
			setupMock:      func(repo *MockDepositCodeRepository) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			handler, mockRepo, _, logger := setupCodeHandlerTest(t)
			tt.setupMock(mockRepo)

			target := "/api/v1/codes"
			if tt.queryUserID != "" {
				target = fmt.Sprintf("/api/v1/codes?user_id=%s", tt.queryUserID)
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set("user_id", tt.tokenUserID)

			invokeHandler(t, logger, c, handler.ListCodes)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var response ListCodesResponse
				err := json.Unmarshal(rec.Body.Bytes(), &response)
				require.NoError(t, err)
				assert.Len(t, response.Codes, tt.expectedCount)
				assert.Equal(t, 20, response.Limit)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestDepositCodeHandler_UpdateCode(t *testing.T) {
	tests := []struct {
		name           string
		tokenUserID    string
		status         string
		setupMock      func(*MockDepositCodeRepository)
		expectedStatus int
	}{
		{
			name:        "正常系: キャンセル成功",
			tokenUserID: "user123",
			status:      "cancelled",
			setupMock: func(repo *MockDepositCodeRepository) {
				repo.On("Cancel", mock.Anything, "code-1", "user123", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "異常系: cancelled以外のステータスは更新できない",
			tokenUserID:    "user123",
			status:         "success",
			setupMock:      func(repo *MockDepositCodeRepository) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "異常系: 作成者以外はキャンセルできない",
			tokenUserID: "user456",
			status:      "cancelled",
			setupMock: func(repo *MockDepositCodeRepository) {
				repo.On("Cancel", mock.Anything, "code-1", "user456", mock.Anything).Return(domain.ErrCodeNotPending)
				dc := pendingCode("code-1", "483920", "user123", domain.CodeDirectionGet)
				repo.On("FindByID", mock.Anything, "code-1").Return(dc, nil)
			},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			handler, mockRepo, _, logger := setupCodeHandlerTest(t)
			tt.setupMock(mockRepo)

			body, _ := json.Marshal(map[string]string{"status": tt.status})
			req := httptest.NewRequest(http.MethodPut, "/api/v1/codes/code-1", bytes.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath("/api/v1/codes/:id")
			c.SetParamNames("id")
			c.SetParamValues("code-1")
			c.Set("user_id", tt.tokenUserID)

			invokeHandler(t, logger, c, handler.UpdateCode)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var response UpdateCodeResponse
				err := json.Unmarshal(rec.Body.Bytes(), &response)
				require.NoError(t, err)
				assert.Equal(t, "cancelled", response.Status)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

package rest

import (
	authapp "deposit-code-server/internal/application/auth"
	codeapp "deposit-code-server/internal/application/deposit_code"
	redemptionapp "deposit-code-server/internal/application/redemption"
	"deposit-code-server/internal/application/sweeper"
	"deposit-code-server/internal/infrastructure/config"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
	"deposit-code-server/internal/infrastructure/persistence/mysql"
	"deposit-code-server/internal/presentation/rest/handler"
	restmiddleware "deposit-code-server/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Router REST APIルーター
type Router struct {
	echo              *echo.Echo
	authHandler       *handler.AuthHandler
	depositHandler    *handler.DepositCodeHandler
	redemptionHandler *handler.RedemptionHandler
	adminHandler      *handler.AdminHandler
}

// NewRouter 新しいRouterを作成
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	db *mysql.DB,
	authService *authapp.AuthApplicationService,
	codeService *codeapp.DepositCodeApplicationService,
	coordinator *redemptionapp.RedemptionCoordinator,
	expirySweeper *sweeper.ExpirySweeper,
	recoverySweeper *sweeper.RecoverySweeper,
) (*Router, error) {
	e := echo.New()

	// Echoのデフォルトエラーハンドラーを無効化（カスタムエラーハンドラーを使用）
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		// エラーハンドリングミドルウェアで処理される
	}

	// ミドルウェアの設定
	setupMiddleware(e, cfg, logger, metrics)

	// ハンドラーの作成
	authHandler := handler.NewAuthHandler(authService)
	depositHandler := handler.NewDepositCodeHandler(codeService)
	redemptionHandler := handler.NewRedemptionHandler(coordinator)
	adminHandler := handler.NewAdminHandler(expirySweeper, recoverySweeper)

	// ルーティングの設定
	setupRoutes(e, cfg, logger, db, authHandler, depositHandler, redemptionHandler, adminHandler)

	// Swagger UI / ReDoc統合
	SetupSwagger(e)

	return &Router{
		echo:              e,
		authHandler:       authHandler,
		depositHandler:    depositHandler,
		redemptionHandler: redemptionHandler,
		adminHandler:      adminHandler,
	}, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	// リカバリーミドルウェア
	e.Use(middleware.Recover())

	// CORS設定
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // 本番環境では適切に設定
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// リクエストIDの設定
	e.Use(middleware.RequestID())

	// セキュリティヘッダーミドルウェア
	e.Use(restmiddleware.SecurityHeadersMiddleware())

	// トレーシングミドルウェア
	e.Use(restmiddleware.TracingMiddleware())

	// ログミドルウェア
	e.Use(restmiddleware.LoggingMiddleware(logger))

	// メトリクスミドルウェア
	e.Use(restmiddleware.MetricsMiddleware(metrics))

	// エラーハンドリングミドルウェア
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	logger *otelinfra.Logger,
	db *mysql.DB,
	authHandler *handler.AuthHandler,
	depositHandler *handler.DepositCodeHandler,
	redemptionHandler *handler.RedemptionHandler,
	adminHandler *handler.AdminHandler,
) {
	// API v1グループ
	api := e.Group("/api/v1")

	// 認証エンドポイント（認証不要）
	api.POST("/auth/token", authHandler.GenerateToken)

	// 認証が必要なエンドポイント
	authGroup := api.Group("", restmiddleware.AuthMiddleware(&cfg.JWT, logger))

	// コード関連エンドポイント
	authGroup.POST("/codes", depositHandler.IssueCode)
	authGroup.GET("/codes", depositHandler.ListCodes)
	authGroup.GET("/codes/:code", depositHandler.GetCode)
	authGroup.PUT("/codes/:id", depositHandler.UpdateCode)
	authGroup.POST("/codes/:code/redeem", redemptionHandler.RedeemCode)

	// 運用系エンドポイント（APIキー認証）
	adminGroup := api.Group("/admin", restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger))
	adminGroup.POST("/sweeps/expiry", adminHandler.RunExpirySweep)
	adminGroup.POST("/sweeps/recovery", adminHandler.RunRecoverySweep)

	// ヘルスチェックエンドポイント（認証不要）
	e.GET("/health", func(c echo.Context) error {
		if db != nil {
			if err := db.HealthCheck(); err != nil {
				return c.JSON(503, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown サーバーをシャットダウン
func (r *Router) Shutdown() error {
	return r.echo.Close()
}

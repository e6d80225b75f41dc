package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	authapp "deposit-code-server/internal/application/auth"
	codeapp "deposit-code-server/internal/application/deposit_code"
	redemptionapp "deposit-code-server/internal/application/redemption"
	"deposit-code-server/internal/application/sweeper"
	"deposit-code-server/internal/infrastructure/bankapi"
	"deposit-code-server/internal/infrastructure/config"
	otelinfra "deposit-code-server/internal/infrastructure/observability/otel"
	"deposit-code-server/internal/infrastructure/persistence/mysql"
	"deposit-code-server/internal/presentation/rest"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer("deposit-code-server")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("deposit-code-server")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// リポジトリの初期化
	codeRepo := mysql.NewDepositCodeRepository(db)

	// 外部サービスクライアントの初期化
	ledgerClient := bankapi.NewLedgerClient(&cfg.BankAPI)
	userDirectory := bankapi.NewUserDirectoryClient(&cfg.BankAPI)

	// アプリケーションサービスの初期化
	authAppService := authapp.NewAuthApplicationService(&cfg.JWT, logger)

	codeAppService := codeapp.NewDepositCodeApplicationService(
		codeRepo,
		userDirectory,
		authAppService,
		logger,
		metrics,
	)

	coordinator := redemptionapp.NewRedemptionCoordinator(
		codeRepo,
		ledgerClient,
		logger,
		metrics,
	)

	// スイーパーの初期化
	expirySweeper := sweeper.NewExpirySweeper(codeRepo, &cfg.Sweeper, logger, metrics)
	recoverySweeper := sweeper.NewRecoverySweeper(codeRepo, ledgerClient, &cfg.Sweeper, logger, metrics)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(
		cfg,
		logger,
		metrics,
		db,
		authAppService,
		codeAppService,
		coordinator,
		expirySweeper,
		recoverySweeper,
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// スイーパーのバックグラウンド実行
	sweeperCtx, stopSweepers := context.WithCancel(context.Background())
	defer stopSweepers()
	if cfg.Sweeper.Enabled {
		go expirySweeper.Start(sweeperCtx)
		go recoverySweeper.Start(sweeperCtx)
	}

	// サーバーアドレスの設定
	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		log.Printf("REST API server starting on %s", address)
		if err := router.Start(address); err != nil {
			log.Printf("REST API server error: %v", err)
		}
	}()

	// シグナルを待機
	<-quit
	log.Println("Shutting down server...")

	// スイーパーを停止してからサーバーを落とす
	stopSweepers()

	if err := router.Shutdown(); err != nil {
		log.Printf("Error shutting down REST API server: %v", err)
	}

	log.Println("Server stopped")
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		cleanupEnv  func()
		wantError   bool
		checkConfig func(*testing.T, *Config)
	}{
		{
			name: "正常系: デフォルト値で設定を読み込む",
			setupEnv: func() {
				os.Setenv("DB_HOST", "localhost")
				os.Setenv("DB_NAME", "test_db")
				os.Setenv("JWT_SECRET", "test-secret")
			},
			cleanupEnv: func() {
				os.Unsetenv("DB_HOST")
				os.Unsetenv("DB_NAME")
				os.Unsetenv("JWT_SECRET")
			},
			wantError: false,
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "test_db", cfg.Database.Database)
				assert.Equal(t, "test-secret", cfg.JWT.Secret)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 3306, cfg.Database.Port)
				assert.Equal(t, time.Minute, cfg.Sweeper.ExpiryInterval)
				assert.Equal(t, 30*time.Second, cfg.Sweeper.RecoveryInterval)
				assert.Equal(t, 2*time.Minute, cfg.Sweeper.ClaimStuckAfter)
				assert.Equal(t, 100, cfg.Sweeper.BatchSize)
				assert.False(t, cfg.AdminAPI.Enabled)
			},
		},
		{
			name: "正常系: 環境変数から設定を読み込む",
			setupEnv: func() {
				os.Setenv("ENVIRONMENT", "production")
				os.Setenv("SERVER_PORT", "9000")
				os.Setenv("DB_HOST", "db.example.com")
				os.Setenv("DB_PORT", "3307")
				os.Setenv("DB_NAME", "prod_db")
				os.Setenv("JWT_SECRET", "prod-secret")
				os.Setenv("JWT_EXPIRATION", "12h")
				os.Setenv("BANK_API_BASE_URL", "https://bank.example.com/api")
				os.Setenv("BANK_API_TIMEOUT", "5s")
				os.Setenv("SWEEPER_EXPIRY_INTERVAL", "2m")
			},
			cleanupEnv: func() {
				os.Unsetenv("ENVIRONMENT")
				os.Unsetenv("SERVER_PORT")
				os.Unsetenv("DB_HOST")
				os.Unsetenv("DB_PORT")
				os.Unsetenv("DB_NAME")
				os.Unsetenv("JWT_SECRET")
				os.Unsetenv("JWT_EXPIRATION")
				os.Unsetenv("BANK_API_BASE_URL")
				os.Unsetenv("BANK_API_TIMEOUT")
				os.Unsetenv("SWEEPER_EXPIRY_INTERVAL")
			},
			wantError: false,
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "production", cfg.Environment)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 3307, cfg.Database.Port)
				assert.Equal(t, "prod_db", cfg.Database.Database)
				assert.Equal(t, "prod-secret", cfg.JWT.Secret)
				assert.Equal(t, 12*time.Hour, cfg.JWT.Expiration)
				assert.Equal(t, "https://bank.example.com/api", cfg.BankAPI.BaseURL)
				assert.Equal(t, 5*time.Second, cfg.BankAPI.Timeout)
				assert.Equal(t, 2*time.Minute, cfg.Sweeper.ExpiryInterval)
			},
		},
		{
			name: "異常系: JWT_SECRETが未設定",
			setupEnv: func() {
				os.Setenv("DB_HOST", "localhost")
				os.Setenv("DB_NAME", "test_db")
				os.Unsetenv("JWT_SECRET")
			},
			cleanupEnv: func() {
				os.Unsetenv("DB_HOST")
				os.Unsetenv("DB_NAME")
			},
			wantError: true,
		},
		{
			name: "異常系: 管理APIが有効なのにAPIキーが未設定",
			setupEnv: func() {
				os.Setenv("DB_HOST", "localhost")
				os.Setenv("DB_NAME", "test_db")
				os.Setenv("JWT_SECRET", "test-secret")
				os.Setenv("ADMIN_API_ENABLED", "true")
				os.Unsetenv("ADMIN_API_KEY")
			},
			cleanupEnv: func() {
				os.Unsetenv("DB_HOST")
				os.Unsetenv("DB_NAME")
				os.Unsetenv("JWT_SECRET")
				os.Unsetenv("ADMIN_API_ENABLED")
			},
			wantError: true,
		},
		{
			name: "異常系: スイーパーのバッチサイズが不正",
			setupEnv: func() {
				os.Setenv("DB_HOST", "localhost")
				os.Setenv("DB_NAME", "test_db")
				os.Setenv("JWT_SECRET", "test-secret")
				os.Setenv("SWEEPER_BATCH_SIZE", "-1")
			},
			cleanupEnv: func() {
				os.Unsetenv("DB_HOST")
				os.Unsetenv("DB_NAME")
				os.Unsetenv("JWT_SECRET")
				os.Unsetenv("SWEEPER_BATCH_SIZE")
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()
			defer tt.cleanupEnv()

			cfg, err := Load()
			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.checkConfig != nil {
					tt.checkConfig(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "root",
		Password: "secret",
		Database: "deposit_codes_db",
	}

	dsn := cfg.DSN()
	assert.Equal(t, "root:secret@tcp(localhost:3306)/deposit_codes_db?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

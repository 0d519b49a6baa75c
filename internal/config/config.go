// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxUploadSize int64 // アップロードZIPの最大サイズ（バイト）
	MaxFiles      int   // 1ジョブあたりの最大画像枚数

	// ワークスペース/成果物設定
	WorkspaceDir           string // ジョブ作業ディレクトリのベース
	ArtifactDir            string // 成果物ZIPの保存先
	ArtifactRetentionHours int    // 未取得成果物の保持時間（時間）

	// ジョブ/キュー設定
	QueueRedisURL   string // Asynq用Redis接続URL
	DistributedMode bool   // ジョブを別プロセスのワーカーへ委譲するか

	// 画像処理設定
	DefaultJPEGQuality int // jpeg_quality 未指定時のデフォルト値
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_SIZE", 209715200), // 200MB
		MaxFiles:      getEnvAsInt("MAX_FILES", 2000),

		WorkspaceDir:           getEnv("WORKSPACE_DIR", filepath.Join(os.TempDir(), "pixel-press", "jobs")),
		ArtifactDir:            getEnv("ARTIFACT_DIR", filepath.Join(os.TempDir(), "pixel-press", "downloads")),
		ArtifactRetentionHours: getEnvAsInt("ARTIFACT_RETENTION_HOURS", 24),

		QueueRedisURL:   getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		DistributedMode: getEnvAsBool("DISTRIBUTED_MODE", false),

		DefaultJPEGQuality: getEnvAsInt("DEFAULT_JPEG_QUALITY", 85),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}
	if c.DistributedMode && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required when DISTRIBUTED_MODE is enabled")
	}
	if c.DefaultJPEGQuality < 1 || c.DefaultJPEGQuality > 100 {
		return fmt.Errorf("DEFAULT_JPEG_QUALITY must be between 1 and 100")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/pixel-press/internal/auth"
	"github.com/yourusername/pixel-press/internal/config"
	"github.com/yourusername/pixel-press/internal/jobs"
	"github.com/yourusername/pixel-press/internal/optimize"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// 成果物ストアとリーパーの起動
	artifacts, err := optimize.NewArtifactStore(cfg.ArtifactDir, artifactRetention(cfg))
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}
	stopReaper := artifacts.StartReaper(time.Hour)
	defer stopReaper()

	// ルーティングの設定
	if err := setupRoutes(router, cfg, artifacts); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s, distributed: %t)", addr, cfg.GinMode, cfg.DistributedMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pixel-press-api",
		"version": "0.1.0",
	})
}

// artifactRetention は未取得成果物の保持期間を返します。
func artifactRetention(cfg *config.Config) time.Duration {
	hours := cfg.ArtifactRetentionHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// setupRoutes は API グループと認証周りの配線を行います。実行モードに
// 応じてジョブの投入先と進捗イベントの供給元を切り替えます。
func setupRoutes(router *gin.Engine, cfg *config.Config, artifacts *optimize.ArtifactStore) error {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)

	// 分散モードではカウンターとジョブレコードをRedisで共有する
	if cfg.DistributedMode {
		rdb, err := newQueueRedisClient(cfg)
		if err != nil {
			return err
		}
		counter := jobs.NewRedisCounter(rdb)

		svc := optimize.NewService(cfg, artifacts, counter, log.Default())
		manager, poller, err := setupJobs(cfg, svc, rdb)
		if err != nil {
			return err
		}

		registerAPIRoutes(router, cfg, authManager, apiDeps{
			service:       svc,
			artifacts:     artifacts,
			counter:       counter,
			scheduler:     manager,
			finder:        manager,
			source:        poller,
			statusHandler: jobStatusHandler(manager),
		})
		return nil
	}

	counter := optimize.NewMemoryCounter()
	svc := optimize.NewService(cfg, artifacts, counter, log.Default())
	registerAPIRoutes(router, cfg, authManager, apiDeps{
		service:       svc,
		artifacts:     artifacts,
		counter:       counter,
		scheduler:     nil,
		finder:        svc,
		source:        svc.Hub(),
		statusHandler: optimize.JobStatusHandler(svc),
	})
	return nil
}

// apiDeps は実行モードごとに組み立てたAPIの依存をまとめます。
type apiDeps struct {
	service       *optimize.Service
	artifacts     *optimize.ArtifactStore
	counter       optimize.Counter
	scheduler     optimize.JobScheduler
	finder        optimize.JobFinder
	source        optimize.Source
	statusHandler gin.HandlerFunc
}

func registerAPIRoutes(router *gin.Engine, cfg *config.Config, authManager *auth.Manager, deps apiDeps) {
	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		if cfg.AppUsername != "" && cfg.AppPasswordHash != "" {
			protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		} else {
			// ローカル開発向け。本番は Validate が資格情報を要求する
			log.Println("auth credentials are not configured; API routes are unprotected")
		}
		{
			protected.POST("/images/optimize",
				optimize.OptimizeHandler(deps.service, optimize.HandlerOptions{Scheduler: deps.scheduler}))
			protected.GET("/jobs/:id/events", optimize.StreamHandler(deps.finder, deps.source))
			protected.GET("/jobs/:id", deps.statusHandler)
			protected.GET("/artifacts/:name", optimize.DownloadHandler(deps.artifacts))
			protected.GET("/stats", optimize.StatsHandler(deps.counter))
		}
	}
}

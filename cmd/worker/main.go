// Package main は分散モードのワーカープロセスのエントリーポイントです。
// Asynqのキューから最適化ジョブを取り出して実行し、進捗をRedis上の
// ジョブレコードへ書き戻します。
package main

import (
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/pixel-press/internal/config"
	"github.com/yourusername/pixel-press/internal/jobs"
	"github.com/yourusername/pixel-press/internal/optimize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.QueueRedisURL == "" {
		log.Fatal("QUEUE_REDIS_URL is required for the worker")
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse QUEUE_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)

	retention := artifactRetention(cfg)

	// APIプロセスとワークスペース・成果物ディレクトリを共有する
	artifacts, err := optimize.NewArtifactStore(cfg.ArtifactDir, retention)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}

	counter := jobs.NewRedisCounter(rdb)
	svc := optimize.NewService(cfg, artifacts, counter, log.Default())

	store := jobs.NewStore(rdb, retention)
	manager, err := jobs.NewManager(cfg, svc, store, log.Default())
	if err != nil {
		log.Fatalf("Failed to initialize job manager: %v", err)
	}

	log.Printf("Starting worker (queue redis: %s)", opt.Addr)
	if err := manager.Run(); err != nil {
		log.Fatalf("Worker stopped with error: %v", err)
	}
}

func artifactRetention(cfg *config.Config) time.Duration {
	hours := cfg.ArtifactRetentionHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

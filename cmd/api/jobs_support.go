package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/pixel-press/internal/config"
	"github.com/yourusername/pixel-press/internal/jobs"
	"github.com/yourusername/pixel-press/internal/optimize"
)

// newQueueRedisClient はキュー用Redisへの接続を作成します。
func newQueueRedisClient(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

// setupJobs は分散モードのジョブマネージャーとポーラーを組み立てます。
// APIプロセスは投入と照会のみを行い、Asynqサーバーは起動しません。
func setupJobs(cfg *config.Config, svc *optimize.Service, rdb *redis.Client) (*jobs.Manager, *jobs.Poller, error) {
	// ジョブレコードは成果物と同じ期間だけ保持する
	store := jobs.NewStore(rdb, artifactRetention(cfg))
	manager, err := jobs.NewManager(cfg, svc, store, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return manager, jobs.NewPoller(store), nil
}

// jobStatusHandler は分散モードの GET /api/jobs/:id ハンドラーです。
// Redis上のジョブレコードをそのまま返します。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":  record.JobID,
			"status": record.Status,
			"progress": gin.H{
				"percent": record.Snapshot.Percent,
				"current": record.Snapshot.Current,
				"total":   record.Snapshot.Total,
			},
			"updatedAt": record.UpdatedAt.Format(time.RFC3339),
		}
		if record.ArtifactName != "" {
			payload["zipFile"] = record.ArtifactName
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pixel-press/internal/imaging"
)

// streamPollWait はイベント待機の上限です。超過時はキープアライブを流します。
const streamPollWait = 10 * time.Second

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// JobFinder はジョブIDの存在確認を提供します。
type JobFinder interface {
	Exists(ctx context.Context, jobID string) (bool, error)
}

// HandlerOptions は実行モードの切り替えのための設定です。Scheduler が
// nil の場合は同一プロセスの監視付きゴルーチンで実行します。
type HandlerOptions struct {
	Scheduler JobScheduler
}

// OptimizeHandler は POST /api/images/optimize のハンドラーを返します。
// アーカイブの検証はジョブ作成前に行われ、受理後は処理を待たずに
// jobId を返します。
func OptimizeHandler(svc *Service, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("zip_file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "zip_file フィールドでZIPファイルを送信してください。",
			})
			return
		}

		jobOpts := imaging.Options{
			JPEGQuality: parseQuality(c.PostForm("jpeg_quality")),
			ConvertPNG:  parseBoolField(c.PostForm("convert_png")),
		}

		job, err := svc.CreateJob(c.Request.Context(), file, jobOpts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if opts.Scheduler != nil {
			if err := opts.Scheduler.Schedule(c.Request.Context(), job.ID); err != nil {
				svc.registry.Remove(job.ID)
				if cleanupErr := removeDir(job.Dir); cleanupErr != nil {
					err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
				}
				respondWithError(c, err)
				return
			}
		} else {
			svc.RunSupervised(job.ID)
		}

		c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID})
	}
}

// StreamHandler は GET /api/jobs/:id/events のハンドラーを返します。
// ProgressEventを1行1レコードのJSONとして発生順に送り、アイドル中は
// キープアライブを流し、終端イベントの直後に接続を閉じます。
func StreamHandler(finder JobFinder, src Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "jobId を指定してください。",
			})
			return
		}

		ok, err := finder.Exists(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		enc := json.NewEncoder(c.Writer)
		var cursor Cursor
		for {
			events, next, err := src.Poll(c.Request.Context(), jobID, cursor, streamPollWait)
			if err != nil {
				// 消費者の切断はワーカーを止めない
				return
			}
			cursor = next

			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return
				}
				c.Writer.Flush()
				if ev.Terminal() {
					if f, ok := src.(interface{ Forget(string) }); ok {
						f.Forget(jobID)
					}
					return
				}
			}
		}
	}
}

// DownloadHandler は GET /api/artifacts/:name のハンドラーを返します。
// 成果物はちょうど1回だけ返され、レスポンスの送出が完了した後に削除
// されます。転送が途中で失敗した場合は削除されず、保持期限まで再取得
// できます。
func DownloadHandler(store *ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		file, size, release, err := store.TakeOnce(name)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer file.Close()

		encodedName := url.PathEscape(name)
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", name, encodedName))
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Header("Cache-Control", "no-store")
		c.Status(http.StatusOK)

		written, copyErr := io.Copy(c.Writer, file)
		release(copyErr == nil && written == size)
	}
}

// JobStatusHandler は GET /api/jobs/:id のハンドラーを返します（同一
// プロセス実行モード用）。
func JobStatusHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "jobId を指定してください。",
			})
			return
		}

		status := svc.JobStatus(jobID)
		if status == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// StatsHandler は GET /api/stats のハンドラーを返します。
func StatsHandler(counter Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := counter.Value(c.Request.Context())
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lifetimeOptimizations": value})
	}
}

// parseQuality は jpeg_quality を解釈します。未指定・非数値・範囲外は
// デフォルト値へフォールバックします。
func parseQuality(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return imaging.DefaultJPEGQuality
	}
	quality, err := strconv.Atoi(raw)
	if err != nil {
		return imaging.DefaultJPEGQuality
	}
	return imaging.NormalizeQuality(quality)
}

func parseBoolField(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "on", "true", "yes":
		return true
	default:
		return false
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case CodeInvalidInput, CodeInvalidArchive:
			status = http.StatusBadRequest
		case CodeLimitExceeded:
			status = http.StatusRequestEntityTooLarge
		case CodeArtifactNotFound, CodeJobNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternal,
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

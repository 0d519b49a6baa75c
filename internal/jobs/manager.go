package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/pixel-press/internal/config"
	"github.com/yourusername/pixel-press/internal/optimize"
)

const (
	taskTypeOptimize = "images:optimize"
	queueName        = "images"
)

// TaskPayload は最適化ジョブのペイロードです。ジョブの詳細は共有
// ワークスペース上のマニフェストが持つため、IDのみを運びます。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// Manager はジョブの投入と分散ワーカーの実行を担います。
type Manager struct {
	cfg     *config.Config
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	store   *Store
	service *optimize.Service
	logger  *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, service *optimize.Service, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if service == nil {
		return nil, errors.New("service is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:     cfg,
		client:  client,
		server:  server,
		mux:     mux,
		store:   store,
		service: service,
		logger:  logger,
	}
	mux.HandleFunc(taskTypeOptimize, manager.handleOptimizeTask)
	return manager, nil
}

// Run は Asynq サーバーを起動し、停止するまでブロックします。
// ワーカープロセスのエントリーポイントから呼ばれます。
func (m *Manager) Run() error {
	return m.server.Run(m.mux)
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Enqueue はジョブをキューに投入し、queued 状態のレコードを登録します。
func (m *Manager) Enqueue(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("jobID is required")
	}

	record := &Record{
		JobID:  jobID,
		Status: StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeOptimize, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Schedule は optimize.JobScheduler を実装します。
func (m *Manager) Schedule(ctx context.Context, jobID string) error {
	_, err := m.Enqueue(ctx, jobID)
	return err
}

// Exists は optimize.JobFinder を実装します。
func (m *Manager) Exists(ctx context.Context, jobID string) (bool, error) {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleOptimizeTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:  payload.JobID,
		Status: StatusRunning,
	}); err != nil {
		return err
	}

	// ドメイン上の失敗は RunJob が終端イベントとして記録済みのため、
	// Asynq に再試行させない
	if err := m.service.RunJob(ctx, payload.JobID, NewPublisher(m.store)); err != nil {
		m.logger.Printf("job %s finished with error: %v", payload.JobID, err)
	}
	return nil
}

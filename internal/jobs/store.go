package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/pixel-press/internal/optimize"
)

const (
	jobKeyPrefix     = "job:"
	resultsKeyPrefix = "job:results:"
)

// Store はジョブ状態と結果リストを Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。存在しない場合は (nil, nil) を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// UpdateSnapshot は累積進捗スナップショットを更新します。後退する更新
// （Current が既存値より小さいもの）は捨てられます。
func (s *Store) UpdateSnapshot(ctx context.Context, jobID string, snapshot Snapshot) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		if record.Status == StatusQueued {
			record.Status = StatusRunning
		}
		if snapshot.Current >= record.Snapshot.Current {
			record.Snapshot = snapshot
		}
	})
}

// AppendResult はファイル処理結果を結果リストの末尾へ追加します。
func (s *Store) AppendResult(ctx context.Context, jobID string, result optimize.FileResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := resultsKey(jobID)
	if err := s.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.rdb.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

// Results はこれまでの全ファイル処理結果を発生順で返します。
func (s *Store) Results(ctx context.Context, jobID string) ([]optimize.FileResult, error) {
	items, err := s.rdb.LRange(ctx, resultsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	results := make([]optimize.FileResult, 0, len(items))
	for _, item := range items {
		var result optimize.FileResult
		if err := json.Unmarshal([]byte(item), &result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// MarkDone はジョブ完了と成果物名を保存します。
func (s *Store) MarkDone(ctx context.Context, jobID, artifactName string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusDone
		record.Snapshot.Percent = 100
		record.ArtifactName = artifactName
		record.Error = nil
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	for {
		tx := s.rdb.TxPipeline()
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("job not found: %s", jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		tx.Set(ctx, key, payload, s.ttl)
		_, err = tx.Exec(ctx)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func resultsKey(id string) string {
	return resultsKeyPrefix + id
}

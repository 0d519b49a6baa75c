// Package jobs は分散実行モードのジョブ管理を提供します。ワーカーは
// Asynq キュー経由で別プロセスに委譲され、進捗は Redis 上の累積
// スナップショットとして共有されます。
package jobs

import "time"

// Status はジョブの外部観測用ステータスを表します。
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "error"
)

// Snapshot は最新の累積進捗です。イベントログ全体ではなく最新値のみを
// 保持するため、再接続した消費者は中間の進捗履歴を失いますが、
// Current が単調増加するため進捗率が後退して見えることはありません。
type Snapshot struct {
	Percent float64 `json:"percent"`
	Current int     `json:"current"`
	Total   int     `json:"total"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID        string     `json:"jobId"`
	Status       Status     `json:"status"`
	Snapshot     Snapshot   `json:"snapshot"`
	ArtifactName string     `json:"artifactName,omitempty"`
	Error        *ErrorInfo `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Finished は終端ステータスかどうかを返します。
func (r *Record) Finished() bool {
	return r.Status == StatusDone || r.Status == StatusFailed
}

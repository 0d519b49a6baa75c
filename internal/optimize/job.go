package optimize

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/pixel-press/internal/imaging"
)

// State はジョブの実行状態を表します。
type State string

const (
	StatePending     State = "pending"
	StateExtracting  State = "extracting"
	StateDiscovering State = "discovering"
	StateProcessing  State = "processing"
	StateAssembling  State = "assembling"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// 許可される状態遷移。Complete / Failed は終端で、以降の遷移はありません。
// Discovering → Assembling は対象ファイル0件のジョブ用のショートカットです。
var transitions = map[State][]State{
	StatePending:     {StateExtracting, StateFailed},
	StateExtracting:  {StateDiscovering, StateFailed},
	StateDiscovering: {StateProcessing, StateAssembling, StateFailed},
	StateProcessing:  {StateAssembling, StateFailed},
	StateAssembling:  {StateComplete, StateFailed},
}

// Terminal は状態が終端かどうかを返します。
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Job は1件の最適化ジョブの状態を保持します。入出力ディレクトリは
// ジョブの生存期間中このジョブが排他的に所有します。
type Job struct {
	ID          string
	Options     imaging.Options
	Dir         string // ワークスペースのルート
	ArchivePath string // アップロードされたZIPの保存先
	InputRoot   string
	OutputRoot  string
	CreatedAt   time.Time

	mu             sync.Mutex
	state          State
	totalFiles     int
	processedFiles int
}

// NewJob はワークスペースディレクトリのレイアウト規約
// (<dir>/upload.zip, <dir>/in, <dir>/out) に従ってジョブを作成します。
func NewJob(id string, opts imaging.Options, dir string, createdAt time.Time) *Job {
	return &Job{
		ID:          id,
		Options:     opts,
		Dir:         dir,
		ArchivePath: filepath.Join(dir, uploadFilename),
		InputRoot:   filepath.Join(dir, "in"),
		OutputRoot:  filepath.Join(dir, "out"),
		CreatedAt:   createdAt,
		state:       StatePending,
	}
}

// State は現在の状態を返します。
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Transition は状態遷移を行います。許可されない遷移はエラーになります。
func (j *Job) Transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, allowed := range transitions[j.state] {
		if allowed == to {
			j.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal job transition: %s -> %s", j.state, to)
}

// SetTotalFiles はファイル探索完了時に総数を確定します。以降変更されません。
func (j *Job) SetTotalFiles(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.totalFiles = n
}

// IncrementProcessed は処理済み件数を1増やします。総数を超えることはありません。
func (j *Job) IncrementProcessed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.processedFiles < j.totalFiles {
		j.processedFiles++
	}
}

// Counts は (processedFiles, totalFiles) を返します。
func (j *Job) Counts() (int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.processedFiles, j.totalFiles
}

// JobStatus は状態照会エンドポイント用のスナップショットです。
type JobStatus struct {
	JobID          string    `json:"jobId"`
	State          State     `json:"state"`
	TotalFiles     int       `json:"totalFiles"`
	ProcessedFiles int       `json:"processedFiles"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Status は現在状態のスナップショットを返します。
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		JobID:          j.ID,
		State:          j.state,
		TotalFiles:     j.totalFiles,
		ProcessedFiles: j.processedFiles,
		CreatedAt:      j.CreatedAt,
	}
}

// Registry はジョブIDをキーとするジョブ表です。進捗キューや出力先を
// プロセス全域の変数で持つ代わりに、全操作がここから自ジョブの状態を
// 引きます（複数ジョブの同時実行で状態が混線しないための前提）。
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry は空のレジストリを作成します。
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Add はジョブを登録します。
func (r *Registry) Add(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get はジョブを取得します。存在しない場合はnilを返します。
func (r *Registry) Get(jobID string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[jobID]
}

// Remove はジョブを削除します。
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

package optimize

// FileStatus は1ファイルの処理結果種別を表します。
type FileStatus string

const (
	StatusOptimized FileStatus = "optimized"
	StatusConverted FileStatus = "converted"
	StatusSkipped   FileStatus = "skipped"
	StatusError     FileStatus = "error"
)

// FileResult は処理済みファイル1件の結果です。生成後は変更されません。
type FileResult struct {
	FileName         string     `json:"file_name"`
	OriginalSize     int64      `json:"original_size"`
	OptimizedSize    int64      `json:"optimized_size"`
	SavingPercentage float64    `json:"saving_percentage"`
	Status           FileStatus `json:"status"`
}

// Event は進捗ストリームへ流れるイベントです。Terminal がtrueのイベントは
// ジョブの最終イベントであり、以降のイベントは発生しません。
type Event interface {
	Terminal() bool
}

// ProgressEvent は処理中の進捗率を通知します。
type ProgressEvent struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
}

func (ProgressEvent) Terminal() bool { return false }

// NewProgressEvent は current/total から進捗イベントを作成します。
func NewProgressEvent(current, total int) ProgressEvent {
	percent := 0.0
	if total > 0 {
		percent = float64(current) / float64(total) * 100
	}
	return ProgressEvent{Type: "progress", Progress: percent, Current: current, Total: total}
}

// FileCompleteEvent は1ファイルの処理完了（成功・失敗とも）を通知します。
type FileCompleteEvent struct {
	Type string `json:"type"`
	FileResult
}

func (FileCompleteEvent) Terminal() bool { return false }

// NewFileCompleteEvent は結果レコードからイベントを作成します。
func NewFileCompleteEvent(result FileResult) FileCompleteEvent {
	return FileCompleteEvent{Type: "file_complete", FileResult: result}
}

// CompleteEvent はジョブ完了と成果物名を通知する最終イベントです。
type CompleteEvent struct {
	Type         string  `json:"type"`
	ArtifactName string  `json:"zip_file"`
	Progress     float64 `json:"progress"`
}

func (CompleteEvent) Terminal() bool { return true }

// NewCompleteEvent は成果物名から完了イベントを作成します。
func NewCompleteEvent(artifactName string) CompleteEvent {
	return CompleteEvent{Type: "complete", ArtifactName: artifactName, Progress: 100}
}

// ErrorEvent はジョブ失敗を通知する最終イベントです。
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) Terminal() bool { return true }

// NewErrorEvent はドメインエラーから失敗イベントを作成します。
func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: "error", Code: code, Message: message}
}

// KeepaliveEvent はアイドル中の接続維持シグナルです。
type KeepaliveEvent struct {
	Type string `json:"type"`
}

func (KeepaliveEvent) Terminal() bool { return false }

// NewKeepaliveEvent はキープアライブイベントを作成します。
func NewKeepaliveEvent() KeepaliveEvent {
	return KeepaliveEvent{Type: "keepalive"}
}

// ComputeSavingPercent は削減率を計算します。original が0の場合は0を返します。
func ComputeSavingPercent(original, optimized int64) float64 {
	if original == 0 {
		return 0
	}
	return float64(original-optimized) / float64(original) * 100
}

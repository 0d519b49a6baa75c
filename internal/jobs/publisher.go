package jobs

import (
	"context"

	"github.com/yourusername/pixel-press/internal/optimize"
)

// Publisher はワーカープロセス側のProgressChannel実装です。イベント列を
// そのまま保持する代わりに、Progress は最新スナップショットへ畳み込み、
// FileComplete は結果リストへ追記し、終端イベントはステータスとして
// 記録します。
type Publisher struct {
	store *Store
}

// NewPublisher は Store を使う Publisher を作成します。
func NewPublisher(store *Store) *Publisher {
	return &Publisher{store: store}
}

// Publish はイベントを Redis 上のジョブレコードへ反映します。
func (p *Publisher) Publish(ctx context.Context, jobID string, ev optimize.Event) error {
	switch e := ev.(type) {
	case optimize.ProgressEvent:
		return p.store.UpdateSnapshot(ctx, jobID, Snapshot{
			Percent: e.Progress,
			Current: e.Current,
			Total:   e.Total,
		})
	case optimize.FileCompleteEvent:
		return p.store.AppendResult(ctx, jobID, e.FileResult)
	case optimize.CompleteEvent:
		return p.store.MarkDone(ctx, jobID, e.ArtifactName)
	case optimize.ErrorEvent:
		return p.store.MarkFailed(ctx, jobID, &ErrorInfo{Code: e.Code, Message: e.Message})
	default:
		// Keepalive は消費者側で合成されるため保存しない
		return nil
	}
}

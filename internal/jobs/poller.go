package jobs

import (
	"context"
	"time"

	"github.com/yourusername/pixel-press/internal/optimize"
)

const defaultPollInterval = 500 * time.Millisecond

// Poller は消費者側のProgressChannel実装です。Redis のスナップショットを
// 監視して差分から Progress イベントを合成し、ジョブの終端を観測した
// 時点で FileComplete の全リストと終端イベントを一度だけ再生します。
// カーソルは最後に配信した Current 値に基づくため、途中で再接続した
// 消費者が進捗率の後退を観測することはありません。
type Poller struct {
	store    *Store
	interval time.Duration
}

// NewPoller は Store を監視する Poller を作成します。
func NewPoller(store *Store) *Poller {
	return &Poller{store: store, interval: defaultPollInterval}
}

// Poll は cursor 以降に合成できるイベントを返します。新しい進捗がない
// まま wait が経過した場合は KeepaliveEvent を返します。
func (p *Poller) Poll(ctx context.Context, jobID string, cursor optimize.Cursor, wait time.Duration) ([]optimize.Event, optimize.Cursor, error) {
	deadline := time.Now().Add(wait)

	for {
		record, err := p.store.Get(ctx, jobID)
		if err != nil {
			return nil, cursor, err
		}
		if record == nil {
			return nil, cursor, &optimize.Error{
				Code:    optimize.CodeJobNotFound,
				Message: "指定されたジョブは存在しません。",
			}
		}

		if record.Finished() {
			events, err := p.replayFinished(ctx, jobID, record)
			if err != nil {
				return nil, cursor, err
			}
			return events, cursor, nil
		}

		// スナップショットの Current は単調増加。前回配信位置より
		// 進んでいる場合のみ差分をProgressとして合成する。
		if record.Snapshot.Total > 0 && optimize.Cursor(record.Snapshot.Current)+1 > cursor {
			ev := optimize.NewProgressEvent(record.Snapshot.Current, record.Snapshot.Total)
			return []optimize.Event{ev}, optimize.Cursor(record.Snapshot.Current) + 1, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []optimize.Event{optimize.NewKeepaliveEvent()}, cursor, nil
		}
		sleep := p.interval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		}
	}
}

func (p *Poller) replayFinished(ctx context.Context, jobID string, record *Record) ([]optimize.Event, error) {
	results, err := p.store.Results(ctx, jobID)
	if err != nil {
		return nil, err
	}

	events := make([]optimize.Event, 0, len(results)+1)
	for _, result := range results {
		events = append(events, optimize.NewFileCompleteEvent(result))
	}
	if record.Status == StatusDone {
		events = append(events, optimize.NewCompleteEvent(record.ArtifactName))
	} else {
		code := optimize.CodeInternal
		message := "ジョブの実行中にエラーが発生しました。"
		if record.Error != nil {
			code = record.Error.Code
			message = record.Error.Message
		}
		events = append(events, optimize.NewErrorEvent(code, message))
	}
	return events, nil
}

package optimize

import (
	"context"
	"sync"
	"time"
)

// Cursor は消費者が最後に受信したイベント位置を表す不透明なカーソルです。
type Cursor int64

// Publisher はワーカーがジョブのイベントを発行する側の契約です。
type Publisher interface {
	Publish(ctx context.Context, jobID string, ev Event) error
}

// Source は消費者がジョブのイベントを順序通りに取得する側の契約です。
// Poll は cursor 以降のイベントを最大 wait までブロックして待ち、
// 期限切れの場合は合成された KeepaliveEvent を返します。
type Source interface {
	Poll(ctx context.Context, jobID string, cursor Cursor, wait time.Duration) ([]Event, Cursor, error)
}

// Hub は同一プロセス実行用のインメモリProgressChannelです。
// ジョブごとに順序付きの無制限イベント列を保持し、カーソルによる
// 再開可能なポーリングを提供します。
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	mu     sync.Mutex
	events []Event
	wake   chan struct{} // publishごとにcloseして待機者を起こす
}

// NewHub は空のハブを作成します。
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*stream)}
}

func (h *Hub) stream(jobID string) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[jobID]
	if !ok {
		s = &stream{wake: make(chan struct{})}
		h.streams[jobID] = s
	}
	return s
}

// Publish はジョブのイベント列末尾にイベントを追加します。
func (h *Hub) Publish(_ context.Context, jobID string, ev Event) error {
	s := h.stream(jobID)
	s.mu.Lock()
	s.events = append(s.events, ev)
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// Poll は cursor 以降のイベントを返します。新着がないまま wait が経過した
// 場合は KeepaliveEvent を1件返し、カーソルは進めません。
func (h *Hub) Poll(ctx context.Context, jobID string, cursor Cursor, wait time.Duration) ([]Event, Cursor, error) {
	s := h.stream(jobID)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if int(cursor) < len(s.events) {
			batch := make([]Event, len(s.events)-int(cursor))
			copy(batch, s.events[cursor:])
			s.mu.Unlock()
			return batch, Cursor(int(cursor) + len(batch)), nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return []Event{NewKeepaliveEvent()}, cursor, nil
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		}
	}
}

// Forget はジョブのイベント列を破棄します。終端イベント配信後の掃除用です。
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, jobID)
}

package optimize

import (
	"context"
	"sync"
)

// Counter はプロセス生涯の最適化完了回数を数えます。Complete に到達した
// ジョブごとにちょうど1回だけ増加し、Failed では増加しません。
type Counter interface {
	Increment(ctx context.Context) (int64, error)
	Value(ctx context.Context) (int64, error)
}

// MemoryCounter は同一プロセス実行用のカウンターです。
type MemoryCounter struct {
	mu sync.Mutex
	n  int64
}

// NewMemoryCounter はカウンターを0で初期化します。
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

// Increment はカウンターを1増やし、増加後の値を返します。
func (c *MemoryCounter) Increment(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

// Value は現在値を返します。
func (c *MemoryCounter) Value(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, nil
}

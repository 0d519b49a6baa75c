package optimize

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const artifactExt = ".zip"

// ArtifactStore は成果物ZIPをファイルシステム上で管理します。
// 成果物はちょうど1回だけ取得でき、最初の取得成功時に削除されます。
// 取得されないまま保持期限を過ぎたものはリーパーが削除します。
// ディレクトリを共有すれば分散モードのワーカープロセスとも併用できます。
type ArtifactStore struct {
	dir       string
	retention time.Duration

	mu      sync.Mutex
	serving map[string]bool // 配信中の成果物（二重取得とリーパー削除を防ぐ）
}

// NewArtifactStore はストアを作成し、保存ディレクトリを用意します。
func NewArtifactStore(dir string, retention time.Duration) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, newError(CodeStorageFailure, "成果物ディレクトリの作成に失敗しました。", err)
	}
	return &ArtifactStore{
		dir:       dir,
		retention: retention,
		serving:   make(map[string]bool),
	}, nil
}

// NewName はジョブIDと相関しないランダムな成果物名を発行します。
func (s *ArtifactStore) NewName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + artifactExt
}

// Path は成果物名に対応する保存先パスを返します。名前は NewName が
// 発行した形式でなければなりません。
func (s *ArtifactStore) Path(name string) (string, error) {
	if !validArtifactName(name) {
		return "", newError(CodeArtifactNotFound, "成果物が見つかりませんでした。", nil)
	}
	return filepath.Join(s.dir, name), nil
}

// TakeOnce は成果物を1回限りで取り出します。呼び出し側は転送完了後に
// release(delivered) を呼びます。delivered=true で成果物は削除され、
// false の場合は保持期限まで再取得できます。
func (s *ArtifactStore) TakeOnce(name string) (*os.File, int64, func(delivered bool), error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, 0, nil, err
	}

	s.mu.Lock()
	if s.serving[name] {
		s.mu.Unlock()
		return nil, 0, nil, newError(CodeArtifactNotFound, "成果物が見つかりませんでした。", nil)
	}
	s.serving[name] = true
	s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		s.mu.Lock()
		delete(s.serving, name)
		s.mu.Unlock()
		return nil, 0, nil, newError(CodeArtifactNotFound, "成果物が見つかりませんでした。", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		s.mu.Lock()
		delete(s.serving, name)
		s.mu.Unlock()
		return nil, 0, nil, newError(CodeStorageFailure, "成果物の情報取得に失敗しました。", err)
	}

	release := func(delivered bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.serving, name)
		if delivered {
			_ = os.Remove(path)
		}
	}
	return file, info.Size(), release, nil
}

// Reap は保持期限を過ぎた未取得の成果物を削除します。
func (s *ArtifactStore) Reap() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !validArtifactName(entry.Name()) {
			continue
		}
		if s.serving[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
	return nil
}

// StartReaper は interval ごとに Reap を実行するゴルーチンを起動します。
// 返される停止関数でリーパーを止められます。
func (s *ArtifactStore) StartReaper(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Reap()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func validArtifactName(name string) bool {
	base, ok := strings.CutSuffix(name, artifactExt)
	if !ok || len(base) != 32 {
		return false
	}
	_, err := hex.DecodeString(base)
	return err == nil
}

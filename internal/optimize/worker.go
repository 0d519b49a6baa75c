package optimize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/pixel-press/internal/imaging"
)

// RunJob はジョブを最後まで実行します。進捗は pub を通じてのみ外部へ
// 伝わります。レジストリに未登録のジョブ（分散モードのワーカープロセス）
// はワークスペースのマニフェストから復元されます。
func (s *Service) RunJob(ctx context.Context, jobID string, pub Publisher) error {
	if jobID == "" {
		return newError(CodeInvalidInput, "jobID is required", nil)
	}
	job := s.registry.Get(jobID)
	if job == nil {
		dir := filepath.Join(s.cfg.WorkspaceDir, jobID)
		manifest, err := loadManifest(dir)
		if err != nil {
			return newError(CodeJobNotFound, "指定されたジョブは存在しません。", err)
		}
		opts := imaging.Options{
			JPEGQuality: manifest.JPEGQuality,
			ConvertPNG:  manifest.ConvertPNG,
		}
		job = NewJob(manifest.JobID, opts, dir, manifest.CreatedAt)
		s.registry.Add(job)
	}
	return s.run(ctx, job, pub)
}

// RunSupervised はジョブを監視付きゴルーチンで実行します。実行中の
// エラーとパニックはいずれも JobError イベントと Failed 状態に変換され、
// ジョブが Processing のまま宙吊りになることはありません。
func (s *Service) RunSupervised(jobID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				job := s.registry.Get(jobID)
				if job != nil && !job.State().Terminal() {
					s.fail(context.Background(), job, s.hub,
						newError(CodeInternal, "ジョブの実行中に予期しないエラーが発生しました。", fmt.Errorf("panic: %v", r)))
				}
			}
		}()
		// ワーカーの生存はストリーム消費者の接続と独立している
		if err := s.RunJob(context.Background(), jobID, s.hub); err != nil {
			s.logger.Printf("job %s finished with error: %v", jobID, err)
		}
	}()
}

func (s *Service) run(ctx context.Context, job *Job, pub Publisher) error {
	if err := job.Transition(StateExtracting); err != nil {
		return s.fail(ctx, job, pub, newError(CodeInternal, "ジョブを開始できませんでした。", err))
	}
	if err := extractArchive(job.ArchivePath, job.InputRoot); err != nil {
		return s.fail(ctx, job, pub, err)
	}

	if err := job.Transition(StateDiscovering); err != nil {
		return s.fail(ctx, job, pub, newError(CodeInternal, "状態遷移に失敗しました。", err))
	}
	files, err := imaging.WalkImages(job.InputRoot)
	if err != nil {
		return s.fail(ctx, job, pub, newError(CodeStorageFailure, "入力ツリーの走査に失敗しました。", err))
	}
	job.SetTotalFiles(len(files))
	total := len(files)

	if total > 0 {
		if err := job.Transition(StateProcessing); err != nil {
			return s.fail(ctx, job, pub, newError(CodeInternal, "状態遷移に失敗しました。", err))
		}
		for i, rel := range files {
			// 変換前に進捗を出すことで、1枚で停滞してもそれまでの
			// 進捗は観測できる
			s.publish(ctx, pub, job.ID, NewProgressEvent(i, total))

			result, fatal := s.processFile(job, rel)
			if fatal != nil {
				return s.fail(ctx, job, pub, fatal)
			}
			job.IncrementProcessed()
			s.publish(ctx, pub, job.ID, NewFileCompleteEvent(result))
		}
		s.publish(ctx, pub, job.ID, NewProgressEvent(total, total))
	}

	if err := job.Transition(StateAssembling); err != nil {
		return s.fail(ctx, job, pub, newError(CodeInternal, "状態遷移に失敗しました。", err))
	}
	artifactName := s.artifacts.NewName()
	artifactPath, err := s.artifacts.Path(artifactName)
	if err != nil {
		return s.fail(ctx, job, pub, err)
	}
	if err := assembleArchive(job.OutputRoot, artifactPath); err != nil {
		return s.fail(ctx, job, pub, err)
	}

	if err := job.Transition(StateComplete); err != nil {
		return s.fail(ctx, job, pub, newError(CodeInternal, "状態遷移に失敗しました。", err))
	}
	if _, err := s.counter.Increment(ctx); err != nil {
		s.logger.Printf("failed to increment lifetime counter job=%s: %v", job.ID, err)
	}
	s.publish(ctx, pub, job.ID, NewCompleteEvent(artifactName))

	if err := removeDir(job.Dir); err != nil {
		s.logger.Printf("failed to clean workspace job=%s: %v", job.ID, err)
	}
	return nil
}

// processFile は1ファイルを変換します。コーデックの失敗は結果レコードに
// 閉じ込めてバッチを継続します。出力ツリーへ書けない場合のみ致命的です。
func (s *Service) processFile(job *Job, rel string) (FileResult, error) {
	inputPath := filepath.Join(job.InputRoot, rel)
	data, err := os.ReadFile(inputPath)
	if err != nil {
		s.logger.Printf("job %s: failed to read %s: %v", job.ID, rel, err)
		return errorResult(rel, 0), nil
	}
	originalSize := int64(len(data))

	output, err := imaging.Transform(data, rel, job.Options)
	if err != nil {
		s.logger.Printf("job %s: failed to transform %s: %v", job.ID, rel, err)
		return errorResult(rel, originalSize), nil
	}

	outRel := strings.TrimSuffix(rel, filepath.Ext(rel)) + output.Ext
	outPath := filepath.Join(job.OutputRoot, outRel)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return FileResult{}, newError(CodeStorageFailure, "出力ディレクトリの作成に失敗しました。", err)
	}
	if err := os.WriteFile(outPath, output.Data, 0o640); err != nil {
		return FileResult{}, newError(CodeStorageFailure, "出力ファイルの書き込みに失敗しました。", err)
	}

	optimizedSize := int64(len(output.Data))
	return FileResult{
		FileName:         filepath.Base(rel),
		OriginalSize:     originalSize,
		OptimizedSize:    optimizedSize,
		SavingPercentage: ComputeSavingPercent(originalSize, optimizedSize),
		Status:           FileStatus(output.Outcome),
	}, nil
}

func errorResult(rel string, originalSize int64) FileResult {
	return FileResult{
		FileName:         filepath.Base(rel),
		OriginalSize:     originalSize,
		OptimizedSize:    0,
		SavingPercentage: 0,
		Status:           StatusError,
	}
}

// fail はジョブを Failed へ遷移させ、ちょうど1件の終端 JobError イベントを
// 発行します。ワークスペースは破棄されます。
func (s *Service) fail(ctx context.Context, job *Job, pub Publisher, err error) error {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		domainErr = newError(CodeInternal, "ジョブの実行中にエラーが発生しました。", err)
	}

	if !job.State().Terminal() {
		if terr := job.Transition(StateFailed); terr != nil {
			s.logger.Printf("job %s: failed transition rejected: %v", job.ID, terr)
		}
	}
	s.publish(ctx, pub, job.ID, NewErrorEvent(domainErr.Code, domainErr.Message))
	s.logger.Printf("job %s failed: %v", job.ID, err)

	if rmErr := removeDir(job.Dir); rmErr != nil {
		s.logger.Printf("failed to clean workspace job=%s: %v", job.ID, rmErr)
	}
	return domainErr
}

func (s *Service) publish(ctx context.Context, pub Publisher, jobID string, ev Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, jobID, ev); err != nil {
		s.logger.Printf("failed to publish event job=%s: %v", jobID, err)
	}
}

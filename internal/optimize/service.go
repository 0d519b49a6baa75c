// Package optimize は画像最適化ジョブのオーケストレーションを提供します。
// ジョブの状態機械、進捗イベント配送、成果物の組み立てと1回限りの取得を
// 同一プロセス実行・分散実行の両モードで扱います。
package optimize

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/pixel-press/internal/config"
	"github.com/yourusername/pixel-press/internal/imaging"
)

const uploadFilename = "upload.zip"

// Service はジョブの受付・実行・照会をまとめたサービスです。
type Service struct {
	cfg       *config.Config
	registry  *Registry
	hub       *Hub
	artifacts *ArtifactStore
	counter   Counter
	logger    *log.Logger
	now       func() time.Time
}

// NewService はサービスを作成します。
func NewService(cfg *config.Config, artifacts *ArtifactStore, counter Counter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:       cfg,
		registry:  NewRegistry(),
		hub:       NewHub(),
		artifacts: artifacts,
		counter:   counter,
		logger:    logger,
		now:       time.Now,
	}
}

// Hub は同一プロセス実行用のProgressChannelを返します。
func (s *Service) Hub() *Hub {
	return s.hub
}

// Artifacts は成果物ストアを返します。
func (s *Service) Artifacts() *ArtifactStore {
	return s.artifacts
}

// Exists はジョブIDがこのプロセスに登録されているかを返します。
func (s *Service) Exists(_ context.Context, jobID string) (bool, error) {
	return s.registry.Get(jobID) != nil, nil
}

// JobStatus はジョブの現在状態を返します。未登録の場合はnilです。
func (s *Service) JobStatus(jobID string) *JobStatus {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil
	}
	status := job.Status()
	return &status
}

// CreateJob はアップロードされたZIPを検証してワークスペースへ保存し、
// Pending状態のジョブを登録します。不正なアーカイブはジョブを作らずに
// エラーを返します。処理自体は開始しません。
func (s *Service) CreateJob(ctx context.Context, file *multipart.FileHeader, opts imaging.Options) (_ *Job, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError(CodeInvalidInput, "ZIPファイルを選択してください。", nil)
	}
	if s.cfg.MaxUploadSize > 0 && file.Size > s.cfg.MaxUploadSize {
		return nil, newError(CodeLimitExceeded,
			fmt.Sprintf("アップロードサイズが上限(%dバイト)を超えています。", s.cfg.MaxUploadSize), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	dir := filepath.Join(s.cfg.WorkspaceDir, jobID)
	job := NewJob(jobID, opts, dir, s.now().UTC())

	defer func() {
		if err != nil {
			_ = removeDir(dir)
		}
	}()

	for _, sub := range []string{job.InputRoot, job.OutputRoot} {
		if err := os.MkdirAll(sub, 0o750); err != nil {
			return nil, newError(CodeStorageFailure, "ワークスペースの作成に失敗しました。", err)
		}
	}

	if err := saveUpload(file, job.ArchivePath); err != nil {
		return nil, err
	}
	if err := s.validateArchive(job.ArchivePath); err != nil {
		return nil, err
	}

	manifest := &JobManifest{
		JobID:       jobID,
		JPEGQuality: opts.JPEGQuality,
		ConvertPNG:  opts.ConvertPNG,
		CreatedAt:   job.CreatedAt,
	}
	if err := writeManifest(dir, manifest); err != nil {
		return nil, newError(CodeStorageFailure, "ジョブマニフェストの保存に失敗しました。", err)
	}

	s.registry.Add(job)
	return job, nil
}

func saveUpload(file *multipart.FileHeader, archivePath string) error {
	src, err := file.Open()
	if err != nil {
		return newError(CodeInvalidInput, "アップロードファイルを開けませんでした。", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return newError(CodeStorageFailure, "アップロードファイルの保存に失敗しました。", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return newError(CodeStorageFailure, "アップロードファイルの保存に失敗しました。", err)
	}
	return nil
}

// validateArchive はジョブ作成前にアーカイブの健全性を確認します。
// MIMEスニッフィングでZIP以外を弾き、構造が壊れたZIPも拒否します。
func (s *Service) validateArchive(archivePath string) error {
	mtype, err := mimetype.DetectFile(archivePath)
	if err != nil {
		return newError(CodeStorageFailure, "アップロードファイルの検査に失敗しました。", err)
	}
	if !mtype.Is("application/zip") {
		return newError(CodeInvalidArchive,
			fmt.Sprintf("ZIPファイルをアップロードしてください (received: %s)。", mtype.String()), nil)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return newError(CodeInvalidArchive, "ZIPファイルが壊れています。", err)
	}
	defer reader.Close()

	if s.cfg.MaxFiles > 0 && len(reader.File) > s.cfg.MaxFiles {
		return newError(CodeLimitExceeded,
			fmt.Sprintf("ZIP内のエントリ数が上限(%d)を超えています。", s.cfg.MaxFiles), nil)
	}
	return nil
}

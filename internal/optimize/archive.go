package optimize

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extractArchive はZIPを destDir 以下へ展開します。destDir の外へ解決される
// エントリが1つでもあれば INVALID_ARCHIVE として中断します（zip slip対策）。
func extractArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return newError(CodeInvalidArchive, "ZIPファイルを読み込めませんでした。", err)
	}
	defer reader.Close()

	cleanDest := filepath.Clean(destDir)
	for _, entry := range reader.File {
		target := filepath.Join(cleanDest, filepath.FromSlash(entry.Name))
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return newError(CodeInvalidArchive,
				fmt.Sprintf("展開先の外を指すエントリが含まれています: %s", entry.Name), nil)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return newError(CodeStorageFailure, "ディレクトリの作成に失敗しました。", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return newError(CodeStorageFailure, "ディレクトリの作成に失敗しました。", err)
		}
		if err := extractEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return newError(CodeInvalidArchive, "ZIPエントリを開けませんでした。", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return newError(CodeStorageFailure, "展開ファイルの作成に失敗しました。", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return newError(CodeInvalidArchive, "ZIPエントリの展開に失敗しました。", err)
	}
	return nil
}

// assembleArchive は outputRoot 以下の全ファイルを決定的な順序でZIPへ
// 詰め、artifactPath に書き出します。メンバー名は outputRoot からの
// 相対パスです。空ツリーからは空のZIPが生成されます。
func assembleArchive(outputRoot, artifactPath string) error {
	var members []string
	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		members = append(members, path)
		return nil
	})
	if err != nil {
		return newError(CodeStorageFailure, "出力ツリーの走査に失敗しました。", err)
	}
	sort.Strings(members)

	outFile, err := os.OpenFile(artifactPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return newError(CodeStorageFailure, "成果物ZIPの作成に失敗しました。", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)
	for _, path := range members {
		if err := writeMember(zipWriter, outputRoot, path); err != nil {
			zipWriter.Close()
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return newError(CodeStorageFailure, "成果物ZIPの書き込みに失敗しました。", err)
	}
	return nil
}

func writeMember(zipWriter *zip.Writer, outputRoot, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return newError(CodeStorageFailure, "ZIP入力ファイルのオープンに失敗しました。", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return newError(CodeStorageFailure, "ZIP入力ファイルの情報取得に失敗しました。", err)
	}

	rel, err := filepath.Rel(outputRoot, path)
	if err != nil {
		return newError(CodeStorageFailure, "ZIPメンバー名の解決に失敗しました。", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return newError(CodeStorageFailure, "ZIPヘッダーの生成に失敗しました。", err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return newError(CodeStorageFailure, "ZIPヘッダーの書き込みに失敗しました。", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return newError(CodeStorageFailure, "ZIPへの書き込みに失敗しました。", err)
	}
	return nil
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

package imaging

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// 処理対象として認識する画像拡張子。webp はエンコーダーが無いため対象外。
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}

// IsImagePath はパスの拡張子が処理対象かどうかを返します。
func IsImagePath(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// WalkImages はルート以下の対象画像をルートからの相対パスで列挙します。
// filepath.WalkDir の辞書順走査により、同じ入力ツリーに対して常に
// 同じ順序（ディレクトリ→ファイル名順）が得られます。
func WalkImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !IsImagePath(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

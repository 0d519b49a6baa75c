// Package imaging は画像の再圧縮コーデックとファイル探索を提供します。
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// DefaultJPEGQuality は jpeg_quality が未指定・不正な場合に使う値です。
const DefaultJPEGQuality = 85

// Options は1ファイルの変換オプションです。
type Options struct {
	JPEGQuality int  // JPEG圧縮品質 (1-100)
	ConvertPNG  bool // 透過のないPNGをJPEGへ変換するか
}

// Outcome は変換1回の結果種別を表します。
type Outcome string

const (
	OutcomeOptimized Outcome = "optimized"
	OutcomeConverted Outcome = "converted"
	OutcomeSkipped   Outcome = "skipped"
)

// Output は変換結果のバイト列と出力メタデータです。
type Output struct {
	Data    []byte
	Ext     string // 出力拡張子（PNG→JPEG変換時は ".jpg" に書き換わる）
	Outcome Outcome
}

// NormalizeQuality は範囲外の品質値をデフォルトへフォールバックします。
func NormalizeQuality(q int) int {
	if q < 1 || q > 100 {
		return DefaultJPEGQuality
	}
	return q
}

// Transform は1枚の画像を再圧縮します。name は拡張子の決定にのみ使われます。
// デコードできない入力はエラーを返し、呼び出し側で status=error として
// 記録されます（バッチは継続されます）。
func Transform(input []byte, name string, opts Options) (*Output, error) {
	quality := NormalizeQuality(opts.JPEGQuality)
	ext := strings.ToLower(filepath.Ext(name))

	img, format, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	outcome := OutcomeOptimized

	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case "png":
		if opts.ConvertPNG && isOpaque(img) {
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("failed to convert png to jpeg: %w", err)
			}
			ext = ".jpg"
			outcome = OutcomeConverted
		} else {
			if opts.ConvertPNG {
				// 透過があるため変換せずPNGのまま保持する
				outcome = OutcomeSkipped
			}
			enc := png.Encoder{CompressionLevel: png.BestCompression}
			if err := enc.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("failed to encode png: %w", err)
			}
		}
	case "gif":
		// アニメーションを保持するため全フレームを再エンコードする
		anim, err := gif.DecodeAll(bytes.NewReader(input))
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif: %w", err)
		}
		if err := gif.EncodeAll(&buf, anim); err != nil {
			return nil, fmt.Errorf("failed to encode gif: %w", err)
		}
	case "bmp":
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode bmp: %w", err)
		}
	case "tiff":
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return nil, fmt.Errorf("failed to encode tiff: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	return &Output{
		Data:    buf.Bytes(),
		Ext:     ext,
		Outcome: outcome,
	}, nil
}

// isOpaque は画像が完全不透明かどうかを判定します。
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

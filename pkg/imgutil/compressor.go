package imgutil

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CompressToJPEG は画像データ（PNG, WebP, JPEG等）をJPEG形式に圧縮します。
// image.Decodeがサポートするフォーマットに対応しています。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fit は長辺が maxDim を超える画像を縦横比を保って縮小します。
// 収まっている画像や maxDim <= 0 の場合はそのまま返します。
// WebP はエンコーダーがないため縮小時は PNG として出力します。
func Fit(data []byte, mediaType string, maxDim int) ([]byte, string, error) {
	if maxDim <= 0 {
		return data, mediaType, nil
	}
	cfg, err := CheckStructure(data, mediaType)
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, mediaType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	buf := new(bytes.Buffer)
	outType := MediaTypePNG
	format := imaging.PNG
	if normalize(mediaType) == MediaTypeJPEG {
		outType = MediaTypeJPEG
		format = imaging.JPEG
	}
	if err := imaging.Encode(buf, resized, format, imaging.JPEGQuality(90)); err != nil {
		return nil, "", fmt.Errorf("画像のエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), outType, nil
}

package imgutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeWebP = "image/webp"

	dataURLPrefix = "data:"
	base64Marker  = ";base64,"
)

// SupportedMediaTypes はアップロードを受け付けるラスター形式です。
var SupportedMediaTypes = []string{MediaTypePNG, MediaTypeJPEG, MediaTypeWebP}

// IsSupported はメディアタイプがホワイトリストに含まれるかを返します。
func IsSupported(mediaType string) bool {
	mt := normalize(mediaType)
	for _, s := range SupportedMediaTypes {
		if s == mt {
			return true
		}
	}
	return false
}

// DetectMediaType は内容からメディアタイプを判定します。
func DetectMediaType(data []byte) string {
	return normalize(http.DetectContentType(data))
}

// ResolveMediaType は宣言されたタイプを優先し、空または image/* 以外なら内容から判定します。
// application/octet-stream で送られたアップロードもここで判定し直されます。
// 結果がホワイトリスト外ならエラーです。
func ResolveMediaType(declared string, data []byte) (string, error) {
	mt := normalize(declared)
	if !strings.HasPrefix(mt, "image/") {
		mt = DetectMediaType(data)
	}
	if !IsSupported(mt) {
		return "", fmt.Errorf("未対応のメディアタイプです: %s", mt)
	}
	return mt, nil
}

// EncodeDataURL は data:<mime>;base64,<payload> 形式の参照を組み立てます。
func EncodeDataURL(mediaType string, data []byte) string {
	return dataURLPrefix + mediaType + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL は EncodeDataURL の逆変換です。
func DecodeDataURL(ref string) (string, []byte, error) {
	if !strings.HasPrefix(ref, dataURLPrefix) {
		return "", nil, fmt.Errorf("data URL ではありません")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, dataURLPrefix), base64Marker)
	if !ok || meta == "" {
		return "", nil, fmt.Errorf("base64 の data URL ではありません")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("payload のデコードに失敗しました: %w", err)
	}
	return meta, data, nil
}

// CheckStructure はバイト列が宣言されたメディアタイプの画像として読めるかを確認します。
// ヘッダーのみを解析し、ピクセルはデコードしません。
func CheckStructure(data []byte, mediaType string) (image.Config, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("画像ヘッダーの解析に失敗しました: %w", err)
	}
	if want := normalize(mediaType); want != "" && "image/"+format != want {
		return image.Config{}, fmt.Errorf("メディアタイプが一致しません: declared=%s actual=image/%s", want, format)
	}
	return cfg, nil
}

func normalize(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" {
		return MediaTypeJPEG
	}
	return mt
}

package domain

import "fmt"

// UploadKind はアップロードされた画像の種類です。
type UploadKind string

const (
	UploadKindPanel UploadKind = "panel"
	UploadKindPhoto UploadKind = "photo"
)

// Style は画風の選択肢です。
type Style string

// Genre はジャンルの選択肢です。
type Genre string

// Styles はビルド時に固定された画風カタログです。先頭がデフォルトになります。
var Styles = []Style{
	"Anime",
	"Watercolor",
	"Cel Shaded",
	"Vintage Manga",
	"Ink Wash",
	"Pastel",
	"Cyberpunk Neon",
	"Retro 90s",
	"Gekiga",
	"Chibi",
}

// Genres はビルド時に固定されたジャンルカタログです。先頭がデフォルトになります。
var Genres = []Genre{
	"Shonen",
	"Shojo",
	"Seinen",
	"Josei",
	"Isekai",
	"Fantasy",
	"Sci-Fi",
	"Horror",
	"Romance",
	"Slice of Life",
	"Mecha",
	"Sports",
}

// UploadKinds は UploadKind の全候補です。
var UploadKinds = []UploadKind{UploadKindPanel, UploadKindPhoto}

// ParseUploadKind は文字列を UploadKind に変換します。空文字はデフォルト (panel) です。
func ParseUploadKind(s string) (UploadKind, error) {
	if s == "" {
		return UploadKinds[0], nil
	}
	for _, k := range UploadKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("未対応のアップロード種別です: %q", s)
}

// ParseStyle はカタログに存在する Style を返します。空文字はカタログ先頭です。
func ParseStyle(s string) (Style, error) {
	if s == "" {
		return Styles[0], nil
	}
	for _, st := range Styles {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("未対応の画風です: %q", s)
}

// ParseGenre はカタログに存在する Genre を返します。空文字はカタログ先頭です。
func ParseGenre(s string) (Genre, error) {
	if s == "" {
		return Genres[0], nil
	}
	for _, g := range Genres {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("未対応のジャンルです: %q", s)
}

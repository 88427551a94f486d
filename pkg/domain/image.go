package domain

import "context"

// Loader は画像のバイト列を読み出す手段を抽象化します。
// 実装は pkg/source にあります（メモリ、ローカルファイル、リモートURL）。
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
}

// SourceImage はバッチ送信の間だけ存在する入力画像です。
// 呼び出し元が所有し、オーケストレーターからは読み取り専用として扱われます。
type SourceImage struct {
	Name      string
	MediaType string // 空の場合は内容から判定します
	Loader    Loader
}

// TransformRequest は1枚の画像に対するリモート呼び出しの内容です。永続化はされません。
type TransformRequest struct {
	ImageBase64 string
	MediaType   string
	Prompt      string
	Model       string
}

// TransformResult は成功した1件の変換結果です。生成後は変更されません。
type TransformResult struct {
	// OriginalReference は元画像を指すローカルハンドル (blob:<id>) です。
	OriginalReference string `json:"original"`
	// GeneratedReference は data:<mime>;base64,<payload> 形式の埋め込み画像です。
	GeneratedReference string `json:"generated"`
}

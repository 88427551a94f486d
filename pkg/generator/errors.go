package generator

import (
	"errors"
	"fmt"
)

// ErrorKind はバッチを失敗させたエラーの分類です。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindEncoding
	KindRemoteCall
	KindContentBlocked
	KindEmptyResponse
	KindGenerationIncomplete
	KindWrongModality
	KindMalformedResponse
)

var (
	ErrNoImages             = errors.New("画像が1枚も指定されていません")
	ErrMissingCredential    = errors.New("APIキーが環境変数に設定されていません")
	ErrEncoding             = errors.New("画像の読み込みに失敗しました")
	ErrRemoteCall           = errors.New("画像生成APIの呼び出しに失敗しました")
	ErrContentBlocked       = errors.New("コンテンツポリシーによりリクエストがブロックされました")
	ErrEmptyResponse        = errors.New("画像生成APIが空の応答を返しました")
	ErrGenerationIncomplete = errors.New("画像生成が正常に完了しませんでした")
	ErrWrongModality        = errors.New("モデルが画像ではなくテキストを返しました")
	ErrMalformedResponse    = errors.New("画像生成APIの応答形式が不正です")
	ErrUnknown              = errors.New("画像の変換中に予期しないエラーが発生しました")
)

var kindSentinels = map[ErrorKind]error{
	KindUnknown:              ErrUnknown,
	KindConfiguration:        ErrMissingCredential,
	KindEncoding:             ErrEncoding,
	KindRemoteCall:           ErrRemoteCall,
	KindContentBlocked:       ErrContentBlocked,
	KindEmptyResponse:        ErrEmptyResponse,
	KindGenerationIncomplete: ErrGenerationIncomplete,
	KindWrongModality:        ErrWrongModality,
	KindMalformedResponse:    ErrMalformedResponse,
}

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindEncoding:
		return "encoding"
	case KindRemoteCall:
		return "remote_call"
	case KindContentBlocked:
		return "content_blocked"
	case KindEmptyResponse:
		return "empty_response"
	case KindGenerationIncomplete:
		return "generation_incomplete"
	case KindWrongModality:
		return "wrong_modality"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// TransformError は1枚の画像（または設定）に起因する失敗です。
// errors.Is で種別ごとの Err* と比較できます。
type TransformError struct {
	Kind ErrorKind
	// Index は入力スライス上の位置です。設定エラーなど画像に紐付かない場合は -1。
	Index int
	Name  string
	// Reason はブロック理由や FinishReason など API が返した機械可読な理由です。
	Reason string
	// Text はモデルが画像の代わりに返したテキストです。
	Text string
	Err  error
}

func (e *TransformError) Error() string {
	msg := e.sentinel().Error()
	if e.Index >= 0 {
		if e.Name != "" {
			msg = fmt.Sprintf("画像 #%d (%s): %s", e.Index+1, e.Name, msg)
		} else {
			msg = fmt.Sprintf("画像 #%d: %s", e.Index+1, msg)
		}
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(" (reason: %s)", e.Reason)
	}
	if e.Text != "" {
		msg += fmt.Sprintf(": %q", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *TransformError) sentinel() error {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s
	}
	return ErrUnknown
}

// KindOf はエラーの種別を返します。TransformError でなければ KindUnknown です。
func KindOf(err error) ErrorKind {
	var te *TransformError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, cause error) *TransformError {
	return &TransformError{Kind: kind, Index: -1, Err: cause}
}

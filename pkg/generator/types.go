package generator

import (
	"context"
	"time"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"google.golang.org/genai"
)

const (
	// DefaultModel は画像編集に使う Gemini のモデルです。
	DefaultModel = "gemini-2.5-flash-image"

	outcomeSuccess = "success"
)

// ImageOutput はレスポンス解析の内部結果です。
type ImageOutput struct {
	Data     []byte
	MimeType string
}

// RemoteModel は生成 API を1回呼び出す窓口です。
// 実装を差し替えればオーケストレーターに手を入れずにバックエンドを交換できます。
type RemoteModel interface {
	Submit(ctx context.Context, req domain.TransformRequest) (*genai.GenerateContentResponse, error)
}

// Validator を実装した RemoteModel は、バッチ開始前に設定の検証を受けます。
type Validator interface {
	Validate(ctx context.Context) error
}

// HandleStore は元画像のローカルハンドルを発行・解放します。
type HandleStore interface {
	Acquire(data []byte, mediaType string) string
	ReleaseAll(refs []string)
}

// Preprocessor はエンコード前に画像を加工します（縮小など）。
type Preprocessor func(data []byte, mediaType string) ([]byte, string, error)

// Recorder はバッチと画像ごとの結果を記録します。
type Recorder interface {
	ObserveImage(outcome string, d time.Duration)
	ObserveBatch(outcome string, size int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveImage(string, time.Duration) {}
func (nopRecorder) ObserveBatch(string, int)           {}

// Option は Orchestrator の設定を変更します。
type Option func(*Orchestrator)

// WithConcurrencyLimit は同時に実行するリモート呼び出しの上限を設定します。
// 0 以下は無制限（バッチサイズ＝並列数）です。
func WithConcurrencyLimit(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithPreprocessor はエンコード前の加工処理を設定します。
func WithPreprocessor(p Preprocessor) Option {
	return func(o *Orchestrator) { o.preprocess = p }
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

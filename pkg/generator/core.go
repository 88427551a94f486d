package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/imgutil"
	"github.com/shouni/manga-stylizer/pkg/prompts"
)

// Orchestrator は複数画像の変換リクエストを並列に発行し、結果を入力順にまとめます。
// バッチは全件成功した場合のみ成功し、最初の失敗がそのままバッチのエラーになります。
type Orchestrator struct {
	remote     RemoteModel
	handles    HandleStore
	model      string
	limit      int
	preprocess Preprocessor
	recorder   Recorder
}

// NewOrchestrator は依存関係を注入して Orchestrator を初期化します。
func NewOrchestrator(remote RemoteModel, handles HandleStore, model string, opts ...Option) (*Orchestrator, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote (RemoteModel) is required")
	}
	if handles == nil {
		return nil, fmt.Errorf("handles (HandleStore) is required")
	}
	if model == "" {
		model = DefaultModel
	}

	o := &Orchestrator{
		remote:   remote,
		handles:  handles,
		model:    model,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// TransformBatch は images の各画像を変換し、入力と同じ順序で結果を返します。
// いずれかが失敗した場合は部分的な結果を捨て、取得済みのハンドルを解放してエラーを返します。
func (o *Orchestrator) TransformBatch(ctx context.Context, images []domain.SourceImage, kind domain.UploadKind, style domain.Style, genre domain.Genre) ([]domain.TransformResult, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	// 認証情報がない場合はネットワークに触れる前に失敗させる
	if v, ok := o.remote.(Validator); ok {
		if err := v.Validate(ctx); err != nil {
			o.recorder.ObserveBatch(KindOf(err).String(), len(images))
			slog.ErrorContext(ctx, "バッチを開始できません", "error", err)
			return nil, err
		}
	}

	slog.InfoContext(ctx, "画像変換バッチを開始します",
		"model", o.model, "kind", kind, "style", style, "genre", genre, "count", len(images), "limit", o.limit)

	prompt := prompts.BuildPrompt(kind, style, genre)
	results := make([]domain.TransformResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for i, img := range images {
		g.Go(func() error {
			res, err := o.transformOne(gctx, i, img, prompt)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.releaseResults(results)
		o.recorder.ObserveBatch(KindOf(err).String(), len(images))
		slog.WarnContext(ctx, "画像変換バッチが失敗しました", "error", err, "kind", KindOf(err).String())
		return nil, err
	}

	o.recorder.ObserveBatch(outcomeSuccess, len(images))
	slog.InfoContext(ctx, "画像変換バッチが完了しました", "count", len(results))
	return results, nil
}

// transformOne は1枚の画像について エンコード → 送信 → 解析 を行います。
func (o *Orchestrator) transformOne(ctx context.Context, index int, img domain.SourceImage, prompt string) (domain.TransformResult, error) {
	start := time.Now()
	res, err := o.runPipeline(ctx, img, prompt)
	if err != nil {
		err = annotate(err, index, img.Name)
		o.recorder.ObserveImage(KindOf(err).String(), time.Since(start))
		return domain.TransformResult{}, err
	}
	o.recorder.ObserveImage(outcomeSuccess, time.Since(start))
	slog.DebugContext(ctx, "画像の変換に成功しました", "index", index, "name", img.Name, "elapsed", time.Since(start))
	return res, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, img domain.SourceImage, prompt string) (domain.TransformResult, error) {
	enc, err := o.encode(ctx, img, prompt)
	if err != nil {
		return domain.TransformResult{}, newError(KindEncoding, err)
	}

	resp, err := o.remote.Submit(ctx, enc.req)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			return domain.TransformResult{}, err
		}
		return domain.TransformResult{}, newError(KindRemoteCall, err)
	}

	out, err := interpretResponse(resp)
	if err != nil {
		return domain.TransformResult{}, err
	}

	return domain.TransformResult{
		OriginalReference:  o.handles.Acquire(enc.original, enc.originalType),
		GeneratedReference: imgutil.EncodeDataURL(out.MimeType, out.Data),
	}, nil
}

// releaseResults は失敗したバッチで取得済みのハンドルを解放します。
func (o *Orchestrator) releaseResults(results []domain.TransformResult) {
	var refs []string
	for _, r := range results {
		if r.OriginalReference != "" {
			refs = append(refs, r.OriginalReference)
		}
	}
	if len(refs) > 0 {
		o.handles.ReleaseAll(refs)
	}
}

// annotate はエラーに入力位置と名前を付けます。
func annotate(err error, index int, name string) error {
	var te *TransformError
	if !errors.As(err, &te) {
		te = &TransformError{Kind: KindUnknown, Err: err}
	}
	annotated := *te
	annotated.Index = index
	annotated.Name = name
	return &annotated
}

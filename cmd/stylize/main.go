package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/spf13/pflag"

	"github.com/shouni/manga-stylizer/internal/config"
	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/generator"
	"github.com/shouni/manga-stylizer/pkg/handles"
	"github.com/shouni/manga-stylizer/pkg/imgutil"
	"github.com/shouni/manga-stylizer/pkg/source"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("変換に失敗しました", "error", err, "kind", generator.KindOf(err).String())
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("stylize", pflag.ContinueOnError)
	kindFlag := fs.String("kind", string(domain.UploadKindPanel), "入力の種類 (panel|photo)")
	styleFlag := fs.String("style", string(domain.Styles[0]), "画風")
	genreFlag := fs.String("genre", string(domain.Genres[0]), "ジャンル")
	outDir := fs.StringP("out", "o", ".", "出力ディレクトリ")
	quality := fs.Int("jpeg-quality", 0, "1-100 を指定すると JPEG で保存します")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: stylize [flags] FILE|gs://BUCKET/OBJECT...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("画像ファイルを1つ以上指定してください")
	}

	kind, err := domain.ParseUploadKind(*kindFlag)
	if err != nil {
		return err
	}
	style, err := domain.ParseStyle(*styleFlag)
	if err != nil {
		return err
	}
	genre, err := domain.ParseGenre(*genreFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	model, err := generator.NewGeminiModel(generator.EnvCredential(cfg.Gemini.APIKeyEnv), cfg.Gemini.BaseURL)
	if err != nil {
		return err
	}
	registry := handles.NewRegistry()
	orch, err := generator.NewOrchestrator(model, registry, cfg.Gemini.Model,
		generator.WithConcurrencyLimit(cfg.Batch.Concurrency))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader, closeReader, err := newInputReader(ctx, fs.Args())
	if err != nil {
		return err
	}
	defer closeReader()

	images := make([]domain.SourceImage, fs.NArg())
	for i, path := range fs.Args() {
		images[i] = domain.SourceImage{Name: filepath.Base(path), Loader: source.NewPath(reader, path)}
	}

	results, err := orch.TransformBatch(ctx, images, kind, style, genre)
	if err != nil {
		return err
	}
	defer func() {
		refs := make([]string, len(results))
		for i, r := range results {
			refs[i] = r.OriginalReference
		}
		registry.ReleaseAll(refs)
	}()

	paths, err := writeResults(*outDir, images, results, *quality)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

// newInputReader は入力パスを読む InputReader を返します。
// gs:// のパスが含まれるときだけ GCS クライアントを作ります。
func newInputReader(ctx context.Context, paths []string) (remoteio.InputReader, func(), error) {
	needsGCS := false
	for _, p := range paths {
		if strings.HasPrefix(p, "gs://") {
			needsGCS = true
			break
		}
	}
	if !needsGCS {
		return remoteio.NewUniversalInputReader(nil, nil), func() {}, nil
	}

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("GCS クライアントの初期化に失敗しました: %w", err)
	}
	closeFn := func() {
		if err := gcsClient.Close(); err != nil {
			slog.Warn("GCS クライアントのクローズに失敗しました", "error", err)
		}
	}
	return remoteio.NewUniversalInputReader(gcsClient, nil), closeFn, nil
}

// writeResults は生成画像を入力ファイル名に対応する名前で保存し、保存先を返します。
func writeResults(dir string, images []domain.SourceImage, results []domain.TransformResult, quality int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリを作成できません: %w", err)
	}

	paths := make([]string, 0, len(results))
	for i, r := range results {
		mediaType, data, err := imgutil.DecodeDataURL(r.GeneratedReference)
		if err != nil {
			return paths, fmt.Errorf("生成画像 #%d のデコードに失敗しました: %w", i+1, err)
		}

		ext := extension(mediaType)
		if quality > 0 {
			if data, err = imgutil.CompressToJPEG(data, quality); err != nil {
				return paths, fmt.Errorf("生成画像 #%d の圧縮に失敗しました: %w", i+1, err)
			}
			ext = ".jpg"
		}

		stem := fmt.Sprintf("image%d", i+1)
		if i < len(images) && images[i].Name != "" {
			stem = strings.TrimSuffix(images[i].Name, filepath.Ext(images[i].Name))
		}
		path := filepath.Join(dir, stem+"_stylized"+ext)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("生成画像 #%d の保存に失敗しました: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func extension(mediaType string) string {
	switch mediaType {
	case imgutil.MediaTypeJPEG:
		return ".jpg"
	case imgutil.MediaTypeWebP:
		return ".webp"
	default:
		return ".png"
	}
}

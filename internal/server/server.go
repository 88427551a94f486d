package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/handles"
	"github.com/shouni/manga-stylizer/pkg/history"
)

// Transformer はバッチ変換を行う窓口です（generator.Orchestrator が実装します）。
type Transformer interface {
	TransformBatch(ctx context.Context, images []domain.SourceImage, kind domain.UploadKind, style domain.Style, genre domain.Genre) ([]domain.TransformResult, error)
}

// Server は変換 API と、画面に表示中の結果・履歴を保持します。
type Server struct {
	transformer Transformer
	handles     *handles.Registry
	history     *history.Log
	fetcher     httpkit.ClientInterface
	metrics     http.Handler
	maxUpload   int64

	mu      sync.Mutex
	current []domain.TransformResult
}

// Options は Server の任意の依存関係です。
type Options struct {
	// Fetcher があれば URL 指定の画像も受け付けます。
	Fetcher        httpkit.ClientInterface
	Metrics        http.Handler
	MaxUploadBytes int64
}

// New は依存関係を注入して Server を初期化します。
func New(transformer Transformer, registry *handles.Registry, hist *history.Log, opts Options) (*Server, error) {
	if transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if hist == nil {
		return nil, fmt.Errorf("history is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{
		transformer: transformer,
		handles:     registry,
		history:     hist,
		fetcher:     opts.Fetcher,
		metrics:     opts.Metrics,
		maxUpload:   opts.MaxUploadBytes,
	}, nil
}

// Router はルーティング済みのハンドラーを返します。
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/transform", s.handleTransform).Methods(http.MethodPost)
	api.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/results/{index:[0-9]+}", s.handleRemoveResult).Methods(http.MethodDelete)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/originals/{id}", s.handleOriginal).Methods(http.MethodGet)
	api.HandleFunc("/originals/{id}", s.handleReleaseOriginal).Methods(http.MethodDelete)
	return r
}

// replaceResults は新しいバッチで表示中の結果を置き換え、古い元画像ハンドルを解放し、
// 生成画像を履歴に追加します。履歴への書き込みはここだけで行います。
func (s *Server) replaceResults(results []domain.TransformResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := make([]string, 0, len(s.current))
	for _, r := range s.current {
		old = append(old, r.OriginalReference)
	}
	s.handles.ReleaseAll(old)
	s.current = results

	generated := make([]string, len(results))
	for i, r := range results {
		generated[i] = r.GeneratedReference
	}
	s.history.Append(generated...)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.InfoContext(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/manga-stylizer/internal/config"
	"github.com/shouni/manga-stylizer/internal/metrics"
	"github.com/shouni/manga-stylizer/internal/server"
	"github.com/shouni/manga-stylizer/pkg/generator"
	"github.com/shouni/manga-stylizer/pkg/handles"
	"github.com/shouni/manga-stylizer/pkg/history"
	"github.com/shouni/manga-stylizer/pkg/imgutil"
)

func main() {
	if err := run(); err != nil {
		slog.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	model, err := generator.NewGeminiModel(generator.EnvCredential(cfg.Gemini.APIKeyEnv), cfg.Gemini.BaseURL)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return err
	}

	registry := handles.NewRegistry()
	opts := []generator.Option{
		generator.WithConcurrencyLimit(cfg.Batch.Concurrency),
		generator.WithRecorder(recorder),
	}
	if maxDim := cfg.Batch.MaxInputDimension; maxDim > 0 {
		opts = append(opts, generator.WithPreprocessor(func(data []byte, mediaType string) ([]byte, string, error) {
			return imgutil.Fit(data, mediaType, maxDim)
		}))
	}
	orch, err := generator.NewOrchestrator(model, registry, cfg.Gemini.Model, opts...)
	if err != nil {
		return err
	}

	srv, err := server.New(orch, registry, history.New(), server.Options{
		Fetcher:        httpkit.New(cfg.Server.FetchTimeout),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("サーバーを起動します", "addr", cfg.Server.Addr, "model", cfg.Gemini.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("シャットダウンしています")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

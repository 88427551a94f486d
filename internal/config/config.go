package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はサーバー全体の設定です。
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	Batch  BatchConfig
	Log    LogConfig
}

type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
	FetchTimeout   time.Duration
}

type GeminiConfig struct {
	Model string
	// APIKeyEnv は API キーを読む環境変数名です。キー自体は呼び出しのたびに読みます。
	APIKeyEnv string
	BaseURL   string
}

type BatchConfig struct {
	// Concurrency は同時リクエスト数の上限です。0 は無制限。
	Concurrency int
	// MaxInputDimension を超える入力は送信前に縮小します。0 は縮小しません。
	MaxInputDimension int
}

type LogConfig struct {
	Level string
}

// Load は .env と環境変数から設定を読み込みます。
func Load() (*Config, error) {
	// .env がなければ環境変数だけで動かす
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 32<<20)
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash-image")
	v.SetDefault("GEMINI_API_KEY_ENV", "GEMINI_API_KEY")
	v.SetDefault("GEMINI_BASE_URL", "")
	v.SetDefault("BATCH_CONCURRENCY", 0)
	v.SetDefault("MAX_INPUT_DIMENSION", 0)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Addr:           v.GetString("SERVER_ADDR"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
			FetchTimeout:   v.GetDuration("FETCH_TIMEOUT"),
		},
		Gemini: GeminiConfig{
			Model:     v.GetString("GEMINI_MODEL"),
			APIKeyEnv: v.GetString("GEMINI_API_KEY_ENV"),
			BaseURL:   v.GetString("GEMINI_BASE_URL"),
		},
		Batch: BatchConfig{
			Concurrency:       v.GetInt("BATCH_CONCURRENCY"),
			MaxInputDimension: v.GetInt("MAX_INPUT_DIMENSION"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL is required")
	}
	if c.Gemini.APIKeyEnv == "" {
		return fmt.Errorf("GEMINI_API_KEY_ENV is required")
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must not be negative")
	}
	if c.Batch.MaxInputDimension < 0 {
		return fmt.Errorf("MAX_INPUT_DIMENSION must not be negative")
	}
	return nil
}

// SlogLevel は LOG_LEVEL を slog.Level に変換します。未知の値は info です。
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

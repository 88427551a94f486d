package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"google.golang.org/genai"
)

// CredentialFunc は呼び出しのたびに API キーを返します。
type CredentialFunc func() string

// EnvCredential は環境変数から API キーを読む CredentialFunc を返します。
func EnvCredential(name string) CredentialFunc {
	return func() string { return os.Getenv(name) }
}

// harmCategories はすべて BLOCK_NONE に設定するカテゴリです。
var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// GeminiModel は google.golang.org/genai を使う RemoteModel です。
// セッションは持たず、1回の Submit で1回の generateContent を行います。
type GeminiModel struct {
	credential CredentialFunc
	baseURL    string
}

// NewGeminiModel は GeminiModel を初期化します。baseURL が空なら SDK の既定値を使います。
func NewGeminiModel(credential CredentialFunc, baseURL string) (*GeminiModel, error) {
	if credential == nil {
		return nil, fmt.Errorf("credential is required")
	}
	return &GeminiModel{credential: credential, baseURL: baseURL}, nil
}

// Validate は API キーが取得できるかを確認します。
func (m *GeminiModel) Validate(ctx context.Context) error {
	if m.credential() == "" {
		return newError(KindConfiguration, nil)
	}
	return nil
}

// Submit は画像とプロンプトを送り、レスポンスをそのまま返します。
// リトライやタイムアウトの上書きは行いません。
func (m *GeminiModel) Submit(ctx context.Context, req domain.TransformRequest) (*genai.GenerateContentResponse, error) {
	apiKey := m.credential()
	if apiKey == "" {
		return nil, newError(KindConfiguration, nil)
	}

	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, newError(KindEncoding, fmt.Errorf("base64 のデコードに失敗しました: %w", err))
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if m.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: m.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, req.MediaType),
			genai.NewPartFromText(req.Prompt),
		},
	}}

	slog.DebugContext(ctx, "Geminiに画像変換をリクエストします", "model", req.Model, "mime_type", req.MediaType, "bytes", len(data))
	return client.Models.GenerateContent(ctx, req.Model, contents, generateConfig())
}

// generateConfig は画像のみを返させ、事前フィルターを無効にした設定です。
func generateConfig() *genai.GenerateContentConfig {
	safety := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, c := range harmCategories {
		safety = append(safety, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
		SafetySettings:     safety,
	}
}

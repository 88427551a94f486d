package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/imgutil"
	"google.golang.org/genai"
)

// encodedImage はエンコード済みのリクエストと、ハンドル登録用の元画像です。
type encodedImage struct {
	req          domain.TransformRequest
	original     []byte
	originalType string
}

// encode は画像を読み込み、base64 のリクエストに変換します。
func (o *Orchestrator) encode(ctx context.Context, img domain.SourceImage, prompt string) (*encodedImage, error) {
	if img.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	data, err := img.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	mediaType, err := imgutil.ResolveMediaType(img.MediaType, data)
	if err != nil {
		return nil, err
	}

	payload, payloadType := data, mediaType
	if o.preprocess != nil {
		payload, payloadType, err = o.preprocess(data, mediaType)
		if err != nil {
			return nil, fmt.Errorf("前処理に失敗しました: %w", err)
		}
	}

	return &encodedImage{
		req: domain.TransformRequest{
			ImageBase64: base64.StdEncoding.EncodeToString(payload),
			MediaType:   payloadType,
			Prompt:      prompt,
			Model:       o.model,
		},
		original:     data,
		originalType: mediaType,
	}, nil
}

// interpretResponse は Gemini のレスポンスを上から順に判定し、最初に一致した結果を返します。
// 画像データを含まないレスポンスが成功扱いになることはありません。
func interpretResponse(resp *genai.GenerateContentResponse) (*ImageOutput, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if reason := blockReason(resp); reason != "" {
			return nil, &TransformError{Kind: KindContentBlocked, Index: -1, Reason: reason}
		}
		return nil, &TransformError{Kind: KindEmptyResponse, Index: -1}
	}

	// Gemini からの最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]
	if candidate == nil {
		return nil, &TransformError{Kind: KindMalformedResponse, Index: -1}
	}

	// 安全フィルターや出力上限による中断の確認
	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		reason := string(candidate.FinishReason)
		if candidate.FinishMessage != "" {
			reason += ": " + candidate.FinishMessage
		}
		return nil, &TransformError{Kind: KindGenerationIncomplete, Index: -1, Reason: reason}
	}

	if candidate.Content == nil {
		return nil, &TransformError{Kind: KindMalformedResponse, Index: -1}
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = imgutil.DetectMediaType(part.InlineData.Data)
			}
			return &ImageOutput{Data: part.InlineData.Data, MimeType: mimeType}, nil
		}
		if part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}

	if len(texts) > 0 {
		return nil, &TransformError{Kind: KindWrongModality, Index: -1, Text: strings.Join(texts, "\n")}
	}
	return nil, &TransformError{Kind: KindMalformedResponse, Index: -1}
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	fb := resp.PromptFeedback
	if fb.BlockReason == "" || fb.BlockReason == genai.BlockedReasonUnspecified {
		return ""
	}
	reason := string(fb.BlockReason)
	if fb.BlockReasonMessage != "" {
		reason += ": " + fb.BlockReasonMessage
	}
	return reason
}

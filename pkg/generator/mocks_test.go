package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"google.golang.org/genai"
)

// --- Mocks ---

// mockRemote は RemoteModel のテスト用モックなのだ。
type mockRemote struct {
	mu         sync.Mutex
	submitFunc func(ctx context.Context, req domain.TransformRequest) (*genai.GenerateContentResponse, error)
	requests   []domain.TransformRequest
}

func (m *mockRemote) Submit(ctx context.Context, req domain.TransformRequest) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.submitFunc != nil {
		return m.submitFunc(ctx, req)
	}
	return imageResponse("image/png", []byte("generated")), nil
}

func (m *mockRemote) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockValidatingRemote は Validator も実装するのだ。
type mockValidatingRemote struct {
	mockRemote
	validateErr error
}

func (m *mockValidatingRemote) Validate(ctx context.Context) error {
	return m.validateErr
}

// mockHandles は HandleStore のテスト用モックなのだ。
type mockHandles struct {
	mu       sync.Mutex
	next     int
	live     map[string][]byte
	released []string
}

func newMockHandles() *mockHandles {
	return &mockHandles{live: make(map[string][]byte)}
}

func (m *mockHandles) Acquire(data []byte, mediaType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := fmt.Sprintf("blob:%d", m.next)
	m.live[ref] = data
	return ref
}

func (m *mockHandles) ReleaseAll(refs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range refs {
		delete(m.live, r)
		m.released = append(m.released, r)
	}
}

func (m *mockHandles) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// mockLoader は読み込み結果を固定で返す Loader なのだ。
type mockLoader struct {
	data []byte
	err  error
}

func (m mockLoader) Load(ctx context.Context) ([]byte, error) {
	return m.data, m.err
}

// mockRecorder は記録された結果を保持するのだ。
type mockRecorder struct {
	mu      sync.Mutex
	images  []string
	batches []string
}

func (m *mockRecorder) ObserveImage(outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, outcome)
}

func (m *mockRecorder) ObserveBatch(outcome string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, outcome)
}

// --- Fixtures ---

// minimalPNG は PNG シグネチャを含む最小のバイナリなのだ。
var minimalPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90w\x53\xde")

var errNetwork = errors.New("connection reset")

func pngSource(name string) domain.SourceImage {
	return domain.SourceImage{Name: name, MediaType: "image/png", Loader: mockLoader{data: minimalPNG}}
}

func imageResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{
				Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}},
			},
		}},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func blockedResponse(reason genai.BlockedReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: reason},
	}
}

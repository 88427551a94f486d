package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/generator"
	"github.com/shouni/manga-stylizer/pkg/handles"
	"github.com/shouni/manga-stylizer/pkg/history"
)

var minimalPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90w\x53\xde")

// stubRemote は RemoteModel のスタブなのだ。
type stubRemote struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (s *stubRemote) Submit(ctx context.Context, req domain.TransformRequest) (*genai.GenerateContentResponse, error) {
	return s.resp, s.err
}

func imageResp() *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("generated")}},
			}},
		}},
	}
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	registry *handles.Registry
	history  *history.Log
}

func newFixture(t *testing.T, remote generator.RemoteModel) *fixture {
	t.Helper()
	registry := handles.NewRegistry()
	hist := history.New()
	orch, err := generator.NewOrchestrator(remote, registry, "test-model")
	require.NoError(t, err)
	srv, err := New(orch, registry, hist, Options{})
	require.NoError(t, err)
	return &fixture{srv: srv, handler: srv.Router(), registry: registry, history: hist}
}

func transformRequest(t *testing.T, fields map[string]string, files int) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i := 0; i < files; i++ {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="panel.png"`)
		h.Set("Content-Type", "image/png")
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write(minimalPNG)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// octetStreamRequest は CreateFormFile で本物の PNG を送ります。パートの Content-Type は
// application/octet-stream になるのだ。
func octetStreamRequest(t *testing.T) (*http.Request, []byte) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	pngBuf := new(bytes.Buffer)
	require.NoError(t, png.Encode(pngBuf, img))

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("images", "panel.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, pngBuf.Bytes()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

type transformBody struct {
	Results []resultView `json:"results"`
}

func TestNew(t *testing.T) {
	_, err := New(nil, handles.NewRegistry(), history.New(), Options{})
	assert.Error(t, err)
}

func TestServer_Transform(t *testing.T) {
	fields := map[string]string{"kind": "panel", "style": "Watercolor", "genre": "Shonen"}

	t.Run("成功: 結果が返り、履歴に追加されるのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 2))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode[transformBody](t, rec)
		require.Len(t, body.Results, 2)
		for _, r := range body.Results {
			assert.True(t, strings.HasPrefix(r.Generated, "data:image/png;base64,"))
			assert.True(t, strings.HasPrefix(r.OriginalURL, "/api/originals/"))
		}
		assert.Equal(t, 2, f.history.Len())
		assert.Equal(t, 2, f.registry.Len())

		// 元画像を取得できるのだ
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, body.Results[0].OriginalURL, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, minimalPNG, rec.Body.Bytes())
	})

	t.Run("octet-stream で送られた PNG も内容から判定されて変換されるのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		req, data := octetStreamRequest(t)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode[transformBody](t, rec)
		require.Len(t, body.Results, 1)

		o, err := f.registry.Open(body.Results[0].Original)
		require.NoError(t, err)
		assert.Equal(t, "image/png", o.MediaType)
		assert.Equal(t, data, o.Data)
	})

	t.Run("次のバッチで前の元画像ハンドルが解放されるのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 2))
		require.Equal(t, http.StatusOK, rec.Code)
		first := decode[transformBody](t, rec)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 1))
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, 1, f.registry.Len())
		_, err := f.registry.Open(first.Results[0].Original)
		assert.Error(t, err)
		assert.Equal(t, 3, f.history.Len())
	})

	t.Run("画像なしは400でオーケストレーターを呼ばないのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 0))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, f.history.Len())
	})

	t.Run("カタログ外の画風は400なのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, map[string]string{"style": "Oil Painting"}, 1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("URL 指定は Fetcher がなければ400なのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, map[string]string{"urls": "https://93.184.216.34/a.png"}, 0))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ブロックされたら422で種別が返り、前の結果と履歴は変わらないのだ", func(t *testing.T) {
		remote := &stubRemote{resp: imageResp()}
		f := newFixture(t, remote)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 1))
		require.Equal(t, http.StatusOK, rec.Code)

		remote.resp = &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 2))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		body := decode[errorView](t, rec)
		assert.Equal(t, "content_blocked", body.Kind)
		assert.Contains(t, body.Error, string(genai.BlockedReasonSafety))

		assert.Equal(t, 1, f.history.Len())
		assert.Equal(t, 1, f.registry.Len())
	})

	t.Run("テキスト応答は502で誤モダリティなのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "no image"}}}}},
		}})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, fields, 1))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "wrong_modality", decode[errorView](t, rec).Kind)
	})
}

func TestServer_Results(t *testing.T) {
	f := newFixture(t, &stubRemote{resp: imageResp()})
	fields := map[string]string{"kind": "photo"}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, transformRequest(t, fields, 2))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("結果を1件外すとハンドルも解放されるのだ", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/results/0", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 1, f.registry.Len())

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))
		assert.Len(t, decode[transformBody](t, rec).Results, 1)
	})

	t.Run("範囲外は404なのだ", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/results/5", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("履歴は新しい順で返るのだ", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		body := decode[map[string][]string](t, rec)
		assert.Len(t, body["entries"], 2)
	})
}

func TestServer_ReleaseOriginal(t *testing.T) {
	t.Run("登録だけのハンドルを解放できるのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})
		ref := f.registry.Acquire(minimalPNG, "image/png")
		path := "/api/originals/" + handles.ID(ref)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("表示中の結果の元画像を解放すると結果からも外れるのだ", func(t *testing.T) {
		f := newFixture(t, &stubRemote{resp: imageResp()})

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, transformRequest(t, map[string]string{"kind": "panel"}, 2))
		require.Equal(t, http.StatusOK, rec.Code)
		first := decode[transformBody](t, rec)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, first.Results[0].OriginalURL, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))
		remaining := decode[transformBody](t, rec).Results
		require.Len(t, remaining, 1)
		assert.Equal(t, first.Results[1].Original, remaining[0].Original)

		// 残った結果の original_url はまだ取得できるのだ
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, remaining[0].OriginalURL, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.registry.Len())
	})
}

func TestServer_Catalog(t *testing.T) {
	f := newFixture(t, &stubRemote{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string][]string](t, rec)
	assert.Equal(t, string(domain.Styles[0]), body["styles"][0])
	assert.Equal(t, string(domain.Genres[0]), body["genres"][0])
	assert.Equal(t, []string{"panel", "photo"}, body["kinds"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(generator.ErrMissingCredential))
	assert.Equal(t, http.StatusBadRequest, statusFor(generator.ErrEncoding))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(generator.ErrContentBlocked))
	assert.Equal(t, http.StatusBadGateway, statusFor(generator.ErrEmptyResponse))
}

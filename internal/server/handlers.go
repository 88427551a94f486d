package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shouni/manga-stylizer/pkg/domain"
	"github.com/shouni/manga-stylizer/pkg/generator"
	"github.com/shouni/manga-stylizer/pkg/handles"
	"github.com/shouni/manga-stylizer/pkg/imgutil"
	"github.com/shouni/manga-stylizer/pkg/source"
)

type resultView struct {
	Original    string `json:"original"`
	OriginalURL string `json:"original_url"`
	Generated   string `json:"generated"`
}

type errorView struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"kinds":       domain.UploadKinds,
		"styles":      domain.Styles,
		"genres":      domain.Genres,
		"media_types": imgutil.SupportedMediaTypes,
	})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "multipart フォームの解析に失敗しました: "+err.Error(), "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	kind, err := domain.ParseUploadKind(r.FormValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	style, err := domain.ParseStyle(r.FormValue("style"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	genre, err := domain.ParseGenre(r.FormValue("genre"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	var images []domain.SourceImage
	for _, fh := range r.MultipartForm.File["images"] {
		images = append(images, domain.SourceImage{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Loader:    source.NewMultipart(fh),
		})
	}
	urls := r.MultipartForm.Value["urls"]
	if len(urls) > 0 && s.fetcher == nil {
		writeError(w, http.StatusBadRequest, "URL 指定の画像は受け付けていません", "")
		return
	}
	for _, u := range urls {
		images = append(images, domain.SourceImage{Name: u, Loader: source.NewURL(s.fetcher, u)})
	}

	if len(images) == 0 {
		writeError(w, http.StatusBadRequest, "画像を1枚以上アップロードしてください", "")
		return
	}

	results, err := s.transformer.TransformBatch(r.Context(), images, kind, style, genre)
	if err != nil {
		errKind := generator.KindOf(err).String()
		slog.WarnContext(r.Context(), "変換に失敗しました", "error", err, "kind", errKind)
		writeError(w, statusFor(err), err.Error(), errKind)
		return
	}

	s.replaceResults(results)
	writeJSON(w, http.StatusOK, map[string]any{"results": toViews(results)})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := toViews(s.current)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": views})
}

// handleRemoveResult は表示中の結果を1件外し、その元画像ハンドルを解放します。
func (s *Server) handleRemoveResult(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "index が不正です", "")
		return
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.current) {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "結果が見つかりません", "")
		return
	}
	removed := s.current[index]
	next := make([]domain.TransformResult, 0, len(s.current)-1)
	next = append(next, s.current[:index]...)
	s.current = append(next, s.current[index+1:]...)
	s.mu.Unlock()

	s.handles.Release(removed.OriginalReference)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.history.Entries()})
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	o, err := s.handles.Open(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", o.MediaType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(o.Data)
}

// handleReleaseOriginal は元画像ハンドルを解放し、それを参照する表示中の結果も外します。
func (s *Server) handleReleaseOriginal(w http.ResponseWriter, r *http.Request) {
	id := handles.ID(mux.Vars(r)["id"])

	s.mu.Lock()
	kept := make([]domain.TransformResult, 0, len(s.current))
	for _, res := range s.current {
		if handles.ID(res.OriginalReference) != id {
			kept = append(kept, res)
		}
	}
	s.current = kept
	s.mu.Unlock()

	if !s.handles.Release(id) {
		writeError(w, http.StatusNotFound, "ハンドルが見つかりません", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor はエラー種別を HTTP ステータスに対応付けます。
func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrNoImages), errors.Is(err, generator.ErrEncoding):
		return http.StatusBadRequest
	case errors.Is(err, generator.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, generator.ErrContentBlocked):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func toViews(results []domain.TransformResult) []resultView {
	views := make([]resultView, len(results))
	for i, r := range results {
		views[i] = resultView{
			Original:    r.OriginalReference,
			OriginalURL: "/api/originals/" + handles.ID(r.OriginalReference),
			Generated:   r.GeneratedReference,
		}
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorView{Error: msg, Kind: kind})
}

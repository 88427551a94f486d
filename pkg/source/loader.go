package source

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// Path はローカルパスまたは gs:// などのオブジェクトパスから読み込む Loader です。
// 読み込みは remoteio.InputReader に任せます。
type Path struct {
	reader remoteio.InputReader
	path   string
}

// NewPath は InputReader を使う Path Loader を生成します。
func NewPath(reader remoteio.InputReader, path string) *Path {
	return &Path{reader: reader, path: path}
}

func (p *Path) Load(ctx context.Context) ([]byte, error) {
	if p.reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	rc, err := p.reader.Open(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ファイルが空です: %s", p.path)
	}
	return data, nil
}

func (p *Path) String() string { return p.path }

// URL はリモートの画像を取得する Loader です。
// SSRF 対策として、取得前に httpkit で宛先を検証します。
type URL struct {
	httpClient httpkit.ClientInterface
	rawURL     string
}

// NewURL は httpkit のクライアントを使う URL Loader を生成します。
func NewURL(httpClient httpkit.ClientInterface, rawURL string) *URL {
	return &URL{httpClient: httpClient, rawURL: rawURL}
}

func (u *URL) Load(ctx context.Context) ([]byte, error) {
	if u.httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	safe, err := u.httpClient.IsSafeURL(u.rawURL)
	if err != nil {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	if !safe {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %s", u.rawURL)
	}
	data, err := u.httpClient.FetchBytes(ctx, u.rawURL)
	if err != nil {
		return nil, fmt.Errorf("画像のダウンロードに失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ダウンロードした画像が空です: %s", u.rawURL)
	}
	return data, nil
}

func (u *URL) String() string { return u.rawURL }

// Multipart は multipart アップロードのファイルを Load 時に開く Loader です。
type Multipart struct {
	header *multipart.FileHeader
}

// NewMultipart は FileHeader から Loader を生成します。
func NewMultipart(header *multipart.FileHeader) *Multipart {
	return &Multipart{header: header}
}

func (m *Multipart) Load(ctx context.Context) ([]byte, error) {
	if m.header == nil {
		return nil, fmt.Errorf("アップロードファイルがありません")
	}
	f, err := m.header.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルを開けません: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("アップロードファイルが空です: %s", m.header.Filename)
	}
	return data, nil
}

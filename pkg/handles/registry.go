package handles

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scheme = "blob:"

// Original は登録された元画像のバイト列です。
type Original struct {
	Data      []byte
	MediaType string
}

// Registry は元画像を表示している間だけ保持するハンドル表です。
// Acquire したハンドルは画面から外れたとき、または次のバッチで置き換えられたときに
// Release する必要があります。
type Registry struct {
	mu    sync.RWMutex
	items map[string]Original
}

// NewRegistry は空の Registry を生成します。
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Original)}
}

// Acquire は元画像を登録し、blob:<uuid> 形式の参照を返します。
func (r *Registry) Acquire(data []byte, mediaType string) string {
	ref := scheme + uuid.NewString()
	r.mu.Lock()
	r.items[ref] = Original{Data: data, MediaType: mediaType}
	r.mu.Unlock()
	return ref
}

// Open は参照に対応する元画像を返します。
func (r *Registry) Open(ref string) (Original, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.items[normalize(ref)]
	if !ok {
		return Original{}, fmt.Errorf("ハンドルが見つかりません: %s", ref)
	}
	return o, nil
}

// Release はハンドルを解放します。解放済みの参照は何もしません。
// 実際に解放した場合は true を返します。
func (r *Registry) Release(ref string) bool {
	key := normalize(ref)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	return true
}

// ReleaseAll は複数のハンドルをまとめて解放します。
func (r *Registry) ReleaseAll(refs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range refs {
		delete(r.items, normalize(ref))
	}
}

// Len は保持中のハンドル数です。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// ID は参照から scheme を除いた識別子を返します（URL パス用）。
func ID(ref string) string {
	return strings.TrimPrefix(ref, scheme)
}

func normalize(ref string) string {
	if strings.HasPrefix(ref, scheme) {
		return ref
	}
	return scheme + ref
}

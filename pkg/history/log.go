package history

import "sync"

// Capacity は履歴に保持する生成画像の上限です。
const Capacity = 20

// Log は生成画像の参照を新しい順に保持する固定長の履歴です。
// 挿入時に切り詰めるため、長さは常に Capacity 以下です。
type Log struct {
	mu      sync.RWMutex
	entries []string
}

// New は空の履歴を生成します。
func New() *Log {
	return &Log{}
}

// Append はバッチの生成結果を先頭に追加します。バッチ内の順序は保たれ、
// 溢れた古いエントリは黙って捨てられます。
func (l *Log) Append(refs ...string) {
	if len(refs) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]string, 0, min(len(refs)+len(l.entries), Capacity))
	next = append(next, refs...)
	next = append(next, l.entries...)
	if len(next) > Capacity {
		next = next[:Capacity]
	}
	l.entries = next
}

// Entries は新しい順のコピーを返します。
func (l *Log) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len は現在のエントリ数です。
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

package explorer

import (
	"strings"
	"sync"
)

// History is the navigation history the router writes to. Fragment returns
// the current fragment including its leading '#', or "" for the bare path.
// Push appends a new entry; Push("") navigates to the bare path.
type History interface {
	Fragment() string
	Push(fragment string)
}

// MemoryHistory is an in-process History with back navigation.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
	index   int
}

// NewMemoryHistory starts a history at the given fragment.
func NewMemoryHistory(initial string) *MemoryHistory {
	return &MemoryHistory{entries: []string{normalizeFragment(initial)}}
}

func (h *MemoryHistory) Fragment() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Push drops any forward entries and appends fragment.
func (h *MemoryHistory) Push(fragment string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], normalizeFragment(fragment))
	h.index = len(h.entries) - 1
}

// Back moves one entry back. It reports false at the first entry.
func (h *MemoryHistory) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return h.entries[0], false
	}
	h.index--
	return h.entries[h.index], true
}

// Len returns the number of entries.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func normalizeFragment(f string) string {
	f = strings.TrimPrefix(f, "#")
	if f == "" {
		return ""
	}
	return "#" + f
}

package sources

import (
	"sync"

	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// refKey identifies one ref of one project at one commit
type refKey struct {
	projectID int64
	refName   string
	commitID  string
}

// RefMemo remembers the outcome of every ref looked at during one run.
// A nil or empty entry records a ref that yields no version. Create one per
// run; it is safe for concurrent use.
type RefMemo struct {
	mu      sync.Mutex
	entries map[refKey]registry.PackageEntry
}

// NewRefMemo creates an empty memo
func NewRefMemo() *RefMemo {
	return &RefMemo{entries: make(map[refKey]registry.PackageEntry)}
}

func (m *RefMemo) get(k refKey) (registry.PackageEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	return e, ok
}

func (m *RefMemo) put(k refKey, e registry.PackageEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = e
}

package store

import (
	"slices"
	"sync"

	"github.com/soyeahso/qbridge/internal/domain"
)

type cursorKey struct {
	user    string
	network domain.NetworkID
}

type bufferKey struct {
	user string
	id   domain.BufferID
}

// MemoryState is a State that lives only as long as the process. It is
// used when no database is configured.
type MemoryState struct {
	mu      sync.Mutex
	cursors map[cursorKey]domain.MsgID
	buffers map[bufferKey]domain.BufferInfo
}

// NewMemoryState creates an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		cursors: make(map[cursorKey]domain.MsgID),
		buffers: make(map[bufferKey]domain.BufferInfo),
	}
}

func (m *MemoryState) LastMessage(user string, network domain.NetworkID) (domain.MsgID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.cursors[cursorKey{user, network}]
	return id, ok, nil
}

func (m *MemoryState) SaveLastMessage(user string, network domain.NetworkID, id domain.MsgID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := cursorKey{user, network}
	if cur, ok := m.cursors[k]; !ok || id > cur {
		m.cursors[k] = id
	}
	return nil
}

func (m *MemoryState) SaveBuffer(user string, b domain.BufferInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := bufferKey{user, b.ID}
	if old, ok := m.buffers[k]; ok && old.NetworkID != b.NetworkID {
		return nil
	}
	m.buffers[k] = b
	return nil
}

func (m *MemoryState) Buffers(user string, network domain.NetworkID) ([]domain.BufferInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BufferInfo
	for k, b := range m.buffers {
		if k.user == user && b.NetworkID == network {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.BufferInfo) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

package translate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/domain"
)

// ErrRebind is returned when a buffer id is offered again for a different
// network.
var ErrRebind = errors.New("translate: buffer id already bound to another network")

// BufferTable maps buffer names to descriptors. It only grows: names are
// never removed and an id never moves to another network. Names compare
// under IRC case mapping. Not safe for concurrent use.
type BufferTable struct {
	byName map[string]domain.BufferInfo
	byID   map[domain.BufferID]domain.BufferInfo
}

func NewBufferTable() *BufferTable {
	return &BufferTable{
		byName: make(map[string]domain.BufferInfo),
		byID:   make(map[domain.BufferID]domain.BufferInfo),
	}
}

func foldName(name string) string { return girc.ToRFC1459(name) }

// Add records b. Re-adding a known id with a new name adds the new name
// and keeps the old one.
func (t *BufferTable) Add(b domain.BufferInfo) error {
	if prev, ok := t.byID[b.ID]; ok && prev.NetworkID != b.NetworkID {
		return fmt.Errorf("%w: buffer %d on network %s, offered for %s", ErrRebind, b.ID, prev.NetworkID, b.NetworkID)
	}
	t.byID[b.ID] = b
	if b.Name == "" {
		return nil
	}
	key := foldName(b.Name)
	if prev, ok := t.byName[key]; ok && prev.ID != b.ID {
		// First binding of a name wins.
		return nil
	}
	t.byName[key] = b
	return nil
}

// Lookup finds a buffer by name, ignoring case.
func (t *BufferTable) Lookup(name string) (domain.BufferInfo, bool) {
	b, ok := t.byName[foldName(name)]
	return b, ok
}

func (t *BufferTable) ByID(id domain.BufferID) (domain.BufferInfo, bool) {
	b, ok := t.byID[id]
	return b, ok
}

// Len is the number of distinct buffer ids.
func (t *BufferTable) Len() int { return len(t.byID) }

// All returns every known buffer ordered by id.
func (t *BufferTable) All() []domain.BufferInfo {
	out := make([]domain.BufferInfo, 0, len(t.byID))
	for _, b := range t.byID {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b domain.BufferInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

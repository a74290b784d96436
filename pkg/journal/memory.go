package journal

import (
	"context"
	"sync"

	"github.com/gregtusar/thstrader/pkg/models"
)

// MemoryJournal holds the most recent entries in memory.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
	nextID  int64
	max     int
}

func NewMemoryJournal(max int) *MemoryJournal {
	return &MemoryJournal{
		entries: make([]models.JournalEntry, 0),
		max:     max,
	}
}

func (m *MemoryJournal) Record(_ context.Context, entry models.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

func (m *MemoryJournal) List(_ context.Context, limit int) ([]models.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}

	out := make([]models.JournalEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

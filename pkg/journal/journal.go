// Package journal keeps a record of order submissions and cancels sent
// through the trading window.
package journal

import (
	"context"

	"github.com/gregtusar/thstrader/pkg/models"
)

type Journal interface {
	Record(ctx context.Context, entry models.JournalEntry) error
	// List returns the newest entries first, at most limit of them.
	List(ctx context.Context, limit int) ([]models.JournalEntry, error)
}

// Package store persists snapshots of fetched detection history so they can
// be reviewed without reaching the backend.
package store

import (
	"context"
	"time"

	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// Snapshot is one stored history fetch.
type Snapshot struct {
	ID        string                 `json:"id" yaml:"id"`
	FetchedAt time.Time              `json:"fetched_at" yaml:"fetched_at"`
	Records   []finder.HistoryRecord `json:"records" yaml:"records"`
}

// Store defines the persistence interface for history snapshots.
type Store interface {
	// SaveHistory stores records as a new snapshot, preserving their order.
	SaveHistory(ctx context.Context, records []finder.HistoryRecord) (*Snapshot, error)
	// LatestHistory returns the most recent snapshot, or nil when none exists.
	LatestHistory(ctx context.Context) (*Snapshot, error)
	// PruneSnapshots deletes all but the newest keep snapshots.
	PruneSnapshots(ctx context.Context, keep int) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

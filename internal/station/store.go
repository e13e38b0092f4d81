package station

import "context"

// Store persists the latest fleet status so it survives restarts.
type Store interface {
	// Save replaces the persisted snapshot with agg.
	Save(ctx context.Context, agg *Aggregate) error

	// Load returns the persisted snapshot, or ErrNoSnapshot if none exists.
	Load(ctx context.Context) (*Aggregate, error)
}

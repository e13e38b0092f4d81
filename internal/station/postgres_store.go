package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// snapshotRowID is the primary key of the single persisted snapshot row.
const snapshotRowID = 1

const (
	createSnapshotTableSQL = `
		CREATE TABLE IF NOT EXISTS station_snapshots (
			id           INTEGER PRIMARY KEY,
			last_checked TIMESTAMPTZ NOT NULL,
			payload      JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	upsertSnapshotSQL = `
		INSERT INTO station_snapshots (id, last_checked, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			last_checked = EXCLUDED.last_checked,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	selectSnapshotSQL = `
		SELECT payload
		FROM station_snapshots
		WHERE id = $1
	`
)

// PostgresStore is a PostgreSQL implementation of Store. It keeps a single
// row holding the latest snapshot.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL snapshot store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSnapshotTableSQL); err != nil {
		return fmt.Errorf("creating station_snapshots: %w", err)
	}
	return nil
}

// Save upserts the snapshot row.
func (s *PostgresStore) Save(ctx context.Context, agg *Aggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if _, err := s.pool.Exec(ctx, upsertSnapshotSQL, snapshotRowID, agg.LastChecked, payload); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot row.
func (s *PostgresStore) Load(ctx context.Context) (*Aggregate, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, selectSnapshotSQL, snapshotRowID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var agg Aggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &agg, nil
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)

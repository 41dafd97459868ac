package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS history_snapshots (
	id         TEXT PRIMARY KEY,
	fetched_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS history_records (
	snapshot_id TEXT NOT NULL REFERENCES history_snapshots(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	record_id   INTEGER NOT NULL,
	timestamp   TEXT NOT NULL,
	class_name  TEXT NOT NULL,
	confidence  REAL NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (snapshot_id, position)
);

CREATE INDEX IF NOT EXISTS idx_history_snapshots_fetched_at ON history_snapshots(fetched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveHistory(ctx context.Context, records []finder.HistoryRecord) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		FetchedAt: time.Now().UTC(),
		Records:   append([]finder.HistoryRecord{}, records...),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save history")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history_snapshots (id, fetched_at) VALUES (?, ?)`,
		snap.ID, snap.FetchedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history_records
		 (snapshot_id, position, record_id, timestamp, class_name, confidence, location, source, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			snap.ID, i, r.ID, r.Timestamp, r.ClassName, r.Confidence, r.Location, r.Source, r.ImageURL,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert record %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save history")
	}
	return snap, nil
}

func (s *SQLiteStore) LatestHistory(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fetched_at FROM history_snapshots ORDER BY fetched_at DESC, rowid DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest snapshot")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, timestamp, class_name, confidence, location, source, image_url
		 FROM history_records WHERE snapshot_id = ? ORDER BY position`,
		snap.ID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshot records")
	}
	defer rows.Close() //nolint:errcheck

	snap.Records = []finder.HistoryRecord{}
	for rows.Next() {
		var r finder.HistoryRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ClassName, &r.Confidence, &r.Location, &r.Source, &r.ImageURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshot records iterate")
	}
	return &snap, nil
}

func (s *SQLiteStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history_snapshots WHERE id NOT IN (
			SELECT id FROM history_snapshots ORDER BY fetched_at DESC, rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune snapshots")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune rows affected")
	}
	return int(n), nil
}

package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS backups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backups_user ON backups(user_id, updated_at);
`

// timeLayout is fixed width so TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB is the SQLite implementation of Store.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("remote: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) stamp() string {
	return db.now().UTC().Format(timeLayout)
}

func (db *DB) Latest(ctx context.Context, userID string) (*Snapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, data, created_at, updated_at FROM backups
		 WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1`, userID)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote: latest: %w", err)
	}
	return s, nil
}

func (db *DB) ByDate(ctx context.Context, userID, date string) ([]Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, data, created_at, updated_at FROM backups
		 WHERE user_id = ? AND json_extract(data, '$.backup_date') = ?
		 ORDER BY id DESC`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("remote: by date: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("remote: by date: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (db *DB) Insert(ctx context.Context, userID string, data Payload) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("remote: encode payload: %w", err)
	}
	ts := db.stamp()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO backups (user_id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, string(raw), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("remote: insert: %w", err)
	}
	return res.LastInsertId()
}

func (db *DB) Update(ctx context.Context, id int64, data Payload) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("remote: encode payload: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE backups SET data = ?, updated_at = ? WHERE id = ?`,
		string(raw), db.stamp(), id)
	if err != nil {
		return fmt.Errorf("remote: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remote: update: row %d not found", id)
	}
	return nil
}

func (db *DB) IDsByUser(ctx context.Context, userID string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM backups WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("remote: ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM backups WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("remote: delete: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var (
		s                Snapshot
		data             string
		created, updated string
	)
	if err := sc.Scan(&s.ID, &s.UserID, &data, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return nil, fmt.Errorf("decode payload %d: %w", s.ID, err)
	}
	s.CreatedAt, _ = time.Parse(timeLayout, created)
	s.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &s, nil
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

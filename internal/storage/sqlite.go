//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"telekinesis/internal/pattern"
	logx "telekinesis/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r Run) error {
	acts, err := json.Marshal(r.Actuators)
	if err != nil {
		return err
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(instance, handle, action, origin, actuators, started, took_ms, reason, failures)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.Instance, int64(r.Handle), r.Action, nullStr(r.Origin), string(acts),
		r.Started.UTC().Format(time.RFC3339Nano), r.TookMS, r.Reason, r.Failures,
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance, handle, action, origin, actuators, started, took_ms, reason, failures
		 FROM (SELECT * FROM runs ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			handle  int64
			origin  sql.NullString
			acts    string
			started string
		)
		if err := rows.Scan(&r.Instance, &handle, &r.Action, &origin, &acts, &started, &r.TookMS, &r.Reason, &r.Failures); err != nil {
			return nil, err
		}
		r.Handle = uint64(handle)
		r.Origin = origin.String
		_ = json.Unmarshal([]byte(acts), &r.Actuators)
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutPattern(ctx context.Context, name string, kind pattern.Kind, pts []pattern.Point) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("pattern name is required")
	}
	if len(pts) == 0 {
		return fmt.Errorf("pattern %q: %w", name, pattern.ErrEmpty)
	}
	b, err := json.Marshal(toStored(pts))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patterns(name, kind, points, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(name, kind) DO UPDATE SET points=excluded.points, updated_at=excluded.updated_at`,
		name, int(kind), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Load(ctx context.Context, name string) ([]pattern.Point, error) {
	var raw string
	// Vibration patterns win over stroker patterns of the same name.
	err := s.db.QueryRowContext(ctx,
		`SELECT points FROM patterns WHERE name = ? ORDER BY kind ASC LIMIT 1`,
		strings.TrimSpace(name),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", pattern.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var sp []storedPoint
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", name, err)
	}
	return fromStored(sp), nil
}

func (s *sqliteStore) Names(ctx context.Context, kind pattern.Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM patterns WHERE kind = ? ORDER BY name`, int(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

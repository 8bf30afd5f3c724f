package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "woonbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const prefsKey = "prefs"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the bot never needs more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}
	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecordApplication(ctx context.Context, a Application) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications(run_id, listing_id, address, price, at, ok, dry_run, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		a.RunID, a.ListingID, nullStr(a.Address), a.Price, a.At.UnixMilli(),
		boolInt(a.OK), boolInt(a.DryRun), nullStr(a.Error),
	)
	return err
}

func (s *sqliteStore) HasApplied(ctx context.Context, listingID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM applications WHERE listing_id = ? AND ok = 1 AND dry_run = 0`,
		listingID,
	).Scan(&n)
	return n > 0, err
}

func (s *sqliteStore) RecentApplications(ctx context.Context, limit int) ([]Application, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, listing_id, COALESCE(address,''), COALESCE(price,0), at, ok, dry_run, COALESCE(err,'')
		 FROM applications ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var (
			a          Application
			at         int64
			ok, dryRun int
		)
		if err := rows.Scan(&a.RunID, &a.ListingID, &a.Address, &a.Price, &at, &ok, &dryRun, &a.Error); err != nil {
			return nil, err
		}
		a.At = time.UnixMilli(at)
		a.OK = ok == 1
		a.DryRun = dryRun == 1
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r Run) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, mode, started_at, finished_at, attempted, succeeded, err)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET finished_at=excluded.finished_at,
		   attempted=excluded.attempted, succeeded=excluded.succeeded, err=excluded.err`,
		r.ID, r.Mode, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Attempted, r.Succeeded, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) SavePrefs(ctx context.Context, p Prefs) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prefs(k, v) VALUES(?,?) ON CONFLICT(k) DO UPDATE SET v=excluded.v`,
		prefsKey, string(b))
	return err
}

func (s *sqliteStore) LoadPrefs(ctx context.Context) (Prefs, error) {
	if s == nil || s.db == nil {
		return Prefs{}, ErrDisabled
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM prefs WHERE k = ?`, prefsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Prefs{}, nil
	}
	if err != nil {
		return Prefs{}, err
	}
	var p Prefs
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Prefs{}, fmt.Errorf("decode prefs: %w", err)
	}
	return p, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

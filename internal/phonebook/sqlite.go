package phonebook

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "rksokd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("phonebook: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
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

func (s *sqliteStore) Get(ctx context.Context, name string) ([]string, error) {
	n, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	var joined string
	err = s.db.QueryRowContext(ctx, `SELECT phones FROM phonebook WHERE name = ?`, n).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return splitPhones(joined), nil
}

func (s *sqliteStore) Put(ctx context.Context, name string, phones []string) error {
	n, err := sanitizeName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO phonebook(name, phones, updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET phones=excluded.phones, updated_at=excluded.updated_at`,
		n, strings.Join(phones, "\n"), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	s.log.Debug("phonebook record written", logx.String("name", n), logx.Int("phones", len(phones)))
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, name string) error {
	n, err := sanitizeName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM phonebook WHERE name = ?`, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.log.Debug("phonebook record removed", logx.String("name", n))
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, phones FROM phonebook ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var name, joined string
		if err := rows.Scan(&name, &joined); err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: name, Phones: splitPhones(joined)})
	}
	return out, rows.Err()
}

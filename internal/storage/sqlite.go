package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/Vampouille/georchestra/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
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

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutToken(ctx context.Context, t UserToken) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(t.UID) == "" {
		return errors.New("uid required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_token(uid, token, created_at) VALUES(?,?,?)
		 ON CONFLICT(uid) DO UPDATE SET token=excluded.token, created_at=excluded.created_at`,
		t.UID, t.Token, t.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) FindByToken(ctx context.Context, token string) (UserToken, error) {
	return s.findOne(ctx, `SELECT uid, token, created_at FROM user_token WHERE token = ?`, token)
}

func (s *sqliteStore) FindByUID(ctx context.Context, uid string) (UserToken, error) {
	return s.findOne(ctx, `SELECT uid, token, created_at FROM user_token WHERE uid = ?`, uid)
}

func (s *sqliteStore) findOne(ctx context.Context, query, arg string) (UserToken, error) {
	if s == nil || s.db == nil {
		return UserToken{}, ErrDisabled
	}
	var t UserToken
	var ms int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&t.UID, &t.Token, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return UserToken{}, ErrNotFound
	}
	if err != nil {
		return UserToken{}, err
	}
	t.CreatedAt = time.UnixMilli(ms)
	return t, nil
}

func (s *sqliteStore) FindCreatedBefore(ctx context.Context, before time.Time) ([]UserToken, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, token, created_at FROM user_token WHERE created_at < ? ORDER BY created_at, uid`,
		before.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserToken
	for rows.Next() {
		var t UserToken
		var ms int64
		if err := rows.Scan(&t.UID, &t.Token, &ms); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(ms)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteToken(ctx context.Context, uid string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_token WHERE uid = ?`, uid)
	return err
}

package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore keeps the identity on disk so it survives restarts. Used by
// the mobile variant.
type SQLiteStore struct {
	conn *sql.DB
	log  *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}

	if err := migrate(conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run session migrations: %w", err)
	}

	return &SQLiteStore{conn: conn, log: log}, nil
}

func migrate(db *sql.DB, log *slog.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return err
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to verify migration version: %w", err)
	}
	log.Debug("session database migrated", "version", version)
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (models.User, bool, error) {
	var (
		u       models.User
		expires int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, username, token, expires_at FROM session WHERE id = 1`,
	).Scan(&u.ID, &u.Username, &u.Token, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("load session: %w", err)
	}
	if expires > 0 {
		u.ExpiresAt = time.Unix(expires, 0)
	}
	return u, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, user models.User) error {
	var expires int64
	if !user.ExpiresAt.IsZero() {
		expires = user.ExpiresAt.Unix()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO session (id, user_id, username, token, expires_at, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			token = excluded.token,
			expires_at = excluded.expires_at,
			saved_at = excluded.saved_at`,
		user.ID, user.Username, user.Token, expires, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.log.Debug("session saved", "user", user.ID)
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Debug("session cleared")
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

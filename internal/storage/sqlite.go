package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/vereinsportal/portal/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

var ErrDuplicateUser = errors.New("user already exists")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen)`,
		// Single CalDAV connection record (id is always 1)
		`CREATE TABLE IF NOT EXISTS calendar_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			base_url TEXT NOT NULL,
			calendar_path TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`ALTER TABLE calendar_settings ADD COLUMN display_name TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Calendar settings ===

// GetCalendarSettings returns the active settings record, if any
func (s *Storage) GetCalendarSettings() (mo.Option[domain.CalendarSettings], error) {
	var cs domain.CalendarSettings
	err := s.db.QueryRow(
		`SELECT base_url, calendar_path, username, password, display_name, updated_at
		 FROM calendar_settings WHERE id = 1`,
	).Scan(&cs.BaseURL, &cs.CalendarPath, &cs.Username, &cs.Password, &cs.DisplayName, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return mo.None[domain.CalendarSettings](), nil
	}
	if err != nil {
		return mo.None[domain.CalendarSettings](), fmt.Errorf("get calendar settings: %w", err)
	}
	return mo.Some(cs), nil
}

// SaveCalendarSettings creates or replaces the settings record.
// The password must already be sealed.
func (s *Storage) SaveCalendarSettings(cs *domain.CalendarSettings) error {
	cs.Normalize()
	cs.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO calendar_settings (id, base_url, calendar_path, username, password, display_name, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			base_url = excluded.base_url,
			calendar_path = excluded.calendar_path,
			username = excluded.username,
			password = excluded.password,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		cs.BaseURL, cs.CalendarPath, cs.Username, cs.Password, cs.DisplayName, cs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save calendar settings: %w", err)
	}
	return nil
}

// DeleteCalendarSettings removes the record; the calendar becomes unconfigured
func (s *Storage) DeleteCalendarSettings() error {
	_, err := s.db.Exec(`DELETE FROM calendar_settings WHERE id = 1`)
	return err
}

// === Users ===

func (s *Storage) CreateUser(u *domain.User) error {
	res, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.Role,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUser
		}
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetUserByUsername(username string) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Storage) GetUserByID(id int64) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users
func (s *Storage) ListUsers() ([]*domain.User, error) {
	rows, err := s.db.Query(`SELECT id, username, password_hash, role, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Storage) UpdateUserRole(id int64, role domain.UserRole) error {
	_, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id)
	return err
}

func (s *Storage) DeleteUser(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

// === Sessions ===

func (s *Storage) CreateSession(sess *domain.Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.LastSeen = now
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, created_at, last_seen) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.LastSeen,
	)
	return err
}

func (s *Storage) GetSession(id string) (*domain.Session, error) {
	sess := &domain.Session{}
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, last_seen FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

func (s *Storage) TouchSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_seen = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *Storage) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteSessionsIdleSince removes sessions not seen since the given time and
// returns their ids
func (s *Storage) DeleteSessionsIdleSince(since time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE last_seen < ?`, since.UTC())
	if err != nil {
		return nil, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE last_seen < ?`, since.UTC()); err != nil {
		return nil, err
	}
	return ids, nil
}

// Package settings persists plugin configuration in a local sqlite database:
// the global sync toggles and the per-application outbound policy map.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"notification-sync/internal/logging"
)

// Well-known settings keys. The names are shared with other plugin
// implementations and must not change.
const (
	KeyReceiveNotifications = "receive-notifications"
	KeySendNotifications    = "send-notifications"
	KeySendIcons            = "send-icons"
	KeySendApplications     = "send-applications"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

// AppPolicy is the outbound policy for one application. Once an application
// has been seen it keeps its row; only Enabled changes behavior.
type AppPolicy struct {
	IconName string `json:"iconName"`
	Enabled  bool   `json:"enabled"`
}

// Store is a string-keyed settings store backed by sqlite.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger

	appMu sync.Mutex // serializes read-modify-write of the policy map across all writers
}

// Open opens (creating if needed) the settings database at path.
func Open(path string, logger *logging.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	// sqlite takes a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warnf("Close settings db failed: %v", err)
	}
}

func (s *Store) get(key string) (string, bool) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Errorf("Read setting %s failed: %v", key, err)
		return "", false
	}
	return value, true
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// Bool returns the boolean stored under key, or def when absent or garbled.
func (s *Store) Bool(key string, def bool) bool {
	raw, ok := s.get(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warnf("Setting %s holds %q, using default %v", key, raw, def)
		return def
	}
	return v
}

// SetBool stores a boolean under key.
func (s *Store) SetBool(key string, v bool) error {
	return s.set(key, strconv.FormatBool(v))
}

// Applications returns the per-application policy map. A missing or garbled
// row reads as an empty map; entries are resynthesized on next use.
func (s *Store) Applications() map[string]AppPolicy {
	s.appMu.Lock()
	defer s.appMu.Unlock()
	return s.applications()
}

// SaveApplications persists the per-application policy map wholesale.
// Callers that start from the stored map must use UpdateApplications
// instead, or a concurrent writer's change is lost.
func (s *Store) SaveApplications(apps map[string]AppPolicy) error {
	s.appMu.Lock()
	defer s.appMu.Unlock()
	return s.saveApplications(apps)
}

// UpdateApplications applies fn to the current policy map and persists the
// result, as one atomic step. The map is only written back when fn reports
// a change.
func (s *Store) UpdateApplications(fn func(apps map[string]AppPolicy) bool) error {
	s.appMu.Lock()
	defer s.appMu.Unlock()
	apps := s.applications()
	if !fn(apps) {
		return nil
	}
	return s.saveApplications(apps)
}

func (s *Store) applications() map[string]AppPolicy {
	apps := make(map[string]AppPolicy)
	raw, ok := s.get(KeySendApplications)
	if !ok {
		return apps
	}
	if err := json.Unmarshal([]byte(raw), &apps); err != nil {
		s.logger.Warnf("Per-app policy map is garbled, starting empty: %v", err)
		return make(map[string]AppPolicy)
	}
	return apps
}

func (s *Store) saveApplications(apps map[string]AppPolicy) error {
	raw, err := json.Marshal(apps)
	if err != nil {
		return fmt.Errorf("marshal per-app policy map: %w", err)
	}
	return s.set(KeySendApplications, string(raw))
}

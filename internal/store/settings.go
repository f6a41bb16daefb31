package store

import (
	"database/sql"
	"time"
)

// SettingsStore is the persisted key-value state of the dashboard.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	GetTime(key string) (time.Time, bool)
	SetTime(key string, value time.Time) error
}

// SQLiteSettingsStore implements SettingsStore using SQLite
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a new settings store
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	store := &SQLiteSettingsStore{db: db}

	if err := store.createTable(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteSettingsStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// Get retrieves a setting value
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set upserts a setting value
func (s *SQLiteSettingsStore) Set(key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, key, value, time.Now().UTC())
	return err
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *SQLiteSettingsStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetTime retrieves an RFC 3339 timestamp setting
func (s *SQLiteSettingsStore) GetTime(key string) (time.Time, bool) {
	return parseTime(s.Get(key))
}

// SetTime stores a timestamp setting
func (s *SQLiteSettingsStore) SetTime(key string, value time.Time) error {
	return s.Set(key, value.UTC().Format(time.RFC3339Nano))
}

func parseTime(value string, ok bool) (time.Time, bool) {
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Persisted keys. The names match what the browser dashboard kept in local
// storage so exported settings stay interchangeable.
const (
	SettingYouTubeAPIKey      = "ytApiKey"
	SettingYouTubeChannelID   = "ytChannelId"
	SettingTikTokAccessToken  = "ttAccessToken"
	SettingTikTokOpenID       = "ttOpenId"
	SettingTikTokRefreshToken = "ttRefreshToken"
	SettingTikTokState        = "tiktokState"
	SettingTikTokStateCreated = "tiktokStateCreatedAt"
	SettingTikTokPendingCode  = "tiktokPendingCode"
)

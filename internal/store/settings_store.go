package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

// SettingsStore is a durable string-keyed map used for process-wide state
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value stored under key and whether it exists
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// GetAll returns every stored setting
func (s *SettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// SetMany writes all values in one transaction
func (s *SettingsStore) SetMany(ctx context.Context, values map[string]string) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		for key, value := range values {
			if err := setTx(ctx, tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// CompareAndSet writes values only if the current value of key is one of
// expected. A missing key compares as the empty string. It reports whether
// the write happened.
func (s *SettingsStore) CompareAndSet(ctx context.Context, key string, expected []string, values map[string]string) (bool, error) {
	swapped := false
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM settings WHERE key = $1 FOR UPDATE`, key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if !slices.Contains(expected, current) {
			return nil
		}

		for k, v := range values {
			if err := setTx(ctx, tx, k, v); err != nil {
				return err
			}
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-set %s: %w", key, err)
	}
	return swapped, nil
}

func setTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, time.Now())
	return err
}

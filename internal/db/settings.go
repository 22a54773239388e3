package db

import (
	"database/sql"
	"errors"
	"log"
)

// GetSetting returns the stored value for a key, or "" if unset.
func GetSetting(key string) (string, error) {
	var value string
	err := DB.Get(&value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		log.Printf("Error reading setting %q: %v", key, err)
		return "", err
	}
	return value, nil
}

// SetSetting stores a key/value pair, replacing any existing value.
func SetSetting(key, value string) error {
	_, err := DB.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		log.Printf("Error writing setting %q: %v", key, err)
	}
	return err
}

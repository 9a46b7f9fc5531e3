// Package clientdata provides persistent caching for external API client responses.
// All data is stored as JSON blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AllSources lists all cache sources in cache.db for cleanup operations.
var AllSources = []string{
	"exchangerate",
}

// validSources is a set for O(1) source name validation.
var validSources = func() map[string]bool {
	m := make(map[string]bool, len(AllSources))
	for _, s := range AllSources {
		m[s] = true
	}
	return m
}()

// Repository provides cache operations for client data.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// validateSource ensures the source name is in our allowed list.
func validateSource(source string) error {
	if !validSources[source] {
		return fmt.Errorf("invalid cache source: %s", source)
	}
	return nil
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(source, key string, data interface{}, ttl time.Duration) error {
	if err := validateSource(source); err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO client_cache (source, key, data, expires_at) VALUES (?, ?, ?, ?)",
		source, key, string(jsonData), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store data for %s: %w", source, err)
	}

	return nil
}

// GetIfFresh returns data only if expires_at > now, nil otherwise.
// Returns nil, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when API calls fail.
func (r *Repository) GetIfFresh(source, key string) (json.RawMessage, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}

	now := time.Now().Unix()

	var data string
	err := r.db.QueryRow(
		"SELECT data FROM client_cache WHERE source = ? AND key = ? AND expires_at > ?",
		source, key, now,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data for %s: %w", source, err)
	}

	return json.RawMessage(data), nil
}

// Get returns data regardless of expiration status.
// Use this as a fallback when API calls fail - stale data is better than no data.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(source, key string) (json.RawMessage, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}

	var data string
	err := r.db.QueryRow(
		"SELECT data FROM client_cache WHERE source = ? AND key = ?",
		source, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data for %s: %w", source, err)
	}

	return json.RawMessage(data), nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(source, key string) error {
	if err := validateSource(source); err != nil {
		return err
	}

	_, err := r.db.Exec("DELETE FROM client_cache WHERE source = ? AND key = ?", source, key)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", source, err)
	}

	return nil
}

// DeleteExpired removes all rows for a source where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(source string) (int64, error) {
	if err := validateSource(source); err != nil {
		return 0, err
	}

	now := time.Now().Unix()

	result, err := r.db.Exec("DELETE FROM client_cache WHERE source = ? AND expires_at < ?", source, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", source, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", source, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all sources.
// Returns a map of source name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)

	for _, source := range AllSources {
		deleted, err := r.DeleteExpired(source)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired from %s: %w", source, err)
		}
		results[source] = deleted
	}

	return results, nil
}

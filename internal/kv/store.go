// Package kv provides key-value storage backends for the reader.
//
// The feed collection, cache snapshots, settings and push subscriptions are
// all stored as JSON strings under well-known keys, so backends only need to
// implement a flat string-to-string map.
package kv

// Store defines the interface for key-value storage.
// The SQLite, PostgreSQL and in-memory implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the storage backend.
	DatabaseType() string

	// Get returns the value for key. The second return is false when the
	// key is absent.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// List returns every key with the given prefix and its value.
	List(prefix string) (map[string]string, error)
}

package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// compressionThreshold is the payload size at which zstd kicks in.
// Smaller payloads are stored raw; compressing them costs more than it saves.
const compressionThreshold = 1 << 10

const diskSchema = `
CREATE TABLE IF NOT EXISTS analysis_cache (
	cache_key TEXT PRIMARY KEY,
	artifact_kind TEXT NOT NULL,
	payload BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires ON analysis_cache(expires_at);
`

// DiskCache is the sqlite tier. Timestamps are stored as RFC3339 UTC text
// so expiry comparisons work as plain string comparisons.
type DiskCache struct {
	conn     *sql.DB
	path     string
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// OpenDisk opens or creates the cache database at path, creating parent
// directories as needed.
func OpenDisk(path string, compress bool) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(diskSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	d := &DiskCache{
		conn:     conn,
		path:     path,
		compress: compress,
	}
	if compress {
		d.encoder, err = zstd.NewWriter(nil)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// The decoder is needed regardless of the compression setting: rows
	// written by an earlier run may be compressed.
	d.decoder, err = zstd.NewReader(nil)
	if err != nil {
		if d.encoder != nil {
			d.encoder.Close()
		}
		conn.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return d, nil
}

// Path returns the database file path.
func (d *DiskCache) Path() string {
	return d.path
}

// Get retrieves a payload and its expiry. An expired row is deleted and
// reported as a miss.
func (d *DiskCache) Get(key string) ([]byte, time.Time, bool, error) {
	var payload []byte
	var compressed int
	var expiresAt string

	err := d.conn.QueryRow(`
		SELECT payload, compressed, expires_at
		FROM analysis_cache
		WHERE cache_key = ?
	`, key).Scan(&payload, &compressed, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	expiresAtTime, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("invalid expires_at format: %w", err)
	}
	if time.Now().After(expiresAtTime) {
		// Entry is expired, delete it
		d.conn.Exec("DELETE FROM analysis_cache WHERE cache_key = ?", key)
		return nil, time.Time{}, false, nil
	}

	if compressed == 1 {
		plain, err := d.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, time.Time{}, false, fmt.Errorf("failed to decompress cache payload: %w", err)
		}
		payload = plain
	}
	return payload, expiresAtTime, true, nil
}

// Set stores a payload under key, replacing any previous row.
func (d *DiskCache) Set(key, kind string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	stored := payload
	compressed := 0
	if d.compress && len(payload) >= compressionThreshold {
		stored = d.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
		compressed = 1
	}

	_, err := d.conn.Exec(`
		INSERT OR REPLACE INTO analysis_cache (cache_key, artifact_kind, payload, compressed, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, kind, stored, compressed, now.Format(time.RFC3339), expiresAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Invalidate removes a single row.
func (d *DiskCache) Invalidate(key string) error {
	if _, err := d.conn.Exec("DELETE FROM analysis_cache WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// Clear removes all rows.
func (d *DiskCache) Clear() error {
	if _, err := d.conn.Exec("DELETE FROM analysis_cache"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (d *DiskCache) Prune() (int64, error) {
	result, err := d.conn.Exec(
		"DELETE FROM analysis_cache WHERE expires_at < ?",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns the row count and total stored payload bytes (compressed
// size for compressed rows).
func (d *DiskCache) Stats() (int, int64, error) {
	var entries int
	var bytes int64

	err := d.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0)
		FROM analysis_cache
	`).Scan(&entries, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return entries, bytes, nil
}

// Close releases the zstd codecs and the database connection.
func (d *DiskCache) Close() error {
	if d.encoder != nil {
		d.encoder.Close()
	}
	if d.decoder != nil {
		d.decoder.Close()
	}
	return d.conn.Close()
}

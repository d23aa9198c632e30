package clientdata

import "database/sql"

// CacheSchema holds one table per upstream client. Blobs are msgpack, not
// JSON: price maps are written every poll cycle and msgpack keeps the
// encode/decode cost and on-disk size down.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS current_prices (
    symbol TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exchangerate (
    pair TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// InitSchema ensures the cache tables exist in cache.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(CacheSchema)
	return err
}

// Package ledger persists the immutable transaction log in ledger.db.
// Positions are never stored; they are replayed from this table.
package ledger

import "database/sql"

// TransactionsSchema holds the ledger table. Decimal columns are stored as
// TEXT so values round-trip exactly; REAL would silently corrupt IDR
// amounts, which routinely exceed float53 precision.
const TransactionsSchema = `
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY,
    transaction_id TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    asset_class TEXT NOT NULL,
    symbol TEXT NOT NULL,
    market TEXT,
    quantity TEXT NOT NULL,
    price TEXT NOT NULL,
    value_native TEXT,
    value_counter TEXT,
    entry_price TEXT,
    source TEXT,
    timestamp TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(asset_class, symbol);
`

// InitSchema ensures the transactions table exists in ledger.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(TransactionsSchema)
	return err
}

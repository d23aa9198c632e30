package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/database"
	"github.com/rezapram/arta/internal/domain"
)

// Repository handles database operations for the transaction ledger.
// Database: ledger.db (transactions table)
//
// The table is append-only: corrections are recorded as later transactions,
// rows are never updated. INSERT OR IGNORE on transaction_id makes retried
// writes idempotent.
type Repository struct {
	db  *database.DB // ledger.db
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "ledger_repository").Logger(),
	}
}

// Append writes one transaction. Returns true when the row was inserted,
// false when a row with the same transaction_id already existed.
func (r *Repository) Append(tx domain.Transaction) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO transactions
			(transaction_id, type, asset_class, symbol, market, quantity, price,
			 value_native, value_counter, entry_price, source, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		string(tx.Type),
		string(tx.AssetClass),
		domain.NormalizeSymbol(tx.Symbol),
		string(tx.Market),
		tx.Quantity.String(),
		tx.Price.String(),
		nullDecimal(tx.ValueNative),
		nullDecimal(tx.ValueCounter),
		nullDecimal(tx.EntryPrice),
		string(tx.Source),
		tx.Timestamp.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append transaction %s: %w", tx.ID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		r.log.Debug().Str("transaction_id", tx.ID).Msg("Transaction already in ledger, skipping")
		return false, nil
	}

	r.log.Debug().
		Str("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("symbol", tx.Symbol).
		Msg("Appended transaction to ledger")
	return true, nil
}

// AppendBatch writes a batch atomically. Either every new row lands or none
// does; rows already present are ignored, not errors.
func (r *Repository) AppendBatch(transactions []domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	err := database.WithTransaction(r.db.Conn(), func(sqlTx *sql.Tx) error {
		stmt, err := sqlTx.Prepare(`
			INSERT OR IGNORE INTO transactions
				(transaction_id, type, asset_class, symbol, market, quantity, price,
				 value_native, value_counter, entry_price, source, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, tx := range transactions {
			if _, err := stmt.Exec(
				tx.ID,
				string(tx.Type),
				string(tx.AssetClass),
				domain.NormalizeSymbol(tx.Symbol),
				string(tx.Market),
				tx.Quantity.String(),
				tx.Price.String(),
				nullDecimal(tx.ValueNative),
				nullDecimal(tx.ValueCounter),
				nullDecimal(tx.EntryPrice),
				string(tx.Source),
				tx.Timestamp.UTC().Format(time.RFC3339Nano),
				now,
			); err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Int("count", len(transactions)).Msg("Appended transaction batch to ledger")
	return nil
}

// LoadAll retrieves the full ledger ordered by timestamp, oldest first.
func (r *Repository) LoadAll() ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT transaction_id, type, asset_class, symbol, market, quantity, price,
		       value_native, value_counter, entry_price, source, timestamp
		FROM transactions
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	r.log.Debug().Int("count", len(transactions)).Msg("Loaded transaction ledger")
	return transactions, nil
}

// LoadBySymbol retrieves one asset's transactions ordered by timestamp.
func (r *Repository) LoadBySymbol(class domain.AssetClass, symbol string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT transaction_id, type, asset_class, symbol, market, quantity, price,
		       value_native, value_counter, entry_price, source, timestamp
		FROM transactions
		WHERE asset_class = ? AND symbol = ?
		ORDER BY timestamp ASC, id ASC
	`, string(class), domain.NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %s: %w", symbol, err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// Count returns the number of ledger rows.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// DeleteAll wipes the ledger. Only the reset endpoint calls this.
func (r *Repository) DeleteAll() (int, error) {
	result, err := r.db.Exec(`DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Warn().Int64("rows_deleted", rowsAffected).Msg("Deleted entire transaction ledger")
	return int(rowsAffected), nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var (
		tx                                    domain.Transaction
		txType, assetClass, symbol            string
		market, source                        sql.NullString
		quantity, price, timestamp            string
		valueNative, valueCounter, entryPrice sql.NullString
	)

	if err := rows.Scan(&tx.ID, &txType, &assetClass, &symbol, &market, &quantity, &price,
		&valueNative, &valueCounter, &entryPrice, &source, &timestamp); err != nil {
		return tx, fmt.Errorf("failed to scan transaction row: %w", err)
	}

	tx.Type = domain.TransactionType(txType)
	tx.AssetClass = domain.AssetClass(assetClass)
	tx.Symbol = symbol
	if market.Valid {
		tx.Market = domain.Market(market.String)
	}
	if source.Valid {
		tx.Source = domain.DeleteSource(source.String)
	}

	var err error
	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return tx, fmt.Errorf("transaction %s: bad quantity %q: %w", tx.ID, quantity, err)
	}
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return tx, fmt.Errorf("transaction %s: bad price %q: %w", tx.ID, price, err)
	}
	if tx.ValueNative, err = parseNullDecimal(valueNative); err != nil {
		return tx, fmt.Errorf("transaction %s: bad value_native: %w", tx.ID, err)
	}
	if tx.ValueCounter, err = parseNullDecimal(valueCounter); err != nil {
		return tx, fmt.Errorf("transaction %s: bad value_counter: %w", tx.ID, err)
	}
	if tx.EntryPrice, err = parseNullDecimal(entryPrice); err != nil {
		return tx, fmt.Errorf("transaction %s: bad entry_price: %w", tx.ID, err)
	}
	if tx.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return tx, fmt.Errorf("transaction %s: bad timestamp %q: %w", tx.ID, timestamp, err)
	}

	return tx, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

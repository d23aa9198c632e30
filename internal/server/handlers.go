package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rezapram/arta/internal/domain"
	"github.com/rezapram/arta/internal/events"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "arta",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetPortfolio returns the current positions grouped by asset class.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()

	response := map[string]interface{}{
		"initialized": snapshot.Initialized,
		"assets":      snapshot.Assets,
		"fx_rate":     snapshot.FxRate,
		"last_update": snapshot.LastUpdate.Format(time.RFC3339),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetSummary returns the aggregated portfolio summary.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Summary())
}

// handleGetTransactions returns the committed transaction list.
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()

	response := map[string]interface{}{
		"transactions": snapshot.Transactions,
		"count":        len(snapshot.Transactions),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleRecordTransaction validates and records a single transaction. An id
// is minted server-side when the client did not supply one; a supplied id is
// kept so clients can retry safely.
func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	tx.Symbol = domain.NormalizeSymbol(tx.Symbol)

	if err := tx.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inserted, err := s.ledger.Append(tx)
	if err != nil {
		s.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to persist transaction")
		s.writeError(w, http.StatusInternalServerError, "Failed to persist transaction")
		return
	}

	if err := s.store.AppendTransaction(tx); err != nil {
		s.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to apply transaction")
		s.writeError(w, http.StatusInternalServerError, "Failed to apply transaction")
		return
	}

	s.em.EmitTyped(events.TransactionRecorded, "server", &events.TransactionRecordedData{
		TransactionID: tx.ID,
		Type:          string(tx.Type),
		Symbol:        tx.Symbol,
	})

	status := http.StatusCreated
	if !inserted {
		// Retried id already in the ledger; the store call above was a no-op.
		status = http.StatusOK
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status":         "success",
		"transaction_id": tx.ID,
		"inserted":       inserted,
	})
}

// deleteRequest is the body for POST /api/portfolio/delete.
type deleteRequest struct {
	AssetClass domain.AssetClass   `json:"asset_class"`
	Symbol     string              `json:"symbol"`
	Market     domain.Market       `json:"market,omitempty"`
	Source     domain.DeleteSource `json:"source,omitempty"`
}

// handleDeletePosition appends a delete marker for a position. The position
// stays deleted until a later buy re-establishes it; history rows before the
// marker remain visible in the transaction list.
func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	source := req.Source
	if source == "" {
		source = domain.DeletePortfolio
	}
	if source != domain.DeletePortfolio && source != domain.DeleteHistory {
		s.writeError(w, http.StatusBadRequest, "source must be portfolio or history")
		return
	}

	tx := domain.Transaction{
		ID:         uuid.New().String(),
		Type:       domain.TxDelete,
		AssetClass: req.AssetClass,
		Symbol:     domain.NormalizeSymbol(req.Symbol),
		Market:     req.Market,
		Timestamp:  time.Now().UTC(),
		Source:     source,
	}

	if err := tx.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.ledger.Append(tx); err != nil {
		s.log.Error().Err(err).Str("symbol", tx.Symbol).Msg("Failed to persist delete marker")
		s.writeError(w, http.StatusInternalServerError, "Failed to persist delete marker")
		return
	}

	if err := s.store.AppendTransaction(tx); err != nil {
		s.log.Error().Err(err).Str("symbol", tx.Symbol).Msg("Failed to apply delete marker")
		s.writeError(w, http.StatusInternalServerError, "Failed to apply delete marker")
		return
	}

	s.em.EmitTyped(events.TransactionRecorded, "server", &events.TransactionRecordedData{
		TransactionID: tx.ID,
		Type:          string(tx.Type),
		Symbol:        tx.Symbol,
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"transaction_id": tx.ID,
	})
}

// handleReset wipes the ledger and clears all derived state. The store is
// re-seeded empty right away, keeping the FX rate, so the API continues to
// accept transactions without a process restart.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ledger.DeleteAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to clear ledger")
		s.writeError(w, http.StatusInternalServerError, "Failed to clear ledger")
		return
	}

	fxRate := s.store.Snapshot().FxRate
	s.store.ResetAll()

	if err := s.store.Initialize(nil, nil, fxRate); err != nil {
		s.log.Error().Err(err).Msg("Failed to reinitialize store after reset")
		s.writeError(w, http.StatusInternalServerError, "Failed to reinitialize store")
		return
	}

	s.em.EmitTyped(events.StoreReset, "server", &events.StoreResetData{
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		TransactionsDeleted: deleted,
	})

	s.log.Warn().Int("transactions_deleted", deleted).Msg("Portfolio reset")

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "success",
		"transactions_deleted": deleted,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

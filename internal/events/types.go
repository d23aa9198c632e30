// Package events provides the pub/sub bus that fans portfolio state changes
// out to the SSE stream and other in-process listeners.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	PortfolioChanged    EventType = "PORTFOLIO_CHANGED"
	PriceUpdated        EventType = "PRICE_UPDATED"
	FxRateUpdated       EventType = "FX_RATE_UPDATED"
	TransactionRecorded EventType = "TRANSACTION_RECORDED"
	StoreReset          EventType = "STORE_RESET"
	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// Event represents a system event with its payload.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// EventData is implemented by typed event payloads.
type EventData interface {
	EventType() EventType
}

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	AssetCount int    `json:"asset_count"`
	Trigger    string `json:"trigger"`
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType {
	return PortfolioChanged
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Symbols []string `json:"symbols"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// FxRateUpdatedData contains data for FxRateUpdated events
type FxRateUpdatedData struct {
	Rate  string `json:"rate"`
	Stale bool   `json:"stale"`
}

// EventType returns the event type for FxRateUpdatedData
func (d *FxRateUpdatedData) EventType() EventType {
	return FxRateUpdated
}

// TransactionRecordedData contains data for TransactionRecorded events
type TransactionRecordedData struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"tx_type"`
	Symbol        string `json:"symbol"`
}

// EventType returns the event type for TransactionRecordedData
func (d *TransactionRecordedData) EventType() EventType {
	return TransactionRecorded
}

// StoreResetData contains data for StoreReset events
type StoreResetData struct {
	Timestamp           string `json:"timestamp"`
	TransactionsDeleted int    `json:"transactions_deleted"`
}

// EventType returns the event type for StoreResetData
func (d *StoreResetData) EventType() EventType {
	return StoreReset
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
// for the wire format the SSE stream serves.
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}

package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Exchange rates move slowly enough that an hour of staleness is fine
	// for a personal tracker.
	TTLExchangeRate = time.Hour

	// Current price cache bridges restarts and provider outages.
	TTLCurrentPrice = 10 * time.Minute
)

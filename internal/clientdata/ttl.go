package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLExchangeRate - currency exchange rates change throughout the day
	TTLExchangeRate = time.Hour
)

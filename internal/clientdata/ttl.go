package clientdata

import "time"

// TTL constants per namespace, matching how long the backend itself caches each read.
const (
	TTLPortfolioHistory = time.Hour
	TTLChart            = 5 * time.Minute
	TTLAnalysis         = 10 * time.Minute
)

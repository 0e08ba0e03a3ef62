package domain

import "time"

const (
	SyncSuccess = "success"
	SyncFailure = "failure"
)

// SyncLog is an append-only record of one sync attempt.
type SyncLog struct {
	ID            int64     `json:"id"`
	BusinessID    string    `json:"businessId"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	ReviewsSynced int       `json:"reviewsSynced"`
	DurationMs    int64     `json:"duration"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type SyncResult struct {
	SyncedCount int
	DurationMs  int64
}

type SyncStats struct {
	TotalReviews int        `json:"totalReviews"`
	SyncedCount  int        `json:"syncedCount"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}

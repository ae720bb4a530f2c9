package redis

const (
	// KeySnapshot holds the JSON array of every task.
	KeySnapshot = "pricewatch:tasks:snapshot"
	// KeySnapshotSavedAt holds the RFC 3339 time of the last write.
	KeySnapshotSavedAt = "pricewatch:tasks:saved_at"
)

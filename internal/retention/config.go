// Package retention implements the daily history-table sweeper: a daemon
// with its own clock that deletes rows older than the configured
// retention cutoff from the history tables and the audit log.
package retention

// SettingsSource is the narrow settings surface the sweeper consumes,
// read fresh on every check so a hot-reloaded retention window or
// cleanup time takes effect without a restart.
type SettingsSource interface {
	// DataRetentionDays returns how many days of history to keep.
	DataRetentionDays() int
	// RetentionCleanupTime returns the local time of day (HH:MM) the
	// sweep should run at.
	RetentionCleanupTime() string
}

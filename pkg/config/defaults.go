package config

import "time"

// Tracking defaults.
const (
	DefaultWorkers           = 0
	DefaultBlockHalfSize     = 5
	DefaultClosedIssueMaxAge = 30 * 24 * time.Hour
	DefaultHoursInDay        = 8
	DefaultBackdateNewIssues = true
)

// Storage defaults.
const (
	DefaultStoragePath = ".issuetrack/issues.db"
	DefaultBusyTimeout = 5 * time.Second
)

package migrate

import "time"

type MigrationStatus struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt *time.Time
}

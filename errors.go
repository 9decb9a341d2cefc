package conductor

import "errors"

var (
	// Registration errors.
	ErrNoHandler   = errors.New("conductor: no handler registered for job type")
	ErrUnknownType = errors.New("conductor: unknown job type")

	// Record store errors.
	ErrJobNotFound = errors.New("conductor: job not found")

	// Store errors.
	ErrSettingNotFound = errors.New("conductor: setting not found")
	ErrStoreClosed     = errors.New("conductor: store closed")

	// Lifecycle errors.
	ErrShutdown     = errors.New("conductor: scheduler shut down")
	ErrAlreadyRun   = errors.New("conductor: scheduler already running")
	ErrEntryExists  = errors.New("conductor: cron entry already registered")
	ErrEntryUnknown = errors.New("conductor: cron entry not found")
)

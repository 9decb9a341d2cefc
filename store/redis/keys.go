package redis

// Redis key naming conventions. All keys are prefixed with "conductor:"
// to avoid collisions.

const keyPrefix = "conductor:"

// settingsKey is the Hash holding all pipeline settings.
const settingsKey = keyPrefix + "settings"

// archiveKey returns the key for an archived job snapshot:
// conductor:archive:{id}
func archiveKey(id string) string { return keyPrefix + "archive:" + id }

// archiveIndexKey is the Sorted Set of archived job IDs scored by finish
// time (unix nanoseconds) for ordered listing and time-based purging.
const archiveIndexKey = keyPrefix + "archive_idx"

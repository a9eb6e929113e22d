package prim

import "time"

// Mtime is a POSIX file modification time truncated to whole seconds, the
// granularity the filesystem and TagStore agree on.
type Mtime int64

// MtimeOf truncates t to whole seconds.
func MtimeOf(t time.Time) Mtime { return Mtime(t.Unix()) }

// Instant is a monotonic-ish timestamp in whole seconds since the Unix
// epoch, used for first_seen/listen bookkeeping where sub-second resolution
// doesn't matter but a stable, comparable integer does.
type Instant int64

// Now returns the current instant.
func Now() Instant { return Instant(time.Now().Unix()) }

// FromISO8601 parses an RFC3339 timestamp into an Instant truncated to
// seconds.
func FromISO8601(s string) (Instant, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return Instant(t.Unix()), nil
}

// FormatISO8601 renders the instant as an RFC3339 timestamp with a literal Z
// suffix (UTC), matching what FromISO8601 parses back.
func (i Instant) FormatISO8601() string {
	return time.Unix(int64(i), 0).UTC().Format("2006-01-02T15:04:05Z")
}

// Time returns the instant as a time.Time in UTC.
func (i Instant) Time() time.Time { return time.Unix(int64(i), 0).UTC() }

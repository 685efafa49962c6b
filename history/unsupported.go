package history

// maxUnsupportedLogEntries bounds how many distinct (path, reason) pairs
// the unsupported-payload log keeps; the oldest entry is evicted once the
// log would grow past this size.
const maxUnsupportedLogEntries = 16

const (
	unsupportedNestedMessage        = "history does not yet support nested spaces"
	unsupportedExecutionMessage     = "history does not yet support nodes containing tasks or futures"
	unsupportedSerializationMessage = "unable to serialize node payload for history"
)

// UnsupportedRecord is one deduplicated (path, reason) rejection: a
// mutation history could not capture because the payload fell into one of
// the three unsupported categories.
type UnsupportedRecord struct {
	Path        string
	Reason      string
	Occurrences uint64
	LastSeenMs  uint64
}

// unsupportedLog is a bounded, most-recently-touched-last ring of
// UnsupportedRecord entries, deduplicated by (path, reason).
type unsupportedLog struct {
	total   uint64
	records []UnsupportedRecord
}

// record adds an occurrence for (path, reason), bumping an existing
// record to the back of the log or appending a new one and evicting the
// oldest entry once the log exceeds its cap.
func (l *unsupportedLog) record(path, reason string, timestampMs uint64) {
	l.total++

	for i, r := range l.records {
		if r.Path == path && r.Reason == reason {
			r.Occurrences++
			r.LastSeenMs = timestampMs
			l.records = append(l.records[:i], l.records[i+1:]...)
			l.records = append(l.records, r)
			return
		}
	}

	l.records = append(l.records, UnsupportedRecord{
		Path:        path,
		Reason:      reason,
		Occurrences: 1,
		LastSeenMs:  timestampMs,
	})
	if len(l.records) > maxUnsupportedLogEntries {
		l.records = l.records[1:]
	}
}

// Snapshot returns the total occurrence count and a copy of the current
// recent-records slice, safe for the caller to retain.
func (l *unsupportedLog) Snapshot() (uint64, []UnsupportedRecord) {
	out := make([]UnsupportedRecord, len(l.records))
	copy(out, l.records)
	return l.total, out
}

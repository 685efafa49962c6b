package history

// TrimStats reports what one TrimHistory call removed.
type TrimStats struct {
	EntriesRemoved uint64
	BytesRemoved   uint64
}

// TrimPredicate is called with a zero-based index into the undo stack,
// oldest first; returning true marks that generation for removal.
// A nil predicate is equivalent to one that always returns true: every
// undo entry is removed.
type TrimPredicate func(generationIndex int) bool

// trimJournal removes undo-half entries from the oldest end for which
// predicate returns true, stopping at the first entry predicate rejects
// (retention is always a prefix trim, never selective about the middle,
// since undo history must stay contiguous).
func trimJournal(rs *rootState, predicate TrimPredicate) TrimStats {
	var stats TrimStats
	originalPolicy := rs.journal.Policy()
	idx := 0
	for rs.journal.CanUndo() {
		if predicate != nil && !predicate(idx) {
			break
		}
		entry, ok := rs.journal.PeekUndo()
		if !ok {
			break
		}
		_ = entry
		// Dropping the oldest undo entry requires discarding it from the
		// front of the deque; JournalState only trims from the front via
		// its retention policy, so a manual trim temporarily tightens the
		// policy to force exactly one eviction per requested step, then
		// restores the root's actual configured policy.
		before := rs.journal.Stats()
		tighten := RetentionPolicy{MaxEntries: before.TotalEntries - 1, MaxBytes: originalPolicy.MaxBytes}
		if tighten.MaxEntries == 0 {
			// MaxEntries 0 means unlimited; a 1-byte budget evicts the last entry instead.
			tighten.MaxBytes = 1
		}
		rs.journal.SetRetentionPolicy(tighten)
		after := rs.journal.Stats()
		stats.EntriesRemoved += after.TrimmedEntries - before.TrimmedEntries
		stats.BytesRemoved += after.TrimmedBytes - before.TrimmedBytes
		rs.journal.SetRetentionPolicy(originalPolicy)
		idx++
	}
	rs.telemetry.TrimOperations++
	rs.telemetry.TrimmedEntries += stats.EntriesRemoved
	rs.telemetry.TrimmedBytes += stats.BytesRemoved
	if stats.EntriesRemoved > 0 {
		rs.telemetry.LastTrimTimestamp = nowMillis()
	}
	return stats
}

// trimSnapshots removes undo-stack generations from the oldest end for
// which predicate returns true.
func trimSnapshots(rs *rootState, predicate TrimPredicate) TrimStats {
	var stats TrimStats
	idx := 0
	for len(rs.undoStack) > 0 {
		if predicate != nil && !predicate(idx) {
			break
		}
		removed := rs.undoStack[0]
		rs.undoStack = rs.undoStack[1:]
		stats.EntriesRemoved++
		stats.BytesRemoved += snapshotByteSize(removed.Root)
		idx++
	}
	rs.telemetry.TrimOperations++
	rs.telemetry.TrimmedEntries += stats.EntriesRemoved
	rs.telemetry.TrimmedBytes += stats.BytesRemoved
	if stats.EntriesRemoved > 0 {
		rs.telemetry.LastTrimTimestamp = nowMillis()
	}
	return stats
}

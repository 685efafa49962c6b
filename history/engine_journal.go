package history

import "github.com/ChristofferGreen/PathSpace-sub002/pathspace"

// readCurrentPayload returns the payload currently stored at relComponents
// under rs.root, serialized as a SerializedPayload suitable for use as a
// journal entry's inverse value.
func readCurrentPayload(rs *rootState, relComponents []string) SerializedPayload {
	full := append(append([]string{}, rs.root.Components...), relComponents...)
	data, ok := rs.inner.GetPayload(full)
	if !ok {
		return SerializedPayload{Present: false}
	}
	return SerializedPayload{Present: true, Bytes: data.Bytes}
}

// applyJournalPayload writes (or clears) the payload at relComponents
// under rs.root to match p, used both for normal forward application and
// for undo/redo replay.
func applyJournalPayload(rs *rootState, relComponents []string, p SerializedPayload) {
	full := append(append([]string{}, rs.root.Components...), relComponents...)
	if !p.Present {
		rs.inner.ClearPayload(full)
		return
	}
	rs.inner.SetPayload(full, pathspace.NodeData{Bytes: p.Bytes})
}

// adjustLiveBytes returns current adjusted by the size delta between
// replacing oldPayload with newPayload at one path, floored at zero so a
// miscounted inverse never underflows the running total.
func adjustLiveBytes(current uint64, oldPayload, newPayload SerializedPayload) uint64 {
	var oldSize, newSize uint64
	if oldPayload.Present {
		oldSize = uint64(len(oldPayload.Bytes))
	}
	if newPayload.Present {
		newSize = uint64(len(newPayload.Bytes))
	}
	if newSize >= oldSize {
		return current + (newSize - oldSize)
	}
	shrink := oldSize - newSize
	if current >= shrink {
		return current - shrink
	}
	return 0
}

// recordJournalMutation appends one entry to rs.journal describing a
// forward write of data at relComponents. before is the payload that was
// present immediately prior to this mutation (the inverse). The entry is
// appended to rs.journal here; it is also returned so callers can write it
// to the on-disk journal file.
func recordJournalMutation(rs *rootState, operation OperationKind, relComponents []string, before SerializedPayload, after SerializedPayload, barrier bool) JournalEntry {
	rs.nextSequence++
	entry := JournalEntry{
		Operation:    operation,
		Path:         joinComponents(relComponents),
		Tag:          rs.currentTag,
		Value:        after,
		InverseValue: before,
		TimestampMs:  nowMillis(),
		MonotonicNs:  nowMonotonicNanos(),
		Sequence:     rs.nextSequence,
		Barrier:      barrier,
	}
	rs.journal.Append(entry, true)
	rs.liveBytes = adjustLiveBytes(rs.liveBytes, before, after)
	return entry
}

func journalRelativeComponents(root HistoryRoot, fullPath string) ([]string, error) {
	_, components, err := pathspace.Canonicalize(fullPath)
	if err != nil {
		return nil, newError(InvalidPath, "invalid path %q: %v", fullPath, err)
	}
	if !pathspace.HasPrefix(components, root.Components) {
		return nil, newError(InvalidPath, "path %q is not under history root %q", fullPath, root.Path)
	}
	return components[len(root.Components):], nil
}

// journalUndo steps the journal cursor back one entry and applies its
// inverse payload to the live space. Returns false if there was nothing
// to undo.
func journalUndo(rs *rootState) (JournalEntry, bool) {
	entry, ok := rs.journal.Undo()
	if !ok {
		return JournalEntry{}, false
	}
	rel := splitPath(entry.Path)
	applyJournalPayload(rs, rel, entry.InverseValue)
	rs.liveBytes = adjustLiveBytes(rs.liveBytes, entry.Value, entry.InverseValue)
	return entry, true
}

// journalRedo steps the journal cursor forward one entry and re-applies
// its forward payload. Returns false if there was nothing to redo.
func journalRedo(rs *rootState) (JournalEntry, bool) {
	entry, ok := rs.journal.Redo()
	if !ok {
		return JournalEntry{}, false
	}
	rel := splitPath(entry.Path)
	applyJournalPayload(rs, rel, entry.Value)
	rs.liveBytes = adjustLiveBytes(rs.liveBytes, entry.InverseValue, entry.Value)
	return entry, true
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}

package history

// RetentionPolicy bounds how much journal history stays resident. Zero
// means unlimited for that dimension.
type RetentionPolicy struct {
	MaxEntries uint64
	MaxBytes   uint64
}

// JournalStateStats summarizes one root's journal at a point in time.
type JournalStateStats struct {
	TotalEntries   uint64
	UndoCount      uint64
	RedoCount      uint64
	TotalBytes     uint64
	UndoBytes      uint64
	RedoBytes      uint64
	TrimmedEntries uint64
	TrimmedBytes   uint64
}

// JournalState is the undo/redo deque for one root's mutation journal: a
// flat entry list plus a cursor splitting it into an undo half (before the
// cursor) and a redo half (at and after the cursor). Appending past the
// cursor drops the redo tail, matching ordinary editor undo semantics.
type JournalState struct {
	entries        []JournalEntry
	cursor         int
	retention      RetentionPolicy
	totalBytes     uint64
	trimmedEntries uint64
	trimmedBytes   uint64
}

// NewJournalState returns an empty journal with no retention limits.
func NewJournalState() *JournalState {
	return &JournalState{}
}

func (j *JournalState) Clear() {
	j.entries = nil
	j.cursor = 0
	j.totalBytes = 0
	j.trimmedEntries = 0
	j.trimmedBytes = 0
}

func (j *JournalState) Policy() RetentionPolicy { return j.retention }

func (j *JournalState) SetRetentionPolicy(policy RetentionPolicy) {
	j.retention = policy
	j.enforceRetention()
}

// Append records a new entry, dropping any redo tail first, then enforces
// retention unless the caller is batching appends and will enforce once at
// the end.
func (j *JournalState) Append(entry JournalEntry, enforceRetentionNow bool) {
	j.dropRedoTail()
	j.totalBytes += entryByteEstimate(entry)
	j.entries = append(j.entries, entry)
	j.cursor = len(j.entries)
	if enforceRetentionNow {
		j.enforceRetention()
	}
}

func (j *JournalState) Size() int    { return len(j.entries) }
func (j *JournalState) Cursor() int  { return j.cursor }
func (j *JournalState) CanUndo() bool { return j.cursor > 0 }
func (j *JournalState) CanRedo() bool { return j.cursor < len(j.entries) }

func (j *JournalState) PeekUndo() (JournalEntry, bool) {
	if !j.CanUndo() {
		return JournalEntry{}, false
	}
	return j.entries[j.cursor-1], true
}

func (j *JournalState) PeekRedo() (JournalEntry, bool) {
	if !j.CanRedo() {
		return JournalEntry{}, false
	}
	return j.entries[j.cursor], true
}

// Undo moves the cursor back one step and returns the entry that just
// left the undo half.
func (j *JournalState) Undo() (JournalEntry, bool) {
	if !j.CanUndo() {
		return JournalEntry{}, false
	}
	j.cursor--
	return j.entries[j.cursor], true
}

// Redo moves the cursor forward one step and returns the entry that just
// re-entered the undo half.
func (j *JournalState) Redo() (JournalEntry, bool) {
	if !j.CanRedo() {
		return JournalEntry{}, false
	}
	entry := j.entries[j.cursor]
	j.cursor++
	return entry, true
}

func (j *JournalState) EntryAt(index int) (JournalEntry, bool) {
	if index < 0 || index >= len(j.entries) {
		return JournalEntry{}, false
	}
	return j.entries[index], true
}

// Entries returns the full entry slice in order, for persistence export.
// Callers must not mutate the returned slice.
func (j *JournalState) Entries() []JournalEntry { return j.entries }

// MarkLastBarrier flags the most recently appended entry as a transaction
// boundary, used when a multi-mutation transaction commits so replay
// tooling can see where the grouped change ended.
func (j *JournalState) MarkLastBarrier() {
	if len(j.entries) == 0 {
		return
	}
	j.entries[len(j.entries)-1].Barrier = true
}

func (j *JournalState) Stats() JournalStateStats {
	var undoBytes uint64
	for i := 0; i < j.cursor; i++ {
		undoBytes += entryByteEstimate(j.entries[i])
	}
	redoBytes := uint64(0)
	if j.totalBytes >= undoBytes {
		redoBytes = j.totalBytes - undoBytes
	}
	return JournalStateStats{
		TotalEntries:   uint64(len(j.entries)),
		UndoCount:      uint64(j.cursor),
		RedoCount:      uint64(len(j.entries) - j.cursor),
		TotalBytes:     j.totalBytes,
		UndoBytes:      undoBytes,
		RedoBytes:      redoBytes,
		TrimmedEntries: j.trimmedEntries,
		TrimmedBytes:   j.trimmedBytes,
	}
}

func (j *JournalState) dropRedoTail() {
	for len(j.entries) > j.cursor {
		last := j.entries[len(j.entries)-1]
		j.totalBytes -= entryByteEstimate(last)
		j.entries = j.entries[:len(j.entries)-1]
	}
}

func (j *JournalState) exceedsLimits() bool {
	overEntries := j.retention.MaxEntries != 0 && uint64(len(j.entries)) > j.retention.MaxEntries
	overBytes := j.retention.MaxBytes != 0 && j.totalBytes > j.retention.MaxBytes
	return overEntries || overBytes
}

func (j *JournalState) enforceRetention() {
	for len(j.entries) > 0 && j.exceedsLimits() {
		bytes := entryByteEstimate(j.entries[0])
		j.entries = j.entries[1:]
		j.totalBytes -= bytes
		j.trimmedEntries++
		j.trimmedBytes += bytes
		if j.cursor > 0 {
			j.cursor--
		}
	}
	if j.cursor > len(j.entries) {
		j.cursor = len(j.entries)
	}
}

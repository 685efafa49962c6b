package history

import (
	"sync"

	"github.com/gofrs/flock"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

// lastOperation records what the most recent undo/redo/mutation did to one
// root, for the `_history/lastOperation/...` telemetry surface.
type lastOperation struct {
	Type            string
	TimestampMs     uint64
	DurationMs      uint64
	Success         bool
	UndoCountBefore uint64
	UndoCountAfter  uint64
	RedoCountBefore uint64
	RedoCountAfter  uint64
	BytesBefore     uint64
	BytesAfter      uint64
	Tag             string
	Message         string
}

// telemetry accumulates the counters surfaced under `_history/stats/...`
// that aren't simple derivations of the journal/snapshot stack itself.
type telemetry struct {
	TrimOperations    uint64
	TrimmedEntries    uint64
	TrimmedBytes      uint64
	LastTrimTimestamp uint64
	LastOperation     *lastOperation
	CompactionRuns    uint64
	CompactionEntries uint64
	CompactionBytes   uint64
	LastCompactionTs  uint64
	DiskBytes         uint64
	DiskEntries       uint64
	unsupported       unsupportedLog
}

// activeTransaction tracks one in-flight grouped mutation. owner is the
// Go-idiomatic replacement for the original's owning-thread-id check:
// a *Transaction token's pointer identity stands in for "the caller who
// opened this transaction", since Go mutations aren't pinned to an OS
// thread the way the original's coordinator assumed.
type activeTransaction struct {
	owner        *Transaction
	depth        int
	dirty        bool
	snapshotPre  cowSnapshot // snapshot mode only: live state when the transaction opened
}

// rootState is the full mutable state the engine maintains for one
// enabled history root: its journal or snapshot stack, persistence
// handles, telemetry, and the transaction/mutex guarding concurrent
// access. One instance exists per enabled root for the lifetime it stays
// enabled.
type rootState struct {
	mu sync.Mutex

	root    HistoryRoot
	options Options
	inner   *pathspace.Space

	// Journal-mode fields.
	journal      *JournalState
	liveBytes    uint64
	nextSequence uint64

	// Snapshot-mode fields: undo/redo stacks of whole-subtree captures.
	liveSnapshot cowSnapshot
	undoStack    []cowSnapshot
	redoStack    []cowSnapshot
	nextGen      uint64

	currentTag string
	telemetry  telemetry

	persistenceEnabled bool
	persistenceDir      string
	journalFilePath     string
	entriesDir          string
	stateMetaFile       string
	encodedRoot         string
	persistenceDirty    bool
	fileLock            *flock.Flock
	journalWriter        *journalFileWriter

	tx *activeTransaction
}

func newRootState(root HistoryRoot, opts Options, inner *pathspace.Space) *rootState {
	rs := &rootState{
		root:    root,
		options: opts,
		inner:   inner,
	}
	if opts.UseMutationJournal {
		rs.journal = NewJournalState()
		rs.journal.SetRetentionPolicy(RetentionPolicy{
			MaxEntries: uint64(opts.MaxEntries),
			MaxBytes:   opts.MaxBytesRetained,
		})
	} else {
		rs.liveSnapshot = emptySnapshot()
	}
	return rs
}

// totalUndoRedoCount reports the undo and redo depth, regardless of mode.
func (rs *rootState) totalUndoRedoCount() (undo, redo uint64) {
	if rs.options.UseMutationJournal {
		stats := rs.journal.Stats()
		return stats.UndoCount, stats.RedoCount
	}
	return uint64(len(rs.undoStack)), uint64(len(rs.redoStack))
}

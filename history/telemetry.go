package history

// Virtual command and telemetry paths, relative to one root, mirroring
// the historical `_history/...` namespace: writes to a Command* path
// trigger the named action instead of storing a value, and reads under
// the stats/unsupported/lastOperation prefixes surface live counters.
const (
	CommandUndo       = "_history/undo"
	CommandRedo       = "_history/redo"
	CommandGc         = "_history/garbage_collect"
	CommandSetManualGc = "_history/set_manual_garbage_collect"
	CommandSetTag     = "_history/set_tag"

	statsPrefix          = "_history/stats"
	lastOperationPrefix  = "_history/lastOperation"
	unsupportedPrefix    = "_history/unsupported"
	headGenerationPath   = "_history/head/generation"
)

// HistoryLimits mirrors the options that bound one root's retained
// history, surfaced read-only under `_history/stats/limits/...`.
type HistoryLimits struct {
	MaxEntries             uint64
	MaxBytesRetained       uint64
	KeepLatestForMs        uint64
	RamCacheEntries        uint64
	MaxDiskBytes           uint64
	PersistHistory         bool
	RestoreFromPersistence bool
}

// HistoryCounts is the undo/redo depth and a handful of cache/disk
// counters for one root.
type HistoryCounts struct {
	Undo                 uint64
	Redo                 uint64
	ManualGarbageCollect bool
	DiskEntries          uint64
	CachedUndo           uint64
	CachedRedo           uint64
}

// HistoryBytes breaks down one root's retained byte usage.
type HistoryBytes struct {
	Total uint64
	Undo  uint64
	Redo  uint64
	Live  uint64
	Disk  uint64
}

// HistoryTrimMetrics summarizes cumulative retention trimming.
type HistoryTrimMetrics struct {
	OperationCount  uint64
	Entries         uint64
	Bytes           uint64
	LastTimestampMs uint64
}

// HistoryUnsupportedStats reports the deduplicated unsupported-payload
// log for one root.
type HistoryUnsupportedStats struct {
	Total  uint64
	Recent []UnsupportedRecord
}

// HistoryStats is the full read-only telemetry snapshot for one root,
// returned by GetHistoryStats and backing every `_history/stats/...` and
// `_history/unsupported/...` read.
type HistoryStats struct {
	Counts        HistoryCounts
	Bytes         HistoryBytes
	Trim          HistoryTrimMetrics
	Limits        HistoryLimits
	LastOperation *lastOperation
	Unsupported   HistoryUnsupportedStats
}

// gatherStats builds a HistoryStats snapshot from rs. Caller must hold
// rs.mu.
func gatherStats(rs *rootState) HistoryStats {
	undo, redo := rs.totalUndoRedoCount()

	var liveBytes, undoBytes, redoBytes uint64
	if rs.options.UseMutationJournal {
		js := rs.journal.Stats()
		liveBytes = rs.liveBytes
		undoBytes = js.UndoBytes
		redoBytes = js.RedoBytes
	} else {
		liveBytes = snapshotByteSize(rs.liveSnapshot.Root)
		undoBytes = snapshotStackBytes(rs.undoStack)
		redoBytes = snapshotStackBytes(rs.redoStack)
	}

	total, recent := rs.telemetry.unsupported.Snapshot()

	return HistoryStats{
		Counts: HistoryCounts{
			Undo:                 undo,
			Redo:                 redo,
			ManualGarbageCollect: rs.options.ManualGarbageCollect,
			DiskEntries:          rs.telemetry.DiskEntries,
		},
		Bytes: HistoryBytes{
			Total: liveBytes + undoBytes + redoBytes,
			Undo:  undoBytes,
			Redo:  redoBytes,
			Live:  liveBytes,
			Disk:  rs.telemetry.DiskBytes,
		},
		Trim: HistoryTrimMetrics{
			OperationCount:  rs.telemetry.TrimOperations,
			Entries:         rs.telemetry.TrimmedEntries,
			Bytes:           rs.telemetry.TrimmedBytes,
			LastTimestampMs: rs.telemetry.LastTrimTimestamp,
		},
		Limits: HistoryLimits{
			MaxEntries:             uint64(rs.options.MaxEntries),
			MaxBytesRetained:       rs.options.MaxBytesRetained,
			KeepLatestForMs:        uint64(rs.options.KeepLatestFor.Milliseconds()),
			RamCacheEntries:        uint64(rs.options.RamCacheEntries),
			MaxDiskBytes:           rs.options.MaxDiskBytes,
			PersistHistory:         rs.options.PersistHistory,
			RestoreFromPersistence: rs.options.RestoreFromPersistence,
		},
		LastOperation: rs.telemetry.LastOperation,
		Unsupported: HistoryUnsupportedStats{
			Total:  total,
			Recent: recent,
		},
	}
}

// recordOperation stamps rs.telemetry.LastOperation after a mutating
// operation, capturing the before/after undo-redo depth and byte totals
// used by the `_history/lastOperation/...` telemetry surface.
func recordOperation(rs *rootState, opType string, durationMs uint64, success bool, undoBefore, redoBefore, bytesBefore uint64, message string) {
	undoAfter, redoAfter := rs.totalUndoRedoCount()
	stats := gatherStats(rs)
	rs.telemetry.LastOperation = &lastOperation{
		Type:            opType,
		TimestampMs:     nowMillis(),
		DurationMs:      durationMs,
		Success:         success,
		UndoCountBefore: undoBefore,
		UndoCountAfter:  undoAfter,
		RedoCountBefore: redoBefore,
		RedoCountAfter:  redoAfter,
		BytesBefore:     bytesBefore,
		BytesAfter:      stats.Bytes.Total,
		Tag:             rs.currentTag,
		Message:         message,
	}
}

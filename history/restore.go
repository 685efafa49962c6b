package history

import "github.com/ethereum/go-ethereum/log"

// restoreRootFromPersistence reconstructs rs's in-memory state from disk on
// enable: journal-mode roots replay journal.psjf; snapshot-mode roots
// rebuild their undo/redo stacks from state.meta and the generation files
// it names. A root with nothing persisted yet (first enable) leaves rs
// untouched rather than erroring.
func restoreRootFromPersistence(rs *rootState) error {
	if rs.options.UseMutationJournal {
		return restoreJournalRootFromPersistence(rs)
	}
	return restoreSnapshotRootFromPersistence(rs)
}

func restoreJournalRootFromPersistence(rs *rootState) error {
	count := 0
	err := replayJournalFile(rs.journalFilePath, func(entry JournalEntry) error {
		rel := splitPath(entry.Path)
		before := readCurrentPayload(rs, rel)
		applyJournalPayload(rs, rel, entry.Value)
		rs.liveBytes = adjustLiveBytes(rs.liveBytes, before, entry.Value)
		rs.journal.Append(entry, false)
		rs.telemetry.DiskBytes += entryByteEstimate(entry)
		count++
		return nil
	})
	if err != nil {
		if Is(err, NotFound) {
			return nil
		}
		return err
	}
	rs.journal.SetRetentionPolicy(rs.journal.Policy())
	rs.telemetry.DiskEntries = uint64(count)
	log.Info("history restored from disk", "root", rs.root.Path, "entries", count)
	return nil
}

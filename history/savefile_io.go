package history

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// ExportHistorySavefile writes a portable snapshot of root's entire
// undo/redo state to file: options, the live entry, and every retained
// undo and redo generation, oldest first. Works in either engine mode —
// journal entries and whole-subtree snapshots both round-trip through
// SavefileEntryBlock, just carrying a different encoded payload.
func (us *UndoableSpace) ExportHistorySavefile(rootPath, file string, fsyncData bool) error {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	doc, err := buildSavefileDocument(rs)
	rs.mu.Unlock()
	if err != nil {
		return err
	}

	encoded, err := EncodeSavefile(doc)
	if err != nil {
		return err
	}
	if fsyncData {
		if err := writeFileAtomic(file, encoded); err != nil {
			return err
		}
	} else if err := os.WriteFile(file, encoded, 0o644); err != nil {
		return newError(UnknownError, "write savefile %q: %v", file, err)
	}
	log.Info("history exported", "root", rs.root.Path, "file", file, "undo", len(doc.UndoEntries), "redo", len(doc.RedoEntries))
	return nil
}

func buildSavefileDocument(rs *rootState) (SavefileDocument, error) {
	doc := SavefileDocument{
		RootPath: rs.root.Path,
		Options: SavefileOptions{
			MaxEntries:           uint64(rs.options.MaxEntries),
			MaxBytesRetained:     rs.options.MaxBytesRetained,
			RamCacheEntries:      uint64(rs.options.RamCacheEntries),
			MaxDiskBytes:         rs.options.MaxDiskBytes,
			KeepLatestForMs:      uint64(rs.options.KeepLatestFor.Milliseconds()),
			ManualGarbageCollect: rs.options.ManualGarbageCollect,
		},
	}

	if rs.options.UseMutationJournal {
		entries := rs.journal.Entries()
		cursor := rs.journal.Cursor()
		live, err := encodeJournalAsEntryBlock(rs, entries, cursor)
		if err != nil {
			return SavefileDocument{}, err
		}
		doc.LiveEntry = live

		var undoGens, redoGens []uint64
		for i, e := range entries {
			block, err := encodeJournalEntryBlock(e, uint64(i))
			if err != nil {
				return SavefileDocument{}, err
			}
			if i < cursor {
				doc.UndoEntries = append(doc.UndoEntries, block)
				undoGens = append(undoGens, uint64(i))
			} else {
				doc.RedoEntries = append(doc.RedoEntries, block)
				redoGens = append(redoGens, uint64(i))
			}
		}
		doc.StateMetadata = StateMetadata{
			LiveGeneration:  uint64(cursor),
			UndoGenerations: undoGens,
			RedoGenerations: redoGens,
			ManualGc:        rs.options.ManualGarbageCollect,
			RamCacheEntries: uint64(rs.options.RamCacheEntries),
		}
		return doc, nil
	}

	liveBytes := snapshotByteSize(rs.liveSnapshot.Root)
	liveSnap, err := encodeSnapshotAsEntryBlock(rs.liveSnapshot, liveBytes)
	if err != nil {
		return SavefileDocument{}, err
	}
	doc.LiveEntry = liveSnap

	var undoGens, redoGens []uint64
	for _, s := range rs.undoStack {
		block, err := encodeSnapshotAsEntryBlock(s, snapshotByteSize(s.Root))
		if err != nil {
			return SavefileDocument{}, err
		}
		doc.UndoEntries = append(doc.UndoEntries, block)
		undoGens = append(undoGens, s.Generation)
	}
	for _, s := range rs.redoStack {
		block, err := encodeSnapshotAsEntryBlock(s, snapshotByteSize(s.Root))
		if err != nil {
			return SavefileDocument{}, err
		}
		doc.RedoEntries = append(doc.RedoEntries, block)
		redoGens = append(redoGens, s.Generation)
	}
	doc.StateMetadata = StateMetadata{
		LiveGeneration:  rs.liveSnapshot.Generation,
		UndoGenerations: undoGens,
		RedoGenerations: redoGens,
		ManualGc:        rs.options.ManualGarbageCollect,
		RamCacheEntries: uint64(rs.options.RamCacheEntries),
	}
	return doc, nil
}

func encodeSnapshotAsEntryBlock(snap cowSnapshot, byteSize uint64) (SavefileEntryBlock, error) {
	encoded, err := EncodeSnapshot(snap.Generation, flattenSnapshot(snap.Root))
	if err != nil {
		return SavefileEntryBlock{}, err
	}
	return SavefileEntryBlock{
		Metadata: EntryMetadata{Generation: snap.Generation, Bytes: byteSize, TimestampMs: nowMillis()},
		Snapshot: encoded,
	}, nil
}

func encodeJournalEntryBlock(e JournalEntry, generation uint64) (SavefileEntryBlock, error) {
	encoded, err := EncodeJournalEntry(e)
	if err != nil {
		return SavefileEntryBlock{}, err
	}
	return SavefileEntryBlock{
		Metadata:    EntryMetadata{Generation: generation, Bytes: entryByteEstimate(e), TimestampMs: e.TimestampMs},
		TimestampMs: e.TimestampMs,
		Snapshot:    encoded,
	}, nil
}

// encodeJournalAsEntryBlock captures the live materialized state (current
// cursor position) as a whole-subtree snapshot block, the journal-mode
// live entry's counterpart to a snapshot-mode liveSnapshot.
func encodeJournalAsEntryBlock(rs *rootState, entries []JournalEntry, cursor int) (SavefileEntryBlock, error) {
	snap, err := captureSnapshot(rs, uint64(cursor))
	if err != nil {
		return SavefileEntryBlock{}, err
	}
	return encodeSnapshotAsEntryBlock(snap, snapshotByteSize(snap.Root))
}

// ImportHistorySavefile loads a previously exported savefile and replaces
// root's current undo/redo state with its contents. applyOptions controls
// whether the savefile's retention/manual-gc settings overwrite the root's
// live Options as well, versus only its history stacks.
func (us *UndoableSpace) ImportHistorySavefile(rootPath, file string, applyOptions bool) error {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return newError(NotFound, "savefile %q not found", file)
		}
		return newError(UnknownError, "read savefile %q: %v", file, err)
	}
	doc, err := DecodeSavefile(data)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if applyOptions {
		rs.options.MaxEntries = int(doc.Options.MaxEntries)
		rs.options.MaxBytesRetained = doc.Options.MaxBytesRetained
		rs.options.RamCacheEntries = int(doc.Options.RamCacheEntries)
		rs.options.MaxDiskBytes = doc.Options.MaxDiskBytes
		rs.options.ManualGarbageCollect = doc.Options.ManualGarbageCollect
	}

	if rs.options.UseMutationJournal {
		rs.journal.Clear()
		for _, block := range doc.UndoEntries {
			entry, err := DecodeJournalEntry(block.Snapshot)
			if err != nil {
				return err
			}
			rs.journal.Append(entry, false)
		}
		for _, block := range doc.RedoEntries {
			entry, err := DecodeJournalEntry(block.Snapshot)
			if err != nil {
				return err
			}
			rs.journal.Append(entry, false)
		}
		rs.journal.SetRetentionPolicy(RetentionPolicy{MaxEntries: uint64(rs.options.MaxEntries), MaxBytes: rs.options.MaxBytesRetained})
		for i := rs.journal.Size(); i > len(doc.UndoEntries); i-- {
			rs.journal.Undo()
		}

		liveGen, entries, err := decodeSnapshotBlock(doc.LiveEntry)
		if err != nil {
			return err
		}
		liveSnap := buildSnapshotFromEntries(liveGen, entries)
		instantiateSnapshot(rs, liveSnap)
		return nil
	}

	rs.undoStack = rs.undoStack[:0]
	rs.redoStack = rs.redoStack[:0]
	for _, block := range doc.UndoEntries {
		gen, entries, err := decodeSnapshotBlock(block)
		if err != nil {
			return err
		}
		rs.undoStack = append(rs.undoStack, buildSnapshotFromEntries(gen, entries))
	}
	for _, block := range doc.RedoEntries {
		gen, entries, err := decodeSnapshotBlock(block)
		if err != nil {
			return err
		}
		rs.redoStack = append(rs.redoStack, buildSnapshotFromEntries(gen, entries))
	}
	liveGen, liveEntries, err := decodeSnapshotBlock(doc.LiveEntry)
	if err != nil {
		return err
	}
	rs.liveSnapshot = buildSnapshotFromEntries(liveGen, liveEntries)
	instantiateSnapshot(rs, rs.liveSnapshot)

	log.Info("history imported", "root", rs.root.Path, "file", file, "undo", len(rs.undoStack), "redo", len(rs.redoStack))
	return nil
}

func decodeSnapshotBlock(block SavefileEntryBlock) (uint64, []SnapshotEntry, error) {
	return DecodeSnapshot(block.Snapshot)
}

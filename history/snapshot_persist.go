package history

import "github.com/ethereum/go-ethereum/log"

// persistSnapshotToDisk writes every generation currently reachable from a
// snapshot-mode root (live, undo stack, redo stack) to its entries
// directory, then writes state.meta describing how they fit back together.
// A no-op for journal-mode roots or roots without persistence enabled.
func (rs *rootState) persistSnapshotToDisk() {
	if !rs.persistenceEnabled || rs.options.UseMutationJournal {
		return
	}

	diskBytes := snapshotByteSize(rs.liveSnapshot.Root)
	if err := writeSnapshotFile(rs.entriesDir, rs.liveSnapshot.Generation, flattenSnapshot(rs.liveSnapshot.Root)); err != nil {
		log.Warn("failed to persist live history snapshot", "root", rs.root.Path, "err", err)
		return
	}

	undoGens := make([]uint64, 0, len(rs.undoStack))
	for _, s := range rs.undoStack {
		if err := writeSnapshotFile(rs.entriesDir, s.Generation, flattenSnapshot(s.Root)); err != nil {
			log.Warn("failed to persist undo history snapshot", "root", rs.root.Path, "generation", s.Generation, "err", err)
			return
		}
		undoGens = append(undoGens, s.Generation)
		diskBytes += snapshotByteSize(s.Root)
	}

	redoGens := make([]uint64, 0, len(rs.redoStack))
	for _, s := range rs.redoStack {
		if err := writeSnapshotFile(rs.entriesDir, s.Generation, flattenSnapshot(s.Root)); err != nil {
			log.Warn("failed to persist redo history snapshot", "root", rs.root.Path, "generation", s.Generation, "err", err)
			return
		}
		redoGens = append(redoGens, s.Generation)
		diskBytes += snapshotByteSize(s.Root)
	}

	meta := StateMetadata{
		LiveGeneration:  rs.liveSnapshot.Generation,
		UndoGenerations: undoGens,
		RedoGenerations: redoGens,
		ManualGc:        rs.options.ManualGarbageCollect,
		RamCacheEntries: uint64(rs.options.RamCacheEntries),
	}
	if err := writeFileAtomic(rs.stateMetaFile, []byte(EncodeStateMeta(meta))); err != nil {
		log.Warn("failed to persist history state metadata", "root", rs.root.Path, "err", err)
		return
	}
	rs.telemetry.DiskEntries = uint64(len(undoGens) + len(redoGens) + 1)
	rs.telemetry.DiskBytes = diskBytes
}

// restoreSnapshotRootFromPersistence rebuilds a snapshot-mode root's undo
// and redo stacks from state.meta plus the generation files it names. A
// missing state.meta means nothing has been persisted yet and is not an
// error: the root simply starts empty.
func restoreSnapshotRootFromPersistence(rs *rootState) error {
	data, err := readFileCached(rs.stateMetaFile)
	if err != nil {
		if Is(err, NotFound) {
			return nil
		}
		return err
	}
	meta, err := ParseStateMeta(string(data))
	if err != nil {
		return err
	}

	rs.options.ManualGarbageCollect = meta.ManualGc
	if meta.RamCacheEntries != 0 {
		rs.options.RamCacheEntries = int(meta.RamCacheEntries)
	}

	rs.undoStack = rs.undoStack[:0]
	for _, gen := range meta.UndoGenerations {
		g, entries, err := readSnapshotFile(rs.entriesDir, gen)
		if err != nil {
			return err
		}
		rs.undoStack = append(rs.undoStack, buildSnapshotFromEntries(g, entries))
	}

	rs.redoStack = rs.redoStack[:0]
	for _, gen := range meta.RedoGenerations {
		g, entries, err := readSnapshotFile(rs.entriesDir, gen)
		if err != nil {
			return err
		}
		rs.redoStack = append(rs.redoStack, buildSnapshotFromEntries(g, entries))
	}

	g, entries, err := readSnapshotFile(rs.entriesDir, meta.LiveGeneration)
	if err != nil {
		return err
	}
	rs.liveSnapshot = buildSnapshotFromEntries(g, entries)
	rs.nextGen = meta.LiveGeneration + 1
	if rs.options.RestoreFromPersistence {
		instantiateSnapshot(rs, rs.liveSnapshot)
	}

	diskBytes := snapshotByteSize(rs.liveSnapshot.Root)
	for _, s := range rs.undoStack {
		diskBytes += snapshotByteSize(s.Root)
	}
	for _, s := range rs.redoStack {
		diskBytes += snapshotByteSize(s.Root)
	}
	rs.telemetry.DiskBytes = diskBytes
	rs.telemetry.DiskEntries = uint64(len(rs.undoStack) + len(rs.redoStack) + 1)

	log.Info("history restored from disk", "root", rs.root.Path, "undo", len(rs.undoStack), "redo", len(rs.redoStack))
	return nil
}

// compactDiskJournal rewrites a journal-mode root's on-disk journal file to
// hold exactly its current in-memory entries, used after a retention trim
// so the file doesn't keep growing once entries have been evicted from
// memory. A no-op for snapshot-mode roots or roots without a disk writer.
func (rs *rootState) compactDiskJournal() error {
	if rs.journalWriter == nil {
		return nil
	}
	if err := rs.journalWriter.Close(); err != nil {
		return err
	}
	entries := rs.journal.Entries()
	if err := compactJournalFile(rs.journalFilePath, entries, true); err != nil {
		return err
	}
	writer, err := openJournalFileWriter(rs.journalFilePath)
	if err != nil {
		return err
	}
	rs.journalWriter = writer

	var diskBytes uint64
	for _, e := range entries {
		diskBytes += entryByteEstimate(e)
	}
	rs.telemetry.DiskBytes = diskBytes
	rs.telemetry.DiskEntries = uint64(len(entries))
	return nil
}

package history

const (
	savefileMagic   uint32 = 0x504A4E4C // 'PJNL'
	savefileVersion uint32 = 1
)

// SavefileOptions is the subset of Options that round-trips through a
// savefile: the fields that shape retention and replay behavior on import.
type SavefileOptions struct {
	MaxEntries           uint64
	MaxBytesRetained     uint64
	RamCacheEntries      uint64
	MaxDiskBytes         uint64
	KeepLatestForMs      uint64
	ManualGarbageCollect bool
}

// SavefileEntryBlock pairs one generation's metadata with its encoded
// snapshot (snapshot-mode) or journal entry (journal-mode) payload.
type SavefileEntryBlock struct {
	Metadata    EntryMetadata
	TimestampMs uint64
	Snapshot    []byte
}

// SavefileDocument is the full exported state of one history root: its
// path, its options, the live entry, and the undo/redo stacks in
// oldest-to-newest order.
type SavefileDocument struct {
	RootPath      string
	Options       SavefileOptions
	StateMetadata StateMetadata
	LiveEntry     SavefileEntryBlock
	UndoEntries   []SavefileEntryBlock
	RedoEntries   []SavefileEntryBlock
}

func encodeSavefileEntry(w *byteWriter, e SavefileEntryBlock) {
	meta := EncodeEntryMeta(e.Metadata)
	w.bytes([]byte(meta))
	w.u64(e.TimestampMs)
	w.bytes(e.Snapshot)
}

func decodeSavefileEntry(r *byteReader) (SavefileEntryBlock, error) {
	metaBytes, err := r.bytes()
	if err != nil {
		return SavefileEntryBlock{}, newError(MalformedInput, "savefile entry truncated (metadata)")
	}
	meta, err := ParseEntryMeta(string(metaBytes))
	if err != nil {
		return SavefileEntryBlock{}, err
	}
	timestamp, err := r.u64()
	if err != nil {
		return SavefileEntryBlock{}, newError(MalformedInput, "savefile entry truncated (timestamp)")
	}
	snapshot, err := r.bytes()
	if err != nil {
		return SavefileEntryBlock{}, newError(MalformedInput, "savefile entry truncated (snapshot)")
	}
	return SavefileEntryBlock{Metadata: meta, TimestampMs: timestamp, Snapshot: snapshot}, nil
}

func encodeSavefileEntryList(w *byteWriter, entries []SavefileEntryBlock) {
	w.u32(uint32(len(entries)))
	for _, e := range entries {
		encodeSavefileEntry(w, e)
	}
}

func decodeSavefileEntryList(r *byteReader) ([]SavefileEntryBlock, error) {
	count, err := r.u32()
	if err != nil {
		return nil, newError(MalformedInput, "savefile missing entry list count")
	}
	out := make([]SavefileEntryBlock, 0, count)
	for i := uint32(0); i < count; i++ {
		entry, err := decodeSavefileEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// EncodeSavefile serializes a SavefileDocument: magic, version, root path,
// the options block, the state metadata block, the live entry, then the
// undo and redo entry lists.
func EncodeSavefile(doc SavefileDocument) ([]byte, error) {
	w := newByteWriter(256 + len(doc.LiveEntry.Snapshot))
	w.u32(savefileMagic)
	w.u32(savefileVersion)

	w.string(doc.RootPath)

	w.u64(doc.Options.MaxEntries)
	w.u64(doc.Options.MaxBytesRetained)
	w.u64(doc.Options.RamCacheEntries)
	w.u64(doc.Options.MaxDiskBytes)
	w.u64(doc.Options.KeepLatestForMs)
	w.bool(doc.Options.ManualGarbageCollect)

	stateBytes := EncodeStateMeta(doc.StateMetadata)
	w.bytes([]byte(stateBytes))

	encodeSavefileEntry(w, doc.LiveEntry)
	encodeSavefileEntryList(w, doc.UndoEntries)
	encodeSavefileEntryList(w, doc.RedoEntries)

	return w.Bytes(), nil
}

// DecodeSavefile parses the wire form produced by EncodeSavefile, rejecting
// unrecognized magic/version and any truncated section.
func DecodeSavefile(data []byte) (SavefileDocument, error) {
	r := newByteReader(data)

	magic, err := r.u32()
	if err != nil || magic != savefileMagic {
		return SavefileDocument{}, newError(MalformedInput, "unrecognized savefile magic")
	}
	version, err := r.u32()
	if err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile missing version")
	}
	if version != savefileVersion {
		return SavefileDocument{}, newError(MalformedInput, "unsupported savefile version %d", version)
	}

	var doc SavefileDocument
	if doc.RootPath, err = r.string(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (root path)")
	}

	if doc.Options.MaxEntries, err = r.u64(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (max entries)")
	}
	if doc.Options.MaxBytesRetained, err = r.u64(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (max bytes retained)")
	}
	if doc.Options.RamCacheEntries, err = r.u64(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (ram cache entries)")
	}
	if doc.Options.MaxDiskBytes, err = r.u64(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (max disk bytes)")
	}
	if doc.Options.KeepLatestForMs, err = r.u64(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (keep latest for)")
	}
	if doc.Options.ManualGarbageCollect, err = r.bool(); err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (manual gc flag)")
	}

	stateBytes, err := r.bytes()
	if err != nil {
		return SavefileDocument{}, newError(MalformedInput, "savefile truncated (state metadata)")
	}
	if doc.StateMetadata, err = ParseStateMeta(string(stateBytes)); err != nil {
		return SavefileDocument{}, err
	}

	if doc.LiveEntry, err = decodeSavefileEntry(r); err != nil {
		return SavefileDocument{}, err
	}
	if doc.UndoEntries, err = decodeSavefileEntryList(r); err != nil {
		return SavefileDocument{}, err
	}
	if doc.RedoEntries, err = decodeSavefileEntryList(r); err != nil {
		return SavefileDocument{}, err
	}

	if uint64(len(doc.UndoEntries)) != uint64(len(doc.StateMetadata.UndoGenerations)) {
		return SavefileDocument{}, newError(MalformedInput, "savefile undo entry count does not match state metadata")
	}
	if uint64(len(doc.RedoEntries)) != uint64(len(doc.StateMetadata.RedoGenerations)) {
		return SavefileDocument{}, newError(MalformedInput, "savefile redo entry count does not match state metadata")
	}

	return doc, nil
}

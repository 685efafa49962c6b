package history

// OperationKind distinguishes the two mutation shapes the history engine
// journals: an insert (forward payload written, inverse is the prior value)
// and a take (forward payload absent, inverse is the taken value).
type OperationKind uint8

const (
	OpInsert OperationKind = 0
	OpTake   OperationKind = 1
)

// maxOperationKind is the highest OperationKind value a decoder accepts;
// anything above it is a malformed enum byte.
const maxOperationKind = OpTake

// SerializedPayload is a binary-serializable NodeData: Present
// distinguishes "no value" from "zero-length value", matching the
// invariant that absent payloads must carry zero bytes.
type SerializedPayload struct {
	Present bool
	Bytes   []byte
}

// JournalEntry is one reversible record in the mutation journal: the
// forward and inverse payload for a single path, plus enough metadata to
// order it, tag it, and mark transaction boundaries.
type JournalEntry struct {
	Operation    OperationKind
	Path         string
	Tag          string
	Value        SerializedPayload // forward payload; may be absent for Take
	InverseValue SerializedPayload // payload that restores the prior state
	TimestampMs  uint64
	MonotonicNs  uint64
	Sequence     uint64
	Barrier      bool // marks a transaction boundary
}

const (
	journalMagic       uint32 = 0x50534A4C // 'PSJL'
	journalVersion     uint16 = 2
	journalBarrierFlag uint8  = 0x01
)

// EncodeJournalEntry serializes a JournalEntry to its binary wire form:
// magic, version, operation/flag/reserved, the u64 wall-clock timestamp,
// monotonic time and sequence number, the path,
// both payload blobs, then the tag (version-2 only).
func EncodeJournalEntry(e JournalEntry) ([]byte, error) {
	w := newByteWriter(64 + len(e.Path) + len(e.Tag) + len(e.Value.Bytes) + len(e.InverseValue.Bytes))
	w.u32(journalMagic)
	w.u16(journalVersion)

	w.u8(uint8(e.Operation))
	var flags uint8
	if e.Barrier {
		flags |= journalBarrierFlag
	}
	w.u8(flags)
	w.u16(0) // reserved

	w.u64(e.TimestampMs)
	w.u64(e.MonotonicNs)
	w.u64(e.Sequence)

	w.string(e.Path)
	writePayload(w, e.Value)
	writePayload(w, e.InverseValue)
	w.string(e.Tag)

	return w.Bytes(), nil
}

func writePayload(w *byteWriter, p SerializedPayload) {
	w.bool(p.Present)
	w.bytes(p.Bytes)
}

func readPayload(r *byteReader) (SerializedPayload, error) {
	present, err := r.bool()
	if err != nil {
		return SerializedPayload{}, newError(MalformedInput, "journal entry truncated (payload flag)")
	}
	b, err := r.bytes()
	if err != nil {
		return SerializedPayload{}, newError(MalformedInput, "journal entry truncated (payload bytes)")
	}
	if !present && len(b) != 0 {
		return SerializedPayload{}, newError(MalformedInput, "journal payload flagged absent but carries bytes")
	}
	return SerializedPayload{Present: present, Bytes: b}, nil
}

// DecodeJournalEntry parses the wire form produced by EncodeJournalEntry.
// Version-1 payloads (no tag section) decode with an empty tag.
func DecodeJournalEntry(data []byte) (JournalEntry, error) {
	r := newByteReader(data)

	magic, err := r.u32()
	if err != nil || magic != journalMagic {
		return JournalEntry{}, newError(MalformedInput, "journal entry missing magic header")
	}
	version, err := r.u16()
	if err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry missing version")
	}
	if version < 1 || version > journalVersion {
		return JournalEntry{}, newError(MalformedInput, "unsupported journal entry version %d", version)
	}

	opByte, err := r.u8()
	if err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (operation)")
	}
	flagByte, err := r.u8()
	if err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (flags)")
	}
	if _, err := r.u16(); err != nil { // reserved
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (reserved)")
	}
	if opByte > uint8(maxOperationKind) {
		return JournalEntry{}, newError(MalformedInput, "unknown journal operation kind %d", opByte)
	}

	var entry JournalEntry
	entry.Operation = OperationKind(opByte)
	entry.Barrier = flagByte&journalBarrierFlag != 0

	if entry.TimestampMs, err = r.u64(); err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (timestamp)")
	}
	if entry.MonotonicNs, err = r.u64(); err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (monotonic)")
	}
	if entry.Sequence, err = r.u64(); err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (sequence)")
	}

	if entry.Path, err = r.string(); err != nil {
		return JournalEntry{}, newError(MalformedInput, "journal entry truncated (path)")
	}

	if entry.Value, err = readPayload(r); err != nil {
		return JournalEntry{}, err
	}
	if entry.InverseValue, err = readPayload(r); err != nil {
		return JournalEntry{}, err
	}

	if version >= 2 {
		if entry.Tag, err = r.string(); err != nil {
			return JournalEntry{}, newError(MalformedInput, "journal entry truncated (tag)")
		}
	}

	return entry, nil
}

// entryByteEstimate returns the payload-size estimate used for retention
// accounting: fixed scalars plus every variable-length field the entry
// actually carries.
func entryByteEstimate(e JournalEntry) uint64 {
	const fixed = 4 + 2 + 1 + 1 + 2 + 8 + 8 + 8 // magic+version+op+flags+reserved+3×u64
	total := uint64(fixed)
	total += 4 + uint64(len(e.Path))
	total += 1 + 4 + uint64(len(e.Value.Bytes))
	total += 1 + 4 + uint64(len(e.InverseValue.Bytes))
	total += 4 + uint64(len(e.Tag))
	return total
}

package history

import "fmt"

// SnapshotEntry is one non-empty payload captured by a snapshot, addressed
// by its path components relative to the history root.
type SnapshotEntry struct {
	Components []string
	Payload    []byte
}

const (
	snapshotMagic   uint32 = 0x50534E50 // 'PSNP'
	snapshotVersion uint32 = 1
)

// EncodeSnapshot serializes a generation number plus its flattened entry
// list: magic, version, generation, entry count, then each entry as a
// component list (count + length-prefixed strings) followed by a
// length-prefixed payload.
func EncodeSnapshot(generation uint64, entries []SnapshotEntry) ([]byte, error) {
	w := newByteWriter(16 + 32*len(entries))
	w.u32(snapshotMagic)
	w.u32(snapshotVersion)
	w.u64(generation)
	w.u32(uint32(len(entries)))

	for _, e := range entries {
		w.u32(uint32(len(e.Components)))
		for _, c := range e.Components {
			w.string(c)
		}
		w.bytes(e.Payload)
	}

	return w.Bytes(), nil
}

// DecodeSnapshot parses the wire form produced by EncodeSnapshot, returning
// the generation and the flattened entry list for the caller to replay
// against an empty prototype.
func DecodeSnapshot(data []byte) (uint64, []SnapshotEntry, error) {
	r := newByteReader(data)

	magic, err := r.u32()
	if err != nil || magic != snapshotMagic {
		return 0, nil, newError(MalformedInput, "snapshot missing magic header")
	}
	version, err := r.u32()
	if err != nil {
		return 0, nil, newError(MalformedInput, "snapshot missing version")
	}
	if version != snapshotVersion {
		return 0, nil, newError(MalformedInput, "unsupported snapshot version %d", version)
	}
	generation, err := r.u64()
	if err != nil {
		return 0, nil, newError(MalformedInput, "snapshot missing generation")
	}
	count, err := r.u32()
	if err != nil {
		return 0, nil, newError(MalformedInput, "snapshot missing entry count")
	}

	entries := make([]SnapshotEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		componentCount, err := r.u32()
		if err != nil {
			return 0, nil, newError(MalformedInput, "snapshot entry %d malformed component count", i)
		}
		components := make([]string, 0, componentCount)
		for c := uint32(0); c < componentCount; c++ {
			s, err := r.string()
			if err != nil {
				return 0, nil, newError(MalformedInput, "snapshot entry %d malformed component %d", i, c)
			}
			components = append(components, s)
		}
		payload, err := r.bytes()
		if err != nil {
			return 0, nil, newError(MalformedInput, "snapshot entry %d malformed payload", i)
		}
		entries = append(entries, SnapshotEntry{Components: components, Payload: payload})
	}

	return generation, entries, nil
}

// SnapshotFileStem returns the zero-padded 16-hex-digit filename stem used
// to name one generation's snapshot file on disk, so generations sort
// lexicographically in the same order as numerically.
func SnapshotFileStem(generation uint64) string {
	return fmt.Sprintf("%016x", generation)
}

package history

import (
	"strconv"
	"strings"
)

const (
	entryMetaVersion uint32 = 1
	stateMetaVersion uint32 = 1
)

// EntryMetadata describes one retained snapshot generation: which
// generation it is, how many bytes it occupies, and when it was captured.
// It is stored as human-readable key:value text rather than binary so the
// savefile's bookkeeping section can be inspected with a text editor.
type EntryMetadata struct {
	Generation  uint64
	Bytes       uint64
	TimestampMs uint64
}

// StateMetadata describes the shape of one root's undo/redo stacks at the
// moment a savefile was written.
type StateMetadata struct {
	LiveGeneration  uint64
	UndoGenerations []uint64
	RedoGenerations []uint64
	ManualGc        bool
	RamCacheEntries uint64
}

func joinGenerations(gens []uint64) string {
	parts := make([]string, len(gens))
	for i, g := range gens {
		parts[i] = strconv.FormatUint(g, 10)
	}
	return strings.Join(parts, ",")
}

func parseGenerations(value string) ([]uint64, error) {
	if value == "" {
		return nil, nil
	}
	tokens := strings.Split(value, ",")
	out := make([]uint64, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return nil, newError(MalformedInput, "failed to parse generation list")
		}
		out = append(out, n)
	}
	return out, nil
}

func encodeKeyValueLines(pairs [][2]string) string {
	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p[0])
		b.WriteByte(':')
		b.WriteString(p[1])
		b.WriteByte('\n')
	}
	return b.String()
}

func parseKeyValueLines(text, context string) (map[string]string, error) {
	values := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, newError(MalformedInput, "%s invalid line", context)
		}
		values[line[:idx]] = line[idx+1:]
	}
	return values, nil
}

func requireUint64Field(values map[string]string, key, missingMsg string) (uint64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, newError(MalformedInput, "%s", missingMsg)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, newError(MalformedInput, "invalid %s field", key)
	}
	return n, nil
}

// EncodeEntryMeta renders an EntryMetadata as key:value text lines.
func EncodeEntryMeta(meta EntryMetadata) string {
	return encodeKeyValueLines([][2]string{
		{"version", strconv.FormatUint(uint64(entryMetaVersion), 10)},
		{"generation", strconv.FormatUint(meta.Generation, 10)},
		{"bytes", strconv.FormatUint(meta.Bytes, 10)},
		{"timestamp_ms", strconv.FormatUint(meta.TimestampMs, 10)},
	})
}

// ParseEntryMeta parses the text form produced by EncodeEntryMeta.
func ParseEntryMeta(text string) (EntryMetadata, error) {
	values, err := parseKeyValueLines(text, "entry metadata")
	if err != nil {
		return EntryMetadata{}, err
	}

	version, err := requireUint64Field(values, "version", "entry metadata missing version")
	if err != nil {
		return EntryMetadata{}, err
	}
	if version != uint64(entryMetaVersion) {
		return EntryMetadata{}, newError(MalformedInput, "unsupported entry metadata version %d", version)
	}

	generation, err := requireUint64Field(values, "generation", "entry metadata missing generation")
	if err != nil {
		return EntryMetadata{}, err
	}
	bytesField, err := requireUint64Field(values, "bytes", "entry metadata missing bytes")
	if err != nil {
		return EntryMetadata{}, err
	}
	timestamp, err := requireUint64Field(values, "timestamp_ms", "entry metadata missing timestamp_ms")
	if err != nil {
		return EntryMetadata{}, err
	}

	return EntryMetadata{Generation: generation, Bytes: bytesField, TimestampMs: timestamp}, nil
}

// EncodeStateMeta renders a StateMetadata as key:value text lines.
func EncodeStateMeta(meta StateMetadata) string {
	manualGc := "0"
	if meta.ManualGc {
		manualGc = "1"
	}
	return encodeKeyValueLines([][2]string{
		{"version", strconv.FormatUint(uint64(stateMetaVersion), 10)},
		{"live_generation", strconv.FormatUint(meta.LiveGeneration, 10)},
		{"undo", joinGenerations(meta.UndoGenerations)},
		{"redo", joinGenerations(meta.RedoGenerations)},
		{"manual_gc", manualGc},
		{"ram_cache_entries", strconv.FormatUint(meta.RamCacheEntries, 10)},
	})
}

// ParseStateMeta parses the text form produced by EncodeStateMeta.
func ParseStateMeta(text string) (StateMetadata, error) {
	values, err := parseKeyValueLines(text, "state metadata")
	if err != nil {
		return StateMetadata{}, err
	}

	version, err := requireUint64Field(values, "version", "state metadata missing version")
	if err != nil {
		return StateMetadata{}, err
	}
	if version != uint64(stateMetaVersion) {
		return StateMetadata{}, newError(MalformedInput, "unsupported state metadata version %d", version)
	}

	liveGeneration, err := requireUint64Field(values, "live_generation", "state metadata missing live_generation")
	if err != nil {
		return StateMetadata{}, err
	}

	undoRaw, ok := values["undo"]
	if !ok {
		return StateMetadata{}, newError(MalformedInput, "state metadata missing undo")
	}
	undoGens, err := parseGenerations(undoRaw)
	if err != nil {
		return StateMetadata{}, err
	}

	redoRaw, ok := values["redo"]
	if !ok {
		return StateMetadata{}, newError(MalformedInput, "state metadata missing redo")
	}
	redoGens, err := parseGenerations(redoRaw)
	if err != nil {
		return StateMetadata{}, err
	}

	manualRaw, ok := values["manual_gc"]
	if !ok {
		return StateMetadata{}, newError(MalformedInput, "state metadata missing manual_gc")
	}
	manualFlag, err := strconv.ParseUint(manualRaw, 10, 64)
	if err != nil {
		return StateMetadata{}, newError(MalformedInput, "invalid manual_gc flag")
	}

	ramCacheEntries, err := requireUint64Field(values, "ram_cache_entries", "state metadata missing ram_cache_entries")
	if err != nil {
		return StateMetadata{}, err
	}

	return StateMetadata{
		LiveGeneration:  liveGeneration,
		UndoGenerations: undoGens,
		RedoGenerations: redoGens,
		ManualGc:        manualFlag != 0,
		RamCacheEntries: ramCacheEntries,
	}, nil
}

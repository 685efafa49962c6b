package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

// formatHistoryStats renders a HistoryStats snapshot as key:value lines,
// the same shape the rest of the package uses for text-based telemetry
// reads under `_history/stats`.
func formatHistoryStats(s HistoryStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "undoCount:%d\n", s.Counts.Undo)
	fmt.Fprintf(&b, "redoCount:%d\n", s.Counts.Redo)
	fmt.Fprintf(&b, "manualGarbageCollect:%t\n", s.Counts.ManualGarbageCollect)
	fmt.Fprintf(&b, "diskEntries:%d\n", s.Counts.DiskEntries)
	fmt.Fprintf(&b, "bytesTotal:%d\n", s.Bytes.Total)
	fmt.Fprintf(&b, "bytesUndo:%d\n", s.Bytes.Undo)
	fmt.Fprintf(&b, "bytesRedo:%d\n", s.Bytes.Redo)
	fmt.Fprintf(&b, "bytesLive:%d\n", s.Bytes.Live)
	fmt.Fprintf(&b, "bytesDisk:%d\n", s.Bytes.Disk)
	fmt.Fprintf(&b, "trimOperations:%d\n", s.Trim.OperationCount)
	fmt.Fprintf(&b, "trimmedEntries:%d\n", s.Trim.Entries)
	fmt.Fprintf(&b, "trimmedBytes:%d\n", s.Trim.Bytes)
	fmt.Fprintf(&b, "lastTrimTimestampMs:%d\n", s.Trim.LastTimestampMs)
	fmt.Fprintf(&b, "maxEntries:%d\n", s.Limits.MaxEntries)
	fmt.Fprintf(&b, "maxBytesRetained:%d\n", s.Limits.MaxBytesRetained)
	fmt.Fprintf(&b, "keepLatestForMs:%d\n", s.Limits.KeepLatestForMs)
	fmt.Fprintf(&b, "ramCacheEntries:%d\n", s.Limits.RamCacheEntries)
	fmt.Fprintf(&b, "maxDiskBytes:%d\n", s.Limits.MaxDiskBytes)
	fmt.Fprintf(&b, "persistHistory:%t\n", s.Limits.PersistHistory)
	fmt.Fprintf(&b, "restoreFromPersistence:%t\n", s.Limits.RestoreFromPersistence)
	fmt.Fprintf(&b, "unsupportedTotal:%d\n", s.Unsupported.Total)
	return b.String()
}

// readStatsField resolves one slash-separated field under `_history/stats/...`,
// e.g. "undoCount" or "bytes/total", to its scalar text value.
func readStatsField(s HistoryStats, field string) (pathspace.NodeData, bool, error) {
	switch field {
	case "undoCount":
		return textField(s.Counts.Undo), true, nil
	case "redoCount":
		return textField(s.Counts.Redo), true, nil
	case "manualGarbageCollect":
		return boolField(s.Counts.ManualGarbageCollect), true, nil
	case "diskEntries":
		return textField(s.Counts.DiskEntries), true, nil
	case "bytes/total", "bytesTotal":
		return textField(s.Bytes.Total), true, nil
	case "bytes/undo", "bytesUndo":
		return textField(s.Bytes.Undo), true, nil
	case "bytes/redo", "bytesRedo":
		return textField(s.Bytes.Redo), true, nil
	case "bytes/live", "bytesLive":
		return textField(s.Bytes.Live), true, nil
	case "bytes/disk", "bytesDisk":
		return textField(s.Bytes.Disk), true, nil
	case "limits/maxEntries":
		return textField(s.Limits.MaxEntries), true, nil
	case "limits/maxBytesRetained":
		return textField(s.Limits.MaxBytesRetained), true, nil
	case "limits/persistHistory":
		return boolField(s.Limits.PersistHistory), true, nil
	default:
		return pathspace.NodeData{}, false, newError(InvalidPath, "unsupported stats field %q", field)
	}
}

func readLastOperationField(op *lastOperation, field string) (pathspace.NodeData, bool, error) {
	if op == nil {
		return pathspace.NodeData{}, false, newError(NoObjectFound, "no operation has been recorded yet")
	}
	field = strings.TrimPrefix(field, "/")
	switch field {
	case "", "type":
		if field == "" {
			return pathspace.NodeData{Bytes: []byte(formatLastOperation(op))}, true, nil
		}
		return pathspace.NodeData{Bytes: []byte(op.Type)}, true, nil
	case "timestampMs":
		return textField(op.TimestampMs), true, nil
	case "durationMs":
		return textField(op.DurationMs), true, nil
	case "success":
		return boolField(op.Success), true, nil
	case "tag":
		return pathspace.NodeData{Bytes: []byte(op.Tag)}, true, nil
	case "message":
		return pathspace.NodeData{Bytes: []byte(op.Message)}, true, nil
	default:
		return pathspace.NodeData{}, false, newError(InvalidPath, "unsupported lastOperation field %q", field)
	}
}

func formatLastOperation(op *lastOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "type:%s\n", op.Type)
	fmt.Fprintf(&b, "timestampMs:%d\n", op.TimestampMs)
	fmt.Fprintf(&b, "durationMs:%d\n", op.DurationMs)
	fmt.Fprintf(&b, "success:%t\n", op.Success)
	fmt.Fprintf(&b, "undoCountBefore:%d\n", op.UndoCountBefore)
	fmt.Fprintf(&b, "undoCountAfter:%d\n", op.UndoCountAfter)
	fmt.Fprintf(&b, "redoCountBefore:%d\n", op.RedoCountBefore)
	fmt.Fprintf(&b, "redoCountAfter:%d\n", op.RedoCountAfter)
	fmt.Fprintf(&b, "bytesBefore:%d\n", op.BytesBefore)
	fmt.Fprintf(&b, "bytesAfter:%d\n", op.BytesAfter)
	fmt.Fprintf(&b, "tag:%s\n", op.Tag)
	fmt.Fprintf(&b, "message:%s\n", op.Message)
	return b.String()
}

func readUnsupportedField(u HistoryUnsupportedStats, field string) (pathspace.NodeData, bool, error) {
	field = strings.TrimPrefix(field, "/")
	switch {
	case field == "" || field == "total":
		if field == "total" {
			return textField(u.Total), true, nil
		}
		return pathspace.NodeData{Bytes: []byte(formatUnsupported(u))}, true, nil
	default:
		return pathspace.NodeData{}, false, newError(InvalidPath, "unsupported unsupported-log field %q", field)
	}
}

func formatUnsupported(u HistoryUnsupportedStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "total:%d\n", u.Total)
	for _, r := range u.Recent {
		fmt.Fprintf(&b, "%s\t%s\t%d\t%d\n", r.Path, r.Reason, r.Occurrences, r.LastSeenMs)
	}
	return b.String()
}

func textField(v uint64) pathspace.NodeData {
	return pathspace.NodeData{Bytes: []byte(strconv.FormatUint(v, 10))}
}

func boolField(v bool) pathspace.NodeData {
	return pathspace.NodeData{Bytes: []byte(strconv.FormatBool(v))}
}

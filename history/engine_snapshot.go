package history

import (
	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

// captureSnapshot walks the live subtree under rs.root and builds an
// immutable cowSnapshot of its current contents. It fails closed: the
// first unsupported payload it finds aborts the whole capture, since a
// partial snapshot would silently lose data on restore.
func captureSnapshot(rs *rootState, generation uint64) (cowSnapshot, error) {
	snap := emptySnapshot()
	snap.Generation = generation

	var walkErr error
	var failPath string
	var failReason string

	err := rs.inner.Walk(rs.root.Components, func(relative []string, data pathspace.NodeData) error {
		reason, ok := classifyUnsupported(data)
		if !ok {
			failPath = joinRootRelative(rs.root, relative)
			failReason = reason
			walkErr = newError(NotSupported, "%s at %s", reason, failPath)
			return walkErr
		}
		snap = applyMutation(snap, generation, cowMutation{Components: relative, Payload: data.Bytes})
		return nil
	})
	if err != nil {
		rs.telemetry.unsupported.record(failPath, failReason, nowMillis())
		return cowSnapshot{}, walkErr
	}
	return snap, nil
}

// instantiateSnapshot clears the live subtree under rs.root and replays
// every entry in snap onto it, making the live space match snap exactly.
func instantiateSnapshot(rs *rootState, snap cowSnapshot) {
	clearLiveSubtree(rs)
	for _, e := range flattenSnapshot(snap.Root) {
		full := append(append([]string{}, rs.root.Components...), e.Components...)
		rs.inner.SetPayload(full, pathspace.NodeData{Bytes: e.Payload})
	}
}

func clearLiveSubtree(rs *rootState) {
	for _, name := range rs.inner.ChildNames(rs.root.Components) {
		rs.inner.DeleteChild(rs.root.Components, name)
	}
	rs.inner.ClearPayload(rs.root.Components)
}

func joinRootRelative(root HistoryRoot, relative []string) string {
	full := append(append([]string{}, root.Components...), relative...)
	return "/" + joinComponents(full)
}

func joinComponents(components []string) string {
	out := ""
	for i, c := range components {
		if i > 0 {
			out += "/"
		}
		out += c
	}
	return out
}

// snapshotModePush records a mutation boundary in snapshot mode: the
// pre-mutation state is captured and pushed onto the undo stack, the redo
// stack is cleared, and retention is enforced over the combined undo and
// redo byte budget.
func snapshotModePush(rs *rootState) error {
	pre, err := captureSnapshot(rs, rs.liveSnapshot.Generation)
	if err != nil {
		return err
	}
	rs.undoStack = append(rs.undoStack, pre)
	rs.redoStack = nil
	enforceSnapshotRetention(rs)
	return nil
}

func enforceSnapshotRetention(rs *rootState) {
	maxEntries := uint64(rs.options.MaxEntries)
	maxBytes := rs.options.MaxBytesRetained

	for len(rs.undoStack) > 0 {
		total := uint64(len(rs.undoStack) + len(rs.redoStack))
		bytesTotal := snapshotStackBytes(rs.undoStack) + snapshotStackBytes(rs.redoStack)
		overEntries := maxEntries != 0 && total > maxEntries
		overBytes := maxBytes != 0 && bytesTotal > maxBytes
		if !overEntries && !overBytes {
			break
		}
		removed := rs.undoStack[0]
		rs.undoStack = rs.undoStack[1:]
		rs.telemetry.TrimmedEntries++
		rs.telemetry.TrimmedBytes += snapshotByteSize(removed.Root)
	}
}

func snapshotStackBytes(stack []cowSnapshot) uint64 {
	var total uint64
	for _, s := range stack {
		total += snapshotByteSize(s.Root)
	}
	return total
}

// snapshotUndo pops the most recent undo entry, pushes the current live
// state onto redo, and instantiates the popped entry as the new live
// state. Returns false if there was nothing to undo.
func snapshotUndo(rs *rootState) bool {
	if len(rs.undoStack) == 0 {
		return false
	}
	target := rs.undoStack[len(rs.undoStack)-1]
	rs.undoStack = rs.undoStack[:len(rs.undoStack)-1]

	current, err := captureSnapshot(rs, rs.liveSnapshot.Generation)
	if err == nil {
		rs.redoStack = append(rs.redoStack, current)
	}

	instantiateSnapshot(rs, target)
	rs.liveSnapshot = target
	return true
}

// snapshotRedo is the mirror of snapshotUndo: pop redo, push current to
// undo, instantiate.
func snapshotRedo(rs *rootState) bool {
	if len(rs.redoStack) == 0 {
		return false
	}
	target := rs.redoStack[len(rs.redoStack)-1]
	rs.redoStack = rs.redoStack[:len(rs.redoStack)-1]

	current, err := captureSnapshot(rs, rs.liveSnapshot.Generation)
	if err == nil {
		rs.undoStack = append(rs.undoStack, current)
	}

	instantiateSnapshot(rs, target)
	rs.liveSnapshot = target
	return true
}

package history

import (
	"testing"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

func newTestRootState(t *testing.T, opts Options) (*rootState, *pathspace.Space) {
	t.Helper()
	root, err := newHistoryRoot("/doc")
	if err != nil {
		t.Fatalf("newHistoryRoot: %v", err)
	}
	inner := pathspace.NewSpace()
	return newRootState(root, opts, inner), inner
}

func TestCaptureSnapshotFlattensLiveSubtree(t *testing.T) {
	rs, inner := newTestRootState(t, Options{})
	inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("hello")})
	inner.Insert("/doc/section/body", pathspace.NodeData{Bytes: []byte("world")})

	snap, err := captureSnapshot(rs, 1)
	if err != nil {
		t.Fatalf("captureSnapshot: %v", err)
	}
	entries := flattenSnapshot(snap.Root)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
}

func TestCaptureSnapshotRejectsUnsupportedPayload(t *testing.T) {
	rs, inner := newTestRootState(t, Options{})
	inner.Insert("/doc/nested", pathspace.NodeData{Nested: true})

	if _, err := captureSnapshot(rs, 1); !Is(err, NotSupported) {
		t.Fatalf("expected NotSupported for nested payload, got %v", err)
	}
	total, records := rs.telemetry.unsupported.Snapshot()
	if total != 1 || len(records) != 1 {
		t.Fatalf("expected one unsupported payload recorded, got total=%d records=%d", total, len(records))
	}
}

func TestInstantiateSnapshotReplacesLiveState(t *testing.T) {
	rs, inner := newTestRootState(t, Options{})
	inner.Insert("/doc/stale", pathspace.NodeData{Bytes: []byte("old")})

	snap := emptySnapshot()
	snap = applyMutation(snap, 1, cowMutation{Components: []string{"fresh"}, Payload: []byte("new")})
	instantiateSnapshot(rs, snap)

	if _, ok, _ := inner.Read("/doc/stale"); ok {
		t.Fatalf("expected stale value to be cleared by instantiate")
	}
	data, ok, err := inner.Read("/doc/fresh")
	if err != nil || !ok || string(data.Bytes) != "new" {
		t.Fatalf("expected fresh value after instantiate, got %+v ok=%v err=%v", data, ok, err)
	}
}

func TestSnapshotModePushAndUndoRedo(t *testing.T) {
	rs, inner := newTestRootState(t, Options{})
	inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")})

	if err := snapshotModePush(rs); err != nil {
		t.Fatalf("snapshotModePush: %v", err)
	}
	inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")})

	if !snapshotUndo(rs) {
		t.Fatalf("expected undo to succeed")
	}
	data, ok, _ := inner.Read("/doc/title")
	if !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after undo, got %+v ok=%v", data, ok)
	}

	if !snapshotRedo(rs) {
		t.Fatalf("expected redo to succeed")
	}
	data, ok, _ = inner.Read("/doc/title")
	if !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected v2 after redo, got %+v ok=%v", data, ok)
	}
}

func TestSnapshotModePushClearsRedoStack(t *testing.T) {
	rs, inner := newTestRootState(t, Options{})
	inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")})
	if err := snapshotModePush(rs); err != nil {
		t.Fatalf("push: %v", err)
	}
	inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")})
	if !snapshotUndo(rs) {
		t.Fatalf("expected undo to succeed")
	}
	if len(rs.redoStack) == 0 {
		t.Fatalf("expected redo entry before new push")
	}

	if err := snapshotModePush(rs); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(rs.redoStack) != 0 {
		t.Fatalf("expected new push to clear the redo stack, got %d entries", len(rs.redoStack))
	}
}

func TestEnforceSnapshotRetentionCapsEntryCount(t *testing.T) {
	rs, inner := newTestRootState(t, Options{MaxEntries: 1})
	for i := 0; i < 3; i++ {
		inner.Insert("/doc/title", pathspace.NodeData{Bytes: []byte{byte(i)}})
		if err := snapshotModePush(rs); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if len(rs.undoStack) != 1 {
		t.Fatalf("expected retention to cap undo stack at 1, got %d", len(rs.undoStack))
	}
	if rs.telemetry.TrimmedEntries == 0 {
		t.Fatalf("expected trimmed entries to be recorded")
	}
}

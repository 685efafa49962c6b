package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

func newUndoableSpace() *UndoableSpace {
	return NewUndoableSpace(pathspace.NewSpace(), Options{})
}

func TestSnapshotModeUndoRedoRoundTrip(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{MaxEntries: 2}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}

	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v3")}); err != nil {
		t.Fatalf("insert v3: %v", err)
	}

	if err := us.Undo("/doc", 1); err != nil {
		t.Fatalf("undo: %v", err)
	}
	data, ok, err := us.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected v2 after one undo, got %+v ok=%v err=%v", data, ok, err)
	}

	if err := us.Redo("/doc", 1); err != nil {
		t.Fatalf("redo: %v", err)
	}
	data, ok, err = us.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v3" {
		t.Fatalf("expected v3 after redo, got %+v ok=%v err=%v", data, ok, err)
	}
}

func TestSnapshotModeRetentionIsBounded(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{MaxEntries: 2}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte{byte(i)}}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	stats, err := us.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if stats.Counts.Undo > 2 {
		t.Fatalf("expected undo depth capped at 2, got %d", stats.Counts.Undo)
	}
}

func TestJournalModeUndoRedoRoundTrip(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{UseMutationJournal: true}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if _, _, err := us.Take("/doc/title"); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := us.Undo("/doc", 1); err != nil {
		t.Fatalf("undo take: %v", err)
	}
	data, ok, err := us.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 restored after undoing the take, got %+v ok=%v err=%v", data, ok, err)
	}
	if err := us.Undo("/doc", 1); err != nil {
		t.Fatalf("undo insert: %v", err)
	}
	if _, ok, _ := us.Read("/doc/title"); ok {
		t.Fatalf("expected title absent after undoing its creation")
	}
}

func TestUndoOnEmptyHistoryReturnsNoObjectFound(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Undo("/doc", 1); !Is(err, NoObjectFound) {
		t.Fatalf("expected NoObjectFound for undo with nothing recorded, got %v", err)
	}
}

func TestTransactionBatchesMutationsIntoOneUndoStep(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("base")}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	tx, err := us.BeginTransaction("/doc")
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("a")}); err != nil {
		t.Fatalf("insert within tx: %v", err)
	}
	if err := us.Insert("/doc/body", pathspace.NodeData{Bytes: []byte("b")}); err != nil {
		t.Fatalf("insert within tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := us.Undo("/doc", 1); err != nil {
		t.Fatalf("undo transaction: %v", err)
	}
	data, ok, _ := us.Read("/doc/title")
	if !ok || string(data.Bytes) != "base" {
		t.Fatalf("expected a single undo to revert the whole transaction, got title=%+v ok=%v", data, ok)
	}
	if _, ok, _ := us.Read("/doc/body"); ok {
		t.Fatalf("expected body to be gone too after undoing the batched transaction")
	}
}

func TestBeginTransactionRejectsSecondConcurrentCaller(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	tx, err := us.BeginTransaction("/doc")
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	defer tx.Close()

	if _, err := us.BeginTransaction("/doc"); !Is(err, InvalidPermissions) {
		t.Fatalf("expected InvalidPermissions for a second concurrent transaction, got %v", err)
	}
}

func TestTransactionBeginReentersSameOwner(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("base")}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	tx, err := us.BeginTransaction("/doc")
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	nested, err := tx.Begin()
	if err != nil {
		t.Fatalf("Begin (nested, same owner): %v", err)
	}
	if nested != tx {
		t.Fatalf("expected Begin to return the same token, not a new one")
	}

	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("a")}); err != nil {
		t.Fatalf("insert within nested tx: %v", err)
	}

	// Committing the inner nesting level must not finalize the transaction
	// yet: the outer Begin is still open, so this mutation should not yet
	// be a separate undo step.
	if err := nested.Commit(); err != nil {
		t.Fatalf("inner Commit: %v", err)
	}
	statsBeforeOuterCommit, err := us.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if statsBeforeOuterCommit.Counts.Undo != 1 {
		t.Fatalf("expected only the seed insert's undo step before the outer commit, got %d", statsBeforeOuterCommit.Counts.Undo)
	}

	if err := us.Insert("/doc/body", pathspace.NodeData{Bytes: []byte("b")}); err != nil {
		t.Fatalf("insert within outer tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("outer Commit: %v", err)
	}
	statsAfterOuterCommit, err := us.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if statsAfterOuterCommit.Counts.Undo != 2 {
		t.Fatalf("expected the whole nested transaction to finalize as one undo step, got %d", statsAfterOuterCommit.Counts.Undo)
	}
	if err := us.Undo("/doc", 1); err != nil {
		t.Fatalf("undo after outer commit: %v", err)
	}
	data, ok, _ := us.Read("/doc/title")
	if !ok || string(data.Bytes) != "base" {
		t.Fatalf("expected the whole nested transaction to revert as one step, got title=%+v ok=%v", data, ok)
	}
}

func TestUnsupportedPayloadIsRejectedNotJournaled(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	err := us.Insert("/doc/nested", pathspace.NodeData{Nested: true})
	if !Is(err, NotSupported) {
		t.Fatalf("expected NotSupported for an unhistoriable insert, got %v", err)
	}
	if !strings.Contains(err.Error(), "tasks or futures") && !strings.Contains(err.Error(), "nested") {
		t.Fatalf("expected the rejection reason in the error message, got %v", err)
	}

	if _, ok, readErr := us.Read("/doc/nested"); readErr != nil || ok {
		t.Fatalf("expected the rejected insert to never land, got ok=%v err=%v", ok, readErr)
	}

	stats, err := us.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if stats.Unsupported.Total != 1 {
		t.Fatalf("expected one unsupported payload recorded, got %d", stats.Unsupported.Total)
	}
	if err := us.Undo("/doc", 1); !Is(err, NoObjectFound) {
		t.Fatalf("expected nothing undoable since the payload was never journaled, got %v", err)
	}
}

func TestExecutableTakeOfPreexistingPayloadIsRejected(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	// Bypass Insert's own rejection to simulate an unsupported payload that
	// reached the tracked subtree before history was enabled on it.
	if err := us.inner.Insert("/doc/task", pathspace.NodeData{Executable: true}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	if _, _, err := us.Take("/doc/task"); !Is(err, NotSupported) {
		t.Fatalf("expected NotSupported for taking an unhistoriable payload, got %v", err)
	}

	if _, ok, err := us.Read("/doc/task"); err != nil || !ok {
		t.Fatalf("expected the rejected take to leave the payload in place, got ok=%v err=%v", ok, err)
	}
}

func TestExecutionOptOutPrefixSkipsJournaling(t *testing.T) {
	us := newUndoableSpace()
	err := us.EnableHistory("/doc", Options{ExecutionOptOutPrefixes: []string{"/doc/scratch"}})
	if err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/scratch/tmp", pathspace.NodeData{Bytes: []byte("x")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := us.Undo("/doc", 1); !Is(err, NoObjectFound) {
		t.Fatalf("expected opted-out path to produce no undo step, got %v", err)
	}
}

func TestSavefileExportImportRoundTripJournalMode(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{UseMutationJournal: true}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	file := filepath.Join(t.TempDir(), "doc.psave")
	if err := us.ExportHistorySavefile("/doc", file, false); err != nil {
		t.Fatalf("ExportHistorySavefile: %v", err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("expected savefile to exist: %v", err)
	}

	other := newUndoableSpace()
	if err := other.EnableHistory("/doc", Options{UseMutationJournal: true}); err != nil {
		t.Fatalf("EnableHistory on second space: %v", err)
	}
	if err := other.ImportHistorySavefile("/doc", file, false); err != nil {
		t.Fatalf("ImportHistorySavefile: %v", err)
	}
	data, ok, err := other.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected imported live state v2, got %+v ok=%v err=%v", data, ok, err)
	}
	if err := other.Undo("/doc", 1); err != nil {
		t.Fatalf("undo after import: %v", err)
	}
	data, ok, err = other.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after undoing the imported history, got %+v ok=%v err=%v", data, ok, err)
	}
}

func TestSavefileExportImportRoundTripSnapshotMode(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	file := filepath.Join(t.TempDir(), "doc.psave")
	if err := us.ExportHistorySavefile("/doc", file, false); err != nil {
		t.Fatalf("ExportHistorySavefile: %v", err)
	}

	other := newUndoableSpace()
	if err := other.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory on second space: %v", err)
	}
	if err := other.ImportHistorySavefile("/doc", file, false); err != nil {
		t.Fatalf("ImportHistorySavefile: %v", err)
	}
	data, ok, err := other.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected imported live state v2, got %+v ok=%v err=%v", data, ok, err)
	}
	if err := other.Undo("/doc", 1); err != nil {
		t.Fatalf("undo after import: %v", err)
	}
	data, ok, err = other.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after undoing the imported snapshot history, got %+v ok=%v err=%v", data, ok, err)
	}
}

func TestEnableHistoryRejectsOverlappingRoots(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.EnableHistory("/doc/section", Options{}); !Is(err, InvalidPath) {
		t.Fatalf("expected InvalidPath for an overlapping nested root, got %v", err)
	}
	if err := us.EnableHistory("/doc/section", Options{AllowNestedUndo: true}); err != nil {
		t.Fatalf("expected nested root to be accepted when opted in: %v", err)
	}
}

func TestControlSurfaceUndoRedoCommands(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert v2: %v", err)
	}

	if err := us.Insert("/doc/_history/undo", pathspace.NodeData{}); err != nil {
		t.Fatalf("control undo: %v", err)
	}
	data, ok, err := us.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after control-surface undo, got %+v ok=%v err=%v", data, ok, err)
	}

	statsData, ok, err := us.Read("/doc/_history/stats")
	if err != nil || !ok || len(statsData.Bytes) == 0 {
		t.Fatalf("expected non-empty stats text, got %+v ok=%v err=%v", statsData, ok, err)
	}
}

func TestSharedStackKeyIsRejected(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{SharedStackKey: "shared"}); !Is(err, NotSupported) {
		t.Fatalf("expected NotSupported for sharedStackKey, got %v", err)
	}
}

func TestDisableHistoryStopsJournaling(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := us.DisableHistory("/doc"); err != nil {
		t.Fatalf("DisableHistory: %v", err)
	}
	if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert after disable: %v", err)
	}
	if _, err := us.GetHistoryStats("/doc"); !Is(err, NotFound) {
		t.Fatalf("expected NotFound for stats on a disabled root, got %v", err)
	}
}

func TestSnapshotModeDiskPersistenceSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	persistOpts := Options{
		PersistHistory:         true,
		PersistenceRoot:        dir,
		PersistenceNamespace:   "doc",
		RestoreFromPersistence: true,
	}

	first := newUndoableSpace()
	if err := first.EnableHistory("/doc", persistOpts); err != nil {
		t.Fatalf("EnableHistory (first): %v", err)
	}
	if err := first.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := first.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if err := first.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v3")}); err != nil {
		t.Fatalf("insert v3: %v", err)
	}
	if err := first.Undo("/doc", 1); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if err := first.DisableHistory("/doc"); err != nil {
		t.Fatalf("DisableHistory: %v", err)
	}

	second := newUndoableSpace()
	if err := second.EnableHistory("/doc", persistOpts); err != nil {
		t.Fatalf("EnableHistory (second): %v", err)
	}

	data, ok, err := second.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected restored live value v2, got %+v ok=%v err=%v", data, ok, err)
	}

	stats, err := second.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if stats.Counts.Undo != 2 {
		t.Fatalf("expected two restored undo entries, got %d", stats.Counts.Undo)
	}
	if stats.Counts.Redo != 1 {
		t.Fatalf("expected one restored redo entry, got %d", stats.Counts.Redo)
	}
	if stats.Counts.DiskEntries == 0 {
		t.Fatalf("expected non-zero DiskEntries after restore, got 0")
	}

	if err := second.Redo("/doc", 1); err != nil {
		t.Fatalf("redo after restart: %v", err)
	}
	data, ok, err = second.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v3" {
		t.Fatalf("expected v3 after redo following restart, got %+v ok=%v err=%v", data, ok, err)
	}
}

func TestJournalModeDiskPersistenceSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	persistOpts := Options{
		UseMutationJournal:     true,
		PersistHistory:         true,
		PersistenceRoot:        dir,
		PersistenceNamespace:   "doc",
		RestoreFromPersistence: true,
	}

	first := newUndoableSpace()
	if err := first.EnableHistory("/doc", persistOpts); err != nil {
		t.Fatalf("EnableHistory (first): %v", err)
	}
	if err := first.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := first.Insert("/doc/title", pathspace.NodeData{Bytes: []byte("v2")}); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if err := first.DisableHistory("/doc"); err != nil {
		t.Fatalf("DisableHistory: %v", err)
	}

	second := newUndoableSpace()
	if err := second.EnableHistory("/doc", persistOpts); err != nil {
		t.Fatalf("EnableHistory (second): %v", err)
	}

	data, ok, err := second.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v2" {
		t.Fatalf("expected restored live value v2, got %+v ok=%v err=%v", data, ok, err)
	}

	if err := second.Undo("/doc", 1); err != nil {
		t.Fatalf("undo after restart: %v", err)
	}
	data, ok, err = second.Read("/doc/title")
	if err != nil || !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after undoing a restored journal entry, got %+v ok=%v err=%v", data, ok, err)
	}

	stats, err := second.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if stats.Bytes.Disk == 0 {
		t.Fatalf("expected non-zero disk byte accounting after restore, got 0")
	}
}

func TestTrimHistoryRestoresConfiguredJournalRetentionPolicy(t *testing.T) {
	us := newUndoableSpace()
	if err := us.EnableHistory("/doc", Options{UseMutationJournal: true, MaxEntries: 5}); err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte{byte(i)}}); err != nil {
			t.Fatalf("seed insert %d: %v", i, err)
		}
	}

	if _, err := us.TrimHistory("/doc", nil); err != nil {
		t.Fatalf("TrimHistory: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := us.Insert("/doc/title", pathspace.NodeData{Bytes: []byte{byte(i)}}); err != nil {
			t.Fatalf("post-trim insert %d: %v", i, err)
		}
	}

	stats, err := us.GetHistoryStats("/doc")
	if err != nil {
		t.Fatalf("GetHistoryStats: %v", err)
	}
	if stats.Counts.Undo > 5 {
		t.Fatalf("expected the configured MaxEntries=5 to still cap undo depth after a manual trim, got %d", stats.Counts.Undo)
	}
}

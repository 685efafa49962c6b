package history

import "testing"

func TestReadCurrentPayloadMissingIsAbsent(t *testing.T) {
	rs, _ := newTestRootState(t, Options{UseMutationJournal: true})
	p := readCurrentPayload(rs, []string{"title"})
	if p.Present {
		t.Fatalf("expected absent payload for missing path, got %+v", p)
	}
}

func TestApplyJournalPayloadWritesAndClears(t *testing.T) {
	rs, inner := newTestRootState(t, Options{UseMutationJournal: true})
	applyJournalPayload(rs, []string{"title"}, SerializedPayload{Present: true, Bytes: []byte("v1")})
	data, ok, _ := inner.Read("/doc/title")
	if !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 after apply, got %+v ok=%v", data, ok)
	}

	applyJournalPayload(rs, []string{"title"}, SerializedPayload{Present: false})
	if _, ok, _ := inner.Read("/doc/title"); ok {
		t.Fatalf("expected payload cleared after applying an absent value")
	}
}

func TestRecordJournalMutationAssignsIncreasingSequence(t *testing.T) {
	rs, _ := newTestRootState(t, Options{UseMutationJournal: true})
	before := SerializedPayload{Present: false}
	after := SerializedPayload{Present: true, Bytes: []byte("v1")}

	first := recordJournalMutation(rs, OpInsert, []string{"title"}, before, after, false)
	second := recordJournalMutation(rs, OpInsert, []string{"title"}, after, after, false)

	if second.Sequence <= first.Sequence {
		t.Fatalf("expected strictly increasing sequence numbers, got %d then %d", first.Sequence, second.Sequence)
	}
	if rs.journal.Size() != 2 {
		t.Fatalf("expected both mutations appended to the journal, got size %d", rs.journal.Size())
	}
}

func TestJournalUndoRedoAppliesInverseAndForwardPayloads(t *testing.T) {
	rs, inner := newTestRootState(t, Options{UseMutationJournal: true})
	before := SerializedPayload{Present: false}
	after := SerializedPayload{Present: true, Bytes: []byte("v1")}
	recordJournalMutation(rs, OpInsert, []string{"title"}, before, after, false)
	applyJournalPayload(rs, []string{"title"}, after)

	if _, ok := journalUndo(rs); !ok {
		t.Fatalf("expected undo to succeed")
	}
	if _, ok, _ := inner.Read("/doc/title"); ok {
		t.Fatalf("expected title cleared after undoing its creation")
	}

	if _, ok := journalRedo(rs); !ok {
		t.Fatalf("expected redo to succeed")
	}
	data, ok, _ := inner.Read("/doc/title")
	if !ok || string(data.Bytes) != "v1" {
		t.Fatalf("expected v1 restored after redo, got %+v ok=%v", data, ok)
	}
}

func TestJournalRelativeComponentsRejectsPathOutsideRoot(t *testing.T) {
	root, err := newHistoryRoot("/doc")
	if err != nil {
		t.Fatalf("newHistoryRoot: %v", err)
	}
	if _, err := journalRelativeComponents(root, "/other/title"); !Is(err, InvalidPath) {
		t.Fatalf("expected InvalidPath for a path outside the root, got %v", err)
	}
	rel, err := journalRelativeComponents(root, "/doc/section/title")
	if err != nil {
		t.Fatalf("journalRelativeComponents: %v", err)
	}
	if len(rel) != 2 || rel[0] != "section" || rel[1] != "title" {
		t.Fatalf("unexpected relative components: %+v", rel)
	}
}

func TestSplitPathHandlesEmptyAndMultiSegment(t *testing.T) {
	if got := splitPath(""); got != nil {
		t.Fatalf("expected nil for empty path, got %+v", got)
	}
	got := splitPath("a/b/c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split result: %+v", got)
	}
}

func TestJournalUndoOnEmptyJournalFails(t *testing.T) {
	rs, _ := newTestRootState(t, Options{UseMutationJournal: true})
	if _, ok := journalUndo(rs); ok {
		t.Fatalf("expected undo on an empty journal to fail")
	}
}

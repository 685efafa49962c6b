package history

// Transaction is a handle to one grouped mutation against a history root.
// It replaces the original design's owning-thread-id check: instead of
// comparing the calling OS thread, Go compares the *Transaction pointer
// itself, since ordinary Go code moves across goroutines freely and has
// no stable thread identity to pin ownership to. Until Commit closes it,
// any other caller attempting to begin a transaction on the same root, and
// any Undo, Redo or TrimHistory on it, gets InvalidPermissions. Insert and
// Take on the root are not checked against the token: while it is open,
// every caller's mutations are folded into this transaction.
type Transaction struct {
	rs    *rootState
	depth int
}

// BeginTransaction opens a transaction on root, capturing the state
// needed to coalesce every mutation made through this token into a
// single undo step. Call Commit (or Close) exactly once the last nested
// Begin unwinds; while a transaction is uncommitted every further
// BeginTransaction on the root fails with InvalidPermissions.
func (us *UndoableSpace) BeginTransaction(rootPath string) (*Transaction, error) {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.tx != nil {
		return nil, newError(InvalidPermissions, "history transaction already active on root %q", rs.root.Path)
	}

	t := &Transaction{rs: rs, depth: 1}
	tx := &activeTransaction{owner: t, depth: 1}
	if !rs.options.UseMutationJournal {
		pre, err := captureSnapshot(rs, rs.liveSnapshot.Generation)
		if err != nil {
			return nil, err
		}
		tx.snapshotPre = pre
	}
	rs.tx = tx
	return t, nil
}

// Begin re-enters t's transaction one nesting level deeper, the
// Go-idiomatic substitute for the original's same-thread re-entry check:
// since a *Transaction token already stands in for thread ownership (see
// the Transaction doc comment), the caller demonstrates it is the same
// owner by presenting the token it was handed rather than by an implicit
// thread-id comparison. Returns InvalidPermissions if t no longer owns
// the root's active transaction (it was already fully committed, or
// another token owns it). Every successful Begin must be balanced by a
// matching Commit (or Close).
func (t *Transaction) Begin() (*Transaction, error) {
	rs := t.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.tx == nil || rs.tx.owner != t {
		return nil, newError(InvalidPermissions, "history transaction %q is not active", rs.root.Path)
	}
	rs.tx.depth++
	t.depth++
	return t, nil
}

// MarkDirty records that this transaction's caller made a change that
// should be captured as an undo step on commit. Mutations performed
// through the normal Insert/Take path call this automatically; it only
// needs to be called directly by code mutating the inner space without
// going through those entry points.
func (t *Transaction) MarkDirty() {
	t.rs.mu.Lock()
	defer t.rs.mu.Unlock()
	if t.rs.tx != nil && t.rs.tx.owner == t {
		t.rs.tx.dirty = true
	}
}

// Commit closes one nesting level of the transaction. On the outermost
// commit, if the transaction was marked dirty, its accumulated change is
// finalized into the undo stack (snapshot mode) or barrier-tagged in the
// journal (journal mode). Calling Commit more times than Begin was nested
// is a no-op.
func (t *Transaction) Commit() error {
	rs := t.rs
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.tx == nil || rs.tx.owner != t {
		return nil
	}

	rs.tx.depth--
	if rs.tx.depth > 0 {
		return nil
	}

	dirty := rs.tx.dirty
	pre := rs.tx.snapshotPre
	rs.tx = nil

	if !dirty {
		return nil
	}

	if rs.options.UseMutationJournal {
		rs.journal.MarkLastBarrier()
		return nil
	}

	latest, err := captureSnapshot(rs, rs.liveSnapshot.Generation)
	if err != nil {
		instantiateSnapshot(rs, pre)
		rs.liveSnapshot = pre
		return err
	}
	rs.undoStack = append(rs.undoStack, pre)
	rs.redoStack = nil
	rs.liveSnapshot = latest
	enforceSnapshotRetention(rs)
	return nil
}

// Close commits the transaction, the Go-idiomatic substitute for the
// original's destructor-driven auto-commit-on-scope-exit: callers should
// `defer tx.Close()` right after a successful BeginTransaction.
func (t *Transaction) Close() error {
	return t.Commit()
}

// inTransaction reports whether rs currently has an active transaction,
// used by the mutation path to decide whether to push its own undo step
// immediately or defer to the transaction's eventual commit.
func (rs *rootState) inTransaction() bool {
	return rs.tx != nil
}

package history

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

// UndoableSpace wraps an inner hierarchical store, adding undo/redo
// history to whichever subtrees the caller opts in via EnableHistory.
// Paths outside any enabled root pass straight through to the inner
// space; paths inside one are journaled before being applied.
type UndoableSpace struct {
	inner *pathspace.Space

	mu    sync.Mutex
	roots map[string]*rootState

	defaultOptions Options
}

// NewUndoableSpace wraps inner with history tracking. defaultOptions
// seed EnableHistory calls that don't override a given field.
func NewUndoableSpace(inner *pathspace.Space, defaultOptions Options) *UndoableSpace {
	return &UndoableSpace{
		inner:          inner,
		roots:          make(map[string]*rootState),
		defaultOptions: defaultOptions,
	}
}

// EnableHistory starts tracking mutations under root. It is an error to
// enable a root that overlaps an already-enabled root unless one of the
// two sets AllowNestedUndo.
func (us *UndoableSpace) EnableHistory(rootPath string, opts Options) error {
	root, err := newHistoryRoot(rootPath)
	if err != nil {
		return err
	}
	opts = mergeOptions(us.defaultOptions, opts).withDefaults()
	if opts.SharedStackKey != "" {
		return newError(NotSupported, "sharedStackKey is not supported: distinct roots never share an undo stack")
	}
	if _, err := opts.normalizedOptOutPrefixes(root); err != nil {
		return err
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	for key, existing := range us.roots {
		if key == root.Path {
			return newError(InvalidPath, "history already enabled on root %q", root.Path)
		}
		overlaps := pathspace.HasPrefix(root.Components, existing.root.Components) ||
			pathspace.HasPrefix(existing.root.Components, root.Components)
		if overlaps && !opts.AllowNestedUndo && !existing.options.AllowNestedUndo {
			return newError(InvalidPath, "history root %q overlaps existing root %q", root.Path, existing.root.Path)
		}
	}

	rs := newRootState(root, opts, us.inner)

	if opts.PersistHistory {
		layout := resolvePersistenceLayout(opts, root)
		fl, err := acquirePersistenceLock(layout.dir)
		if err != nil {
			return err
		}
		rs.fileLock = fl
		rs.persistenceEnabled = true
		rs.persistenceDir = layout.dir
		rs.journalFilePath = layout.journalFile
		rs.entriesDir = layout.entriesDir
		rs.stateMetaFile = layout.stateMetaFile
		rs.encodedRoot = encodeRootForPersistence(root.Path)

		// State reconstruction (stacks, options, journal replay) always runs
		// when prior state exists. Journal replay always re-applies every
		// entry to the inner space; for snapshot-mode roots
		// opts.RestoreFromPersistence gates whether the restored live state
		// is re-materialized into the inner space.
		if err := restoreRootFromPersistence(rs); err != nil {
			fl.Unlock()
			return err
		}

		if opts.UseMutationJournal {
			writer, err := openJournalFileWriter(layout.journalFile)
			if err != nil {
				fl.Unlock()
				return err
			}
			rs.journalWriter = writer
		}
	}

	us.roots[root.Path] = rs
	log.Info("history enabled", "root", root.Path, "mode", historyModeName(opts), "persist", opts.PersistHistory)
	return nil
}

func historyModeName(opts Options) string {
	if opts.UseMutationJournal {
		return "journal"
	}
	return "snapshot"
}

func mergeOptions(defaults, override Options) Options {
	merged := defaults
	if override.MaxEntries != 0 {
		merged.MaxEntries = override.MaxEntries
	}
	if override.MaxBytesRetained != 0 {
		merged.MaxBytesRetained = override.MaxBytesRetained
	}
	merged.ManualGarbageCollect = override.ManualGarbageCollect
	merged.AllowNestedUndo = override.AllowNestedUndo
	merged.UseMutationJournal = override.UseMutationJournal
	merged.PersistHistory = override.PersistHistory
	if override.PersistenceRoot != "" {
		merged.PersistenceRoot = override.PersistenceRoot
	}
	if override.PersistenceNamespace != "" {
		merged.PersistenceNamespace = override.PersistenceNamespace
	}
	merged.RestoreFromPersistence = override.RestoreFromPersistence
	if override.RamCacheEntries != 0 {
		merged.RamCacheEntries = override.RamCacheEntries
	}
	if override.MaxDiskBytes != 0 {
		merged.MaxDiskBytes = override.MaxDiskBytes
	}
	if override.KeepLatestFor != 0 {
		merged.KeepLatestFor = override.KeepLatestFor
	}
	if len(override.ExecutionOptOutPrefixes) > 0 {
		merged.ExecutionOptOutPrefixes = override.ExecutionOptOutPrefixes
	}
	merged.SharedStackKey = override.SharedStackKey
	return merged
}

// DisableHistory stops tracking root and discards its in-memory undo/redo
// state. Anything already persisted to disk is left in place.
func (us *UndoableSpace) DisableHistory(rootPath string) error {
	canon, _, err := pathspace.Canonicalize(rootPath)
	if err != nil {
		return newError(InvalidPath, "invalid history root %q: %v", rootPath, err)
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	rs, ok := us.roots[canon]
	if !ok {
		return newError(NotFound, "history is not enabled on root %q", canon)
	}
	if rs.journalWriter != nil {
		rs.journalWriter.Close()
	}
	if rs.fileLock != nil {
		rs.fileLock.Unlock()
	}
	delete(us.roots, canon)
	log.Info("history disabled", "root", canon)
	return nil
}

func (us *UndoableSpace) lookupRoot(rootPath string) (*rootState, error) {
	canon, _, err := pathspace.Canonicalize(rootPath)
	if err != nil {
		return nil, newError(InvalidPath, "invalid history root %q: %v", rootPath, err)
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	rs, ok := us.roots[canon]
	if !ok {
		return nil, newError(NotFound, "history is not enabled on root %q", canon)
	}
	return rs, nil
}

// findRootForPath returns the deepest enabled root that fullPath falls
// under, along with fullPath's components relative to that root.
func (us *UndoableSpace) findRootForPath(fullPath string) (*rootState, []string, bool) {
	_, components, err := pathspace.Canonicalize(fullPath)
	if err != nil {
		return nil, nil, false
	}

	us.mu.Lock()
	defer us.mu.Unlock()

	var best *rootState
	for _, rs := range us.roots {
		if pathspace.HasPrefix(components, rs.root.Components) {
			if best == nil || len(rs.root.Components) > len(best.root.Components) {
				best = rs
			}
		}
	}
	if best == nil {
		return nil, nil, false
	}
	return best, components[len(best.root.Components):], true
}

// isOptedOut reports whether relComponents falls under one of rs's
// execution opt-out prefixes, meaning its mutations are written through
// without being journaled.
func isOptedOut(rs *rootState, relComponents []string) bool {
	prefixes, err := rs.options.normalizedOptOutPrefixes(rs.root)
	if err != nil {
		return false
	}
	for _, p := range prefixes {
		rel := p[len(rs.root.Components):]
		if pathspace.HasPrefix(relComponents, rel) {
			return true
		}
	}
	return false
}

// Insert writes data at path. If path falls under an enabled root's
// virtual `_history/...` namespace it is interpreted as a control command
// instead of a plain write; if it falls under an enabled root's tracked
// subtree the mutation is journaled before being forwarded to the inner
// space.
func (us *UndoableSpace) Insert(path string, data pathspace.NodeData) error {
	if rs, rel, ok := us.findRootForPath(path); ok {
		if len(rel) > 0 && rel[0] == HistoryPathComponent {
			return us.handleControlInsert(rs, strings.Join(rel[1:], "/"), data)
		}
		if !isOptedOut(rs, rel) {
			if err := us.journalInsert(rs, rel, data); err != nil {
				return err
			}
		}
	}
	return us.inner.Insert(path, data)
}

func (us *UndoableSpace) journalInsert(rs *rootState, rel []string, data pathspace.NodeData) error {
	reason, ok := classifyUnsupported(data)
	if !ok {
		rs.mu.Lock()
		rs.telemetry.unsupported.record(joinRootRelative(rs.root, rel), reason, nowMillis())
		rs.mu.Unlock()
		return newError(NotSupported, "%s at %s", reason, joinRootRelative(rs.root, rel))
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	undoBefore, redoBefore := rs.totalUndoRedoCount()
	bytesBefore := gatherStats(rs).Bytes.Total

	if rs.options.UseMutationJournal {
		before := readCurrentPayload(rs, rel)
		after := SerializedPayload{Present: true, Bytes: data.Bytes}
		entry := recordJournalMutation(rs, OpInsert, rel, before, after, false)
		if rs.inTransaction() {
			rs.tx.dirty = true
		}
		rs.appendToDisk(entry)
		rs.markPersistenceDirty()
	} else if rs.inTransaction() {
		rs.tx.dirty = true
	} else {
		if err := snapshotModePush(rs); err != nil {
			return err
		}
		rs.markPersistenceDirty()
		rs.persistSnapshotToDisk()
	}

	recordOperation(rs, "insert", uint64(time.Since(start).Milliseconds()), true, undoBefore, redoBefore, bytesBefore, "")
	return nil
}

// Take removes and returns the payload at path, journaling the removal
// the same way Insert journals a write. A payload history cannot
// faithfully journal (nested/executable/unserializable) is rejected
// rather than removed, the same way Insert rejects writing one, since
// the removal could never be undone.
func (us *UndoableSpace) Take(path string) (pathspace.NodeData, bool, error) {
	if rs, rel, ok := us.findRootForPath(path); ok {
		if len(rel) > 0 && rel[0] == HistoryPathComponent {
			return us.handleControlRead(rs, strings.Join(rel[1:], "/"))
		}
		if !isOptedOut(rs, rel) {
			if err := us.journalTake(rs, rel); err != nil {
				return pathspace.NodeData{}, false, err
			}
		}
	}
	return us.inner.Take(path)
}

func (us *UndoableSpace) journalTake(rs *rootState, rel []string) error {
	full := append(append([]string{}, rs.root.Components...), rel...)
	if existing, ok := rs.inner.GetPayload(full); ok {
		if reason, ok := classifyUnsupported(existing); !ok {
			rs.mu.Lock()
			rs.telemetry.unsupported.record(joinRootRelative(rs.root, rel), reason, nowMillis())
			rs.mu.Unlock()
			return newError(NotSupported, "%s at %s", reason, joinRootRelative(rs.root, rel))
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	undoBefore, redoBefore := rs.totalUndoRedoCount()
	bytesBefore := gatherStats(rs).Bytes.Total

	if rs.options.UseMutationJournal {
		before := readCurrentPayload(rs, rel)
		if !before.Present {
			return nil
		}
		after := SerializedPayload{Present: false}
		entry := recordJournalMutation(rs, OpTake, rel, before, after, false)
		if rs.inTransaction() {
			rs.tx.dirty = true
		}
		rs.appendToDisk(entry)
		rs.markPersistenceDirty()
	} else if rs.inTransaction() {
		rs.tx.dirty = true
	} else {
		if err := snapshotModePush(rs); err != nil {
			return err
		}
		rs.markPersistenceDirty()
		rs.persistSnapshotToDisk()
	}

	recordOperation(rs, "take", uint64(time.Since(start).Milliseconds()), true, undoBefore, redoBefore, bytesBefore, "")
	return nil
}

// Read returns the payload at path, interpreting reads under an enabled
// root's `_history/...` namespace as telemetry lookups.
func (us *UndoableSpace) Read(path string) (pathspace.NodeData, bool, error) {
	if rs, rel, ok := us.findRootForPath(path); ok && len(rel) > 0 && rel[0] == HistoryPathComponent {
		return us.handleControlRead(rs, strings.Join(rel[1:], "/"))
	}
	return us.inner.Read(path)
}

func (rs *rootState) markPersistenceDirty() {
	if rs.persistenceEnabled {
		rs.persistenceDirty = true
	}
}

// appendToDisk writes entry to the root's append-only journal file when
// persistence is enabled. A write failure is logged rather than
// propagated: the in-memory journal stays authoritative for the running
// process, and only a later compaction (TrimHistory or garbage_collect)
// rewrites the journal file from it.
func (rs *rootState) appendToDisk(entry JournalEntry) {
	if rs.journalWriter == nil {
		return
	}
	if err := rs.journalWriter.Append(entry, false); err != nil {
		log.Warn("failed to append history journal entry to disk", "root", rs.root.Path, "err", err)
		return
	}
	rs.telemetry.DiskEntries++
	rs.telemetry.DiskBytes += entryByteEstimate(entry)
}

// Undo reverts the most recent step-count undo entries on root.
func (us *UndoableSpace) Undo(rootPath string, steps int) error {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.inTransaction() {
		return newError(InvalidPermissions, "history transaction active on root %q", rs.root.Path)
	}

	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		var ok bool
		if rs.options.UseMutationJournal {
			_, ok = journalUndo(rs)
		} else {
			ok = snapshotUndo(rs)
		}
		if !ok {
			if i == 0 {
				return newError(NoObjectFound, "nothing to undo on root %q", rs.root.Path)
			}
			break
		}
	}
	rs.markPersistenceDirty()
	rs.persistSnapshotToDisk()
	return nil
}

// Redo re-applies the most recent step-count undone entries on root.
func (us *UndoableSpace) Redo(rootPath string, steps int) error {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.inTransaction() {
		return newError(InvalidPermissions, "history transaction active on root %q", rs.root.Path)
	}

	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		var ok bool
		if rs.options.UseMutationJournal {
			_, ok = journalRedo(rs)
		} else {
			ok = snapshotRedo(rs)
		}
		if !ok {
			if i == 0 {
				return newError(NoObjectFound, "nothing to redo on root %q", rs.root.Path)
			}
			break
		}
	}
	rs.markPersistenceDirty()
	rs.persistSnapshotToDisk()
	return nil
}

// TrimHistory manually removes undo-stack entries for which predicate
// returns true (nil predicate removes every undo entry). Intended for
// callers with ManualGarbageCollect set.
func (us *UndoableSpace) TrimHistory(rootPath string, predicate TrimPredicate) (TrimStats, error) {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return TrimStats{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.inTransaction() {
		return TrimStats{}, newError(InvalidPermissions, "history transaction active on root %q", rs.root.Path)
	}

	if rs.options.UseMutationJournal {
		stats := trimJournal(rs, predicate)
		if rs.persistenceEnabled {
			if err := rs.compactDiskJournal(); err != nil {
				log.Warn("failed to compact history journal file", "root", rs.root.Path, "err", err)
			}
		}
		return stats, nil
	}
	stats := trimSnapshots(rs, predicate)
	rs.persistSnapshotToDisk()
	return stats, nil
}

// GetHistoryStats returns a point-in-time telemetry snapshot for root.
func (us *UndoableSpace) GetHistoryStats(rootPath string) (HistoryStats, error) {
	rs, err := us.lookupRoot(rootPath)
	if err != nil {
		return HistoryStats{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return gatherStats(rs), nil
}

// handleControlInsert interprets a write under `<root>/_history/...` as a
// control command rather than ordinary data.
func (us *UndoableSpace) handleControlInsert(rs *rootState, relPath string, data pathspace.NodeData) error {
	switch relPath {
	case "undo":
		return us.Undo(rs.root.Path, interpretSteps(data))
	case "redo":
		return us.Redo(rs.root.Path, interpretSteps(data))
	case "garbage_collect":
		rs.mu.Lock()
		defer rs.mu.Unlock()
		if rs.options.UseMutationJournal {
			rs.journal.SetRetentionPolicy(rs.journal.Policy())
			if err := rs.compactDiskJournal(); err != nil {
				log.Warn("failed to compact history journal file", "root", rs.root.Path, "err", err)
			}
			return nil
		}
		enforceSnapshotRetention(rs)
		rs.persistSnapshotToDisk()
		return nil
	case "set_manual_garbage_collect":
		rs.mu.Lock()
		rs.options.ManualGarbageCollect = len(data.Bytes) == 0 || data.Bytes[0] != 0
		rs.mu.Unlock()
		return nil
	case "set_tag":
		rs.mu.Lock()
		rs.currentTag = string(data.Bytes)
		rs.mu.Unlock()
		return nil
	default:
		return newError(NotSupported, "unsupported history control command %q", relPath)
	}
}

func interpretSteps(data pathspace.NodeData) int {
	if len(data.Bytes) == 0 {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data.Bytes)))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// handleControlRead serves a read under `<root>/_history/...`: stats,
// lastOperation, unsupported log, and head generation.
func (us *UndoableSpace) handleControlRead(rs *rootState, relPath string) (pathspace.NodeData, bool, error) {
	rs.mu.Lock()
	stats := gatherStats(rs)
	rs.mu.Unlock()

	switch {
	case relPath == "" || relPath == "stats":
		return pathspace.NodeData{Bytes: []byte(formatHistoryStats(stats))}, true, nil
	case strings.HasPrefix(relPath, "stats/"):
		return readStatsField(stats, strings.TrimPrefix(relPath, "stats/"))
	case relPath == "head/generation":
		return pathspace.NodeData{Bytes: []byte(strconv.FormatUint(rs.liveSnapshot.Generation, 10))}, true, nil
	case strings.HasPrefix(relPath, "lastOperation"):
		return readLastOperationField(stats.LastOperation, strings.TrimPrefix(relPath, "lastOperation"))
	case strings.HasPrefix(relPath, "unsupported"):
		return readUnsupportedField(stats.Unsupported, strings.TrimPrefix(relPath, "unsupported"))
	default:
		return pathspace.NodeData{}, false, newError(InvalidPath, "unsupported history telemetry path %q", relPath)
	}
}

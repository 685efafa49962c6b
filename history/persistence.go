package history

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	journalFileMagic   uint32 = 0x50534A46 // 'PSJF'
	journalFileVersion uint16 = 1
)

// diskReadCache holds the bytes of state.meta and snapshot files read
// through readFileCached, shared by every persisted root in one process,
// so restoring the same root again skips repeat disk reads. The journal
// file and savefiles are read directly and never pass through it.
var diskReadCache = fastcache.New(16 * 1024 * 1024)

// diskReadGroup collapses concurrent cache-misses for the same path within
// one process into a single os.ReadFile call, so goroutines restoring from
// the same cold file don't each pay a redundant disk read.
var diskReadGroup singleflight.Group

// writeFileAtomic writes data to path without ever leaving a torn file
// behind: the bytes land in a sibling .tmp file, are fsynced, the file is
// renamed over the destination (atomic on POSIX), and finally the parent
// directory is fsynced so the rename itself survives a crash.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError(UnknownError, "create directory %q: %v", dir, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return newError(UnknownError, "open %q: %v", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return newError(UnknownError, "write %q: %v", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return newError(UnknownError, "fsync %q: %v", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return newError(UnknownError, "close %q: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return newError(UnknownError, "rename %q to %q: %v", tmp, path, err)
	}

	dirHandle, err := os.Open(dir)
	if err != nil {
		return newError(UnknownError, "open directory %q: %v", dir, err)
	}
	defer dirHandle.Close()
	if err := dirHandle.Sync(); err != nil {
		return newError(UnknownError, "fsync directory %q: %v", dir, err)
	}
	return nil
}

func readFileCached(path string) ([]byte, error) {
	key := []byte(path)
	if cached := diskReadCache.GetBig(nil, key); cached != nil {
		return cached, nil
	}
	data, err, _ := diskReadGroup.Do(path, func() (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, newError(NotFound, "file %q not found", path)
			}
			return nil, newError(UnknownError, "read %q: %v", path, err)
		}
		diskReadCache.SetBig(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return data.([]byte), nil
}

// encodeRootForPersistence turns a root path into a filesystem-safe
// directory component so roots like "/documents/draft" don't collide
// with or escape the persistence namespace directory.
func encodeRootForPersistence(rootPath string) string {
	out := make([]byte, 0, len(rootPath))
	for i := 0; i < len(rootPath); i++ {
		c := rootPath[i]
		switch {
		case c == '/':
			if i != 0 {
				out = append(out, '_')
			}
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '.':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "root"
	}
	return string(out)
}

// persistenceLayout resolves the on-disk paths for one root: a namespaced
// directory under opts.PersistenceRoot, containing either a sequence of
// snapshot files (snapshot mode) or a single append-only journal file
// (journal mode).
type persistenceLayout struct {
	dir           string
	journalFile   string
	entriesDir    string
	stateMetaFile string
}

// resolvePersistenceLayout resolves the on-disk paths for one root. When
// the caller leaves PersistenceNamespace empty, a fresh random namespace is
// minted for this instance (via uuid, not a counter, so two processes
// enabling history concurrently never collide on the same directory); a
// caller that wants a root's persisted state to survive a process restart
// must pass an explicit, stable PersistenceNamespace.
func resolvePersistenceLayout(opts Options, root HistoryRoot) persistenceLayout {
	base := opts.PersistenceRoot
	if base == "" {
		base = defaultPersistenceRoot()
	}
	namespace := opts.PersistenceNamespace
	if namespace == "" {
		namespace = uuid.New().String()
	}
	dir := filepath.Join(base, namespace, encodeRootForPersistence(root.Path))
	return persistenceLayout{
		dir:           dir,
		journalFile:   filepath.Join(dir, "journal.psjf"),
		entriesDir:    filepath.Join(dir, "entries"),
		stateMetaFile: filepath.Join(dir, "state.meta"),
	}
}

func defaultPersistenceRoot() string {
	return filepath.Join(os.TempDir(), "pathspace-history")
}

// acquirePersistenceLock takes an advisory, process-exclusive lock on the
// root's persistence directory so two processes (or two UndoableSpace
// instances) never write the same journal file concurrently.
func acquirePersistenceLock(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(UnknownError, "create directory %q: %v", dir, err)
	}
	lockPath := filepath.Join(dir, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, newError(UnknownError, "lock %q: %v", lockPath, err)
	}
	if !locked {
		return nil, newError(InvalidPermissions, "persistence directory %q is locked by another process", dir)
	}
	return fl, nil
}

// journalFileWriter appends length-prefixed journal entries to an
// on-disk file that starts with a fixed magic/version/reserved header,
// writing the header once on first use.
type journalFileWriter struct {
	path   string
	handle *os.File
}

func openJournalFileWriter(path string) (*journalFileWriter, error) {
	needHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	if needHeader {
		if err := writeJournalFileHeader(path); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, newError(UnknownError, "open journal file %q: %v", path, err)
	}

	if !needHeader {
		if err := validateJournalFileHeader(f); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, newError(UnknownError, "seek journal file %q: %v", path, err)
	}

	return &journalFileWriter{path: path, handle: f}, nil
}

func writeJournalFileHeader(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newError(UnknownError, "create directory %q: %v", dir, err)
		}
	}
	header := make([]byte, 0, 10)
	header = binary.LittleEndian.AppendUint32(header, journalFileMagic)
	header = binary.LittleEndian.AppendUint16(header, journalFileVersion)
	header = binary.LittleEndian.AppendUint32(header, 0) // reserved
	return writeFileAtomic(path, header)
}

func validateJournalFileHeader(f *os.File) error {
	header := make([]byte, 10)
	if _, err := io.ReadFull(f, header); err != nil {
		return newError(MalformedInput, "journal file header truncated: %v", err)
	}
	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != journalFileMagic {
		return newError(MalformedInput, "journal file header magic mismatch")
	}
	version := binary.LittleEndian.Uint16(header[4:6])
	if version != journalFileVersion {
		return newError(MalformedInput, "unsupported journal file version %d", version)
	}
	return nil
}

// Append writes one entry as a length-prefixed frame and optionally
// fsyncs it before returning.
func (w *journalFileWriter) Append(entry JournalEntry, fsync bool) error {
	encoded, err := EncodeJournalEntry(entry)
	if err != nil {
		return err
	}
	lenPrefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenPrefix, uint32(len(encoded)))
	if _, err := w.handle.Write(lenPrefix); err != nil {
		return newError(UnknownError, "write journal entry length: %v", err)
	}
	if _, err := w.handle.Write(encoded); err != nil {
		return newError(UnknownError, "write journal entry payload: %v", err)
	}
	if fsync {
		if err := w.handle.Sync(); err != nil {
			return newError(UnknownError, "fsync journal file: %v", err)
		}
	}
	return nil
}

func (w *journalFileWriter) Close() error {
	if w.handle == nil {
		return nil
	}
	err := w.handle.Close()
	w.handle = nil
	return err
}

// replayJournalFile reads every entry from the journal file at path in
// order, invoking onEntry for each. It stops and returns the file's
// NotFound error if the file does not exist, matching the "nothing to
// restore yet" case callers expect on first enable.
func replayJournalFile(path string, onEntry func(JournalEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newError(NotFound, "journal file %q not found", path)
		}
		return newError(UnknownError, "open journal file %q: %v", path, err)
	}
	defer f.Close()

	header := make([]byte, 10)
	if _, err := io.ReadFull(f, header); err != nil {
		return newError(MalformedInput, "journal file header truncated: %v", err)
	}
	if binary.LittleEndian.Uint32(header[0:4]) != journalFileMagic {
		return newError(MalformedInput, "journal file magic mismatch")
	}
	if binary.LittleEndian.Uint16(header[4:6]) != journalFileVersion {
		return newError(MalformedInput, "unsupported journal file version")
	}

	lenBuf := make([]byte, 4)
	for {
		_, err := io.ReadFull(f, lenBuf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return newError(MalformedInput, "truncated journal entry length: %v", err)
		}
		length := binary.LittleEndian.Uint32(lenBuf)
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(f, payload); err != nil {
				return newError(MalformedInput, "truncated journal entry payload: %v", err)
			}
		}
		entry, err := DecodeJournalEntry(payload)
		if err != nil {
			return err
		}
		if err := onEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// compactJournalFile rewrites the journal file at path to contain exactly
// entries, replacing whatever was there via the same temp-then-rename
// discipline as writeFileAtomic so a crash mid-compaction never leaves a
// corrupt file in place of a good one.
func compactJournalFile(path string, entries []JournalEntry, fsync bool) error {
	buf := make([]byte, 0, 10+64*len(entries))
	buf = binary.LittleEndian.AppendUint32(buf, journalFileMagic)
	buf = binary.LittleEndian.AppendUint16(buf, journalFileVersion)
	buf = binary.LittleEndian.AppendUint32(buf, 0)

	for _, e := range entries {
		encoded, err := EncodeJournalEntry(e)
		if err != nil {
			return err
		}
		lenPrefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenPrefix, uint32(len(encoded)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, encoded...)
	}

	if err := writeFileAtomic(path, buf); err != nil {
		return err
	}
	if fsync {
		dir, err := os.Open(filepath.Dir(path))
		if err != nil {
			return newError(UnknownError, "open directory for fsync: %v", err)
		}
		defer dir.Close()
		if err := dir.Sync(); err != nil {
			return newError(UnknownError, "fsync directory: %v", err)
		}
	}
	return nil
}

// snapshotFilePath returns the path a given generation's snapshot is (or
// would be) stored at under dir.
func snapshotFilePath(dir string, generation uint64) string {
	return filepath.Join(dir, SnapshotFileStem(generation)+".snap")
}

func writeSnapshotFile(dir string, generation uint64, entries []SnapshotEntry) error {
	encoded, err := EncodeSnapshot(generation, entries)
	if err != nil {
		return err
	}
	return writeFileAtomic(snapshotFilePath(dir, generation), encoded)
}

func readSnapshotFile(dir string, generation uint64) (uint64, []SnapshotEntry, error) {
	data, err := readFileCached(snapshotFilePath(dir, generation))
	if err != nil {
		return 0, nil, err
	}
	return DecodeSnapshot(data)
}

package history

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

// Options configures one history root. Zero value is a reasonable default:
// unlimited retention, snapshot-mode engine, no persistence.
type Options struct {
	MaxEntries           int           // 0 = unlimited
	MaxBytesRetained     uint64        // 0 = unlimited; counts undo+redo entries, not the live state
	ManualGarbageCollect bool          // stored, reported and persisted; automatic retention still runs
	AllowNestedUndo      bool          // opt into overlapping with another root
	UseMutationJournal   bool          // selects the journal-mode engine

	PersistHistory          bool
	PersistenceRoot          string
	PersistenceNamespace     string
	RestoreFromPersistence   bool

	RamCacheEntries int           // entries kept materialized; default 8
	MaxDiskBytes    uint64
	KeepLatestFor   time.Duration

	// ExecutionOptOutPrefixes lists paths under the root whose mutations are
	// not journaled at all. Canonicalized and deduplicated on enable.
	ExecutionOptOutPrefixes []string

	// SharedStackKey is accepted for API compatibility with the original
	// design but is always rejected: see DESIGN.md's resolution of the
	// "sharedStackKey" open question. Distinct roots never share an undo
	// stack.
	SharedStackKey string
}

func (o Options) withDefaults() Options {
	if o.RamCacheEntries == 0 {
		o.RamCacheEntries = defaultRamCacheEntries
	}
	return o
}

const defaultRamCacheEntries = 8

// normalizedOptOutPrefixes canonicalizes and deduplicates
// ExecutionOptOutPrefixes using a set so repeated prefixes collapse to one
// entry regardless of input order.
func (o Options) normalizedOptOutPrefixes(root HistoryRoot) ([][]string, error) {
	seen := mapset.NewSet[string]()
	var out [][]string
	for _, raw := range o.ExecutionOptOutPrefixes {
		canon, components, err := pathspace.Canonicalize(raw)
		if err != nil {
			return nil, newError(InvalidPath, "invalid execution opt-out prefix %q: %v", raw, err)
		}
		if !pathspace.HasPrefix(components, root.Components) {
			return nil, newError(InvalidPath, "execution opt-out prefix %q is not under root %q", raw, root.Path)
		}
		if seen.Contains(canon) {
			continue
		}
		seen.Add(canon)
		out = append(out, components)
	}
	return out, nil
}

// HistoryRoot identifies one root subtree: its canonical path plus the
// parsed path components used for prefix comparisons and relative-path
// arithmetic.
type HistoryRoot struct {
	Path       string
	Components []string
}

func newHistoryRoot(path string) (HistoryRoot, error) {
	canon, components, err := pathspace.Canonicalize(path)
	if err != nil {
		return HistoryRoot{}, newError(InvalidPath, "invalid history root %q: %v", path, err)
	}
	if len(components) == 0 {
		return HistoryRoot{}, newError(InvalidPath, "history root may not be the space root")
	}
	return HistoryRoot{Path: canon, Components: components}, nil
}

// HistoryPathComponent is the reserved child name under which a root's
// telemetry and control surface lives, i.e. "<root>/_history/...".
const HistoryPathComponent = "_history"

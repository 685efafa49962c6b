package history

// cowNode is one immutable point in a captured subtree. Children are plain
// pointers: Go's garbage collector plays the role the original gives to a
// shared pointer, so applying a mutation only needs to replace the nodes
// on the path it touches while every untouched sibling keeps pointing at
// the same child node.
type cowNode struct {
	payload  []byte // nil means "no payload at this node"
	hasValue bool
	children map[string]*cowNode
}

// cowMutation describes one write to apply against a subtree: a path
// (relative to the subtree root) and the payload to place there. A nil
// Payload with Clear set removes the value without removing children.
type cowMutation struct {
	Components []string
	Payload    []byte
	Clear      bool
}

// cowSnapshot is an immutable, generation-tagged view of a subtree.
// Sharing the same *cowNode across snapshots is what makes retaining many
// generations cheap: only the nodes along a changed path are ever copied.
type cowSnapshot struct {
	Generation uint64
	Root       *cowNode
}

// emptySnapshot returns generation 0 with an empty root, the seed every
// root's history starts from.
func emptySnapshot() cowSnapshot {
	return cowSnapshot{Generation: 0, Root: &cowNode{}}
}

// applyMutation returns a new snapshot reflecting one mutation layered on
// top of base, without modifying base's tree. Only the nodes on the
// mutated path are copied; all other subtrees are shared by pointer.
func applyMutation(base cowSnapshot, generation uint64, m cowMutation) cowSnapshot {
	newRoot := copyAndMutate(base.Root, m.Components, m.Payload, m.Clear)
	return cowSnapshot{Generation: generation, Root: newRoot}
}

func copyAndMutate(n *cowNode, path []string, payload []byte, clear bool) *cowNode {
	if n == nil {
		n = &cowNode{}
	}
	next := &cowNode{payload: n.payload, hasValue: n.hasValue, children: n.children}
	if len(path) == 0 {
		if clear {
			next.hasValue = false
			next.payload = nil
		} else {
			next.hasValue = true
			next.payload = payload
		}
		return next
	}

	head, rest := path[0], path[1:]
	child := n.children[head]
	newChild := copyAndMutate(child, rest, payload, clear)

	next.children = make(map[string]*cowNode, len(n.children)+1)
	for k, v := range n.children {
		next.children[k] = v
	}
	next.children[head] = newChild
	return next
}

// lookupNode walks a snapshot to the node at path, returning false if any
// component is absent.
func lookupNode(root *cowNode, path []string) (*cowNode, bool) {
	cur := root
	for _, c := range path {
		if cur == nil {
			return nil, false
		}
		child, ok := cur.children[c]
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, cur != nil
}

// flattenSnapshot walks a whole snapshot depth-first and returns every
// node carrying a value, addressed by path components relative to the
// snapshot root. Used by the snapshot codec and by instantiation onto the
// live inner space.
func flattenSnapshot(root *cowNode) []SnapshotEntry {
	var out []SnapshotEntry
	var walk func(n *cowNode, prefix []string)
	walk = func(n *cowNode, prefix []string) {
		if n == nil {
			return
		}
		if n.hasValue {
			rel := make([]string, len(prefix))
			copy(rel, prefix)
			out = append(out, SnapshotEntry{Components: rel, Payload: n.payload})
		}
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sortStringsLocal(names)
		for _, name := range names {
			walk(n.children[name], append(prefix, name))
		}
	}
	walk(root, nil)
	return out
}

// buildSnapshotFromEntries replays a flattened entry list onto an empty
// snapshot, the inverse of flattenSnapshot. Used when decoding a
// persisted snapshot file.
func buildSnapshotFromEntries(generation uint64, entries []SnapshotEntry) cowSnapshot {
	snap := emptySnapshot()
	for _, e := range entries {
		snap = applyMutation(snap, generation, cowMutation{Components: e.Components, Payload: e.Payload})
	}
	snap.Generation = generation
	return snap
}

// snapshotByteSize estimates the bytes a snapshot occupies: the sum of
// every stored payload plus a small per-entry path overhead, matching the
// accounting used for retention limits.
func snapshotByteSize(root *cowNode) uint64 {
	var total uint64
	for _, e := range flattenSnapshot(root) {
		total += uint64(len(e.Payload))
		for _, c := range e.Components {
			total += uint64(len(c))
		}
	}
	return total
}

func sortStringsLocal(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

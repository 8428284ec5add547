// Package forest implements a sequential, pre-order-depth-first-optimized
// forest: every node of every tree lives in one flat, contiguous slice,
// ordered so that a node's entire subtree occupies a contiguous run
// immediately following it. There is no per-node pointer or allocation —
// structure is carried entirely by three integers per node
// (children_count, branch_stride, parent_offset), the way the teacher
// carries cluster structure as flat index arithmetic over a single
// backing slice rather than a graph of pointers (see DESIGN.md Component
// C).
package forest

import (
	"fmt"
	"io"
	"log"
	"os"
)

var debugLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("ENGINECORE_DEBUG_FOREST") == "1" {
		debugLogger = log.New(os.Stdout, "[forest] ", log.Ltime|log.Lmsgprefix)
	}
}

// noParent marks a root node's parentOffset (roots have no parent to walk
// back to).
const noParent = ^uint32(0)

// node is the internal bookkeeping record stored alongside each payload.
//
//   - childrenCount: number of DIRECT children.
//   - branchStride: total size of this node's subtree, INCLUDING itself —
//     i.e. the node at index i+branchStride is the next node outside this
//     subtree (a sibling, an uncle, or past the end of the forest).
//   - parentOffset: distance back to this node's parent (index - parent's
//     index), or noParent for a root.
type node struct {
	childrenCount uint32
	branchStride  uint32
	parentOffset  uint32
}

// Forest is a sequential pre-order forest of payloads of type P. The zero
// value is an empty forest, ready to use.
type Forest[P comparable] struct {
	nodes    []node
	payloads []P
}

// New constructs an empty Forest.
func New[P comparable]() *Forest[P] {
	return &Forest[P]{}
}

// Size returns the total number of nodes across every tree in the forest.
func (f *Forest[P]) Size() int {
	return len(f.nodes)
}

// Contains reports whether payload appears anywhere in the forest.
func (f *Forest[P]) Contains(payload P) bool {
	_, ok := f.FindNodeIndex(payload)
	return ok
}

// FindNodeIndex returns the index of the first node carrying payload, in
// pre-order. O(n) — the forest keeps no reverse index, per spec §4.C.
func (f *Forest[P]) FindNodeIndex(payload P) (int, bool) {
	for i, p := range f.payloads {
		if p == payload {
			return i, true
		}
	}
	return -1, false
}

// InsertAsRoot appends a new root tree (a single node, no children) at the
// end of the forest and returns its index.
func (f *Forest[P]) InsertAsRoot(payload P) int {
	idx := len(f.nodes)
	f.nodes = append(f.nodes, node{childrenCount: 0, branchStride: 1, parentOffset: noParent})
	f.payloads = append(f.payloads, payload)
	debugLogger.Printf("insert root %v at %d", payload, idx)
	return idx
}

// adjustParentOffsetsForInsertion corrects parent_offset for every node
// that is about to shift right by n slots starting at position at: a
// shifted node whose parent index is BELOW at does not itself shift, so
// the distance between them grows by n; a shifted node whose parent is
// also at or past at shifts together with it, so the distance is
// unchanged. Must run before the actual slice shift, while indices still
// reflect pre-insertion positions.
func (f *Forest[P]) adjustParentOffsetsForInsertion(at, n int) {
	for i := at; i < len(f.nodes); i++ {
		po := f.nodes[i].parentOffset
		if po == noParent {
			continue
		}
		if parentIdx := i - int(po); parentIdx < at {
			f.nodes[i].parentOffset = po + uint32(n)
		}
	}
}

// adjustParentOffsetsForRemoval is adjustParentOffsetsForInsertion's
// inverse: corrects parent_offset for every surviving node past the
// removed span [start, end), which is about to shift left by (end-start)
// slots. Must run before the actual slice removal, while indices still
// reflect pre-removal positions. A node whose parent lies within
// [start, end) cannot occur here: such a node would itself be part of the
// removed subtree.
func (f *Forest[P]) adjustParentOffsetsForRemoval(start, end int) {
	span := uint32(end - start)
	for i := end; i < len(f.nodes); i++ {
		po := f.nodes[i].parentOffset
		if po == noParent {
			continue
		}
		if parentIdx := i - int(po); parentIdx < start {
			f.nodes[i].parentOffset = po - span
		}
	}
}

// Insert adds payload as the new first child of the node at parentIndex,
// placed immediately at parentIndex+1 per spec §4.C step 4 — any existing
// children of parentIndex shift right to make room, becoming later
// siblings of the new node rather than keeping their earlier positions. It
// returns (-1, false) if parentIndex is out of range — a ParentNotFound
// condition is reported as a bool here rather than an error, since it is
// an ordinary, expected outcome a caller is meant to branch on (spec §7).
func (f *Forest[P]) Insert(parentIndex int, payload P) (int, bool) {
	if parentIndex < 0 || parentIndex >= len(f.nodes) {
		return -1, false
	}

	insertAt := parentIndex + 1

	f.adjustParentOffsetsForInsertion(insertAt, 1)

	newNode := node{childrenCount: 0, branchStride: 1, parentOffset: uint32(insertAt - parentIndex)}
	f.nodes = append(f.nodes, node{})
	copy(f.nodes[insertAt+1:], f.nodes[insertAt:len(f.nodes)-1])
	f.nodes[insertAt] = newNode

	f.payloads = append(f.payloads, payload)
	copy(f.payloads[insertAt+1:], f.payloads[insertAt:len(f.payloads)-1])
	f.payloads[insertAt] = payload

	// Ancestors along the parentIndex -> root chain get their
	// branch_stride bumped to cover the new node.
	f.nodes[parentIndex].childrenCount++
	for anc := parentIndex; anc != -1; {
		f.nodes[anc].branchStride++
		if f.nodes[anc].parentOffset == noParent {
			break
		}
		anc -= int(f.nodes[anc].parentOffset)
	}

	debugLogger.Printf("insert %v under %d at %d", payload, parentIndex, insertAt)
	return insertAt, true
}

// subtreeRange returns [start, end) for the subtree rooted at idx.
func (f *Forest[P]) subtreeRange(idx int) (int, int) {
	return idx, idx + int(f.nodes[idx].branchStride)
}

// EraseBranch removes the node at idx and its entire subtree. Returns the
// number of nodes removed, or 0 if idx is out of range.
func (f *Forest[P]) EraseBranch(idx int) int {
	if idx < 0 || idx >= len(f.nodes) {
		return 0
	}

	start, end := f.subtreeRange(idx)
	removed := end - start

	if parentOff := f.nodes[idx].parentOffset; parentOff != noParent {
		parentIdx := idx - int(parentOff)
		f.nodes[parentIdx].childrenCount--
		for anc := parentIdx; ; {
			f.nodes[anc].branchStride -= uint32(removed)
			if f.nodes[anc].parentOffset == noParent {
				break
			}
			anc -= int(f.nodes[anc].parentOffset)
		}
	}

	f.adjustParentOffsetsForRemoval(start, end)
	f.nodes = append(f.nodes[:start], f.nodes[end:]...)
	f.payloads = append(f.payloads[:start], f.payloads[end:]...)

	debugLogger.Printf("erase branch at %d (%d nodes)", idx, removed)
	return removed
}

// Unparent detaches the node at idx (and its subtree) from its current
// parent and re-inserts it as a new root tree at the end of the forest.
// Returns the node's new index, or -1 if idx is out of range.
func (f *Forest[P]) Unparent(idx int) int {
	if idx < 0 || idx >= len(f.nodes) {
		return -1
	}
	if f.nodes[idx].parentOffset == noParent {
		return idx // already a root
	}

	start, end := f.subtreeRange(idx)
	span := end - start

	// Internal offsets within [start, end) are relative distances
	// between nodes that both lie inside the copied range, so the copy
	// carries them verbatim; only the subtree root's own offset needs
	// to change, to noParent, since it becomes a new root.
	nodesCopy := append([]node(nil), f.nodes[start:end]...)
	payloadsCopy := append([]P(nil), f.payloads[start:end]...)
	nodesCopy[0].parentOffset = noParent

	parentIdx := idx - int(f.nodes[idx].parentOffset)
	f.nodes[parentIdx].childrenCount--
	for anc := parentIdx; ; {
		f.nodes[anc].branchStride -= uint32(span)
		if f.nodes[anc].parentOffset == noParent {
			break
		}
		anc -= int(f.nodes[anc].parentOffset)
	}

	f.adjustParentOffsetsForRemoval(start, end)
	f.nodes = append(f.nodes[:start], f.nodes[end:]...)
	f.payloads = append(f.payloads[:start], f.payloads[end:]...)

	newIdx := len(f.nodes)
	f.nodes = append(f.nodes, nodesCopy...)
	f.payloads = append(f.payloads, payloadsCopy...)

	debugLogger.Printf("unparent %d -> new root at %d", idx, newIdx)
	return newIdx
}

// IsDescendantOf reports whether idx lies within ancestorIdx's subtree
// (ancestorIdx included, i.e. a node is its own descendant here — callers
// that want strict descendance should additionally check idx != ancestorIdx).
func (f *Forest[P]) IsDescendantOf(idx, ancestorIdx int) bool {
	if idx < 0 || idx >= len(f.nodes) || ancestorIdx < 0 || ancestorIdx >= len(f.nodes) {
		return false
	}
	start, end := f.subtreeRange(ancestorIdx)
	return idx >= start && idx < end
}

// Reparent moves the node at idx (with its subtree) to become the last
// child of newParentIdx. Panics with CycleWouldForm if newParentIdx lies
// within idx's own subtree (including idx itself) — per spec §7, this is a
// caller programming error, not a recoverable condition.
func (f *Forest[P]) Reparent(idx, newParentIdx int) {
	if idx < 0 || idx >= len(f.nodes) || newParentIdx < 0 || newParentIdx >= len(f.nodes) {
		panic("forest: index out of range")
	}
	if f.IsDescendantOf(newParentIdx, idx) {
		panic(fmt.Sprintf("forest: CycleWouldForm: %d is an ancestor of (or is) %d", idx, newParentIdx))
	}

	start, end := f.subtreeRange(idx)
	span := end - start

	nodesCopy := append([]node(nil), f.nodes[start:end]...)
	payloadsCopy := append([]P(nil), f.payloads[start:end]...)

	if oldParentOff := f.nodes[idx].parentOffset; oldParentOff != noParent {
		oldParentIdx := idx - int(oldParentOff)
		f.nodes[oldParentIdx].childrenCount--
		for anc := oldParentIdx; ; {
			f.nodes[anc].branchStride -= uint32(span)
			if f.nodes[anc].parentOffset == noParent {
				break
			}
			anc -= int(f.nodes[anc].parentOffset)
		}
	}

	f.adjustParentOffsetsForRemoval(start, end)
	f.nodes = append(f.nodes[:start], f.nodes[end:]...)
	f.payloads = append(f.payloads[:start], f.payloads[end:]...)

	// newParentIdx may have shifted left if it was after the removed
	// span.
	if newParentIdx > start {
		newParentIdx -= span
	}

	insertAt := newParentIdx + int(f.nodes[newParentIdx].branchStride)
	nodesCopy[0].parentOffset = uint32(insertAt - newParentIdx)

	f.adjustParentOffsetsForInsertion(insertAt, span)
	tail := append([]node(nil), f.nodes[insertAt:]...)
	f.nodes = append(f.nodes[:insertAt], append(nodesCopy, tail...)...)
	tailP := append([]P(nil), f.payloads[insertAt:]...)
	f.payloads = append(f.payloads[:insertAt], append(payloadsCopy, tailP...)...)

	f.nodes[newParentIdx].childrenCount++
	for anc := newParentIdx; ; {
		f.nodes[anc].branchStride += uint32(span)
		if f.nodes[anc].parentOffset == noParent {
			break
		}
		anc -= int(f.nodes[anc].parentOffset)
	}

	debugLogger.Printf("reparent %d -> under %d", idx, newParentIdx)
}

// NodeInfo is a snapshot of a node's structural bookkeeping, for
// diagnostics and the five traversal families below.
type NodeInfo struct {
	ChildrenCount int
	BranchStride  int
	ParentOffset  int // -1 for a root
}

// GetNodeInfo returns idx's structural bookkeeping, or false if idx is out
// of range.
func (f *Forest[P]) GetNodeInfo(idx int) (NodeInfo, bool) {
	if idx < 0 || idx >= len(f.nodes) {
		return NodeInfo{}, false
	}
	n := f.nodes[idx]
	parentOff := -1
	if n.parentOffset != noParent {
		parentOff = int(n.parentOffset)
	}
	return NodeInfo{
		ChildrenCount: int(n.childrenCount),
		BranchStride:  int(n.branchStride),
		ParentOffset:  parentOff,
	}, true
}

// IsRoot reports whether idx has no parent.
func (f *Forest[P]) IsRoot(idx int) bool {
	if idx < 0 || idx >= len(f.nodes) {
		return false
	}
	return f.nodes[idx].parentOffset == noParent
}

// IsLeaf reports whether idx has no children.
func (f *Forest[P]) IsLeaf(idx int) bool {
	if idx < 0 || idx >= len(f.nodes) {
		return false
	}
	return f.nodes[idx].childrenCount == 0
}

// GetParent returns the index of idx's parent, or (-1, false) if idx is a
// root or out of range.
func (f *Forest[P]) GetParent(idx int) (int, bool) {
	if idx < 0 || idx >= len(f.nodes) || f.nodes[idx].parentOffset == noParent {
		return -1, false
	}
	return idx - int(f.nodes[idx].parentOffset), true
}

// IsLastSibling reports whether idx is the last child of its parent (or
// the last root tree, if idx is itself a root). Compares where idx's
// subtree ends with where its parent's subtree (or the forest) ends.
func (f *Forest[P]) IsLastSibling(idx int) bool {
	if idx < 0 || idx >= len(f.nodes) {
		return false
	}
	_, end := f.subtreeRange(idx)
	if end == len(f.nodes) {
		return true
	}
	if parentIdx, ok := f.GetParent(idx); ok {
		_, parentEnd := f.subtreeRange(parentIdx)
		return end == parentEnd
	}
	// idx is a root and end < len(f.nodes): the node immediately
	// following a root's subtree is always the next root tree, since
	// the forest is a flat concatenation of root-tree spans. idx is
	// therefore never the last root in this branch.
	return false
}

// Payload returns the payload stored at idx, or false if idx is out of
// range.
func (f *Forest[P]) Payload(idx int) (P, bool) {
	var zero P
	if idx < 0 || idx >= len(f.payloads) {
		return zero, false
	}
	return f.payloads[idx], true
}

// --- Traversals ---
//
// Five families, each offered by-index (starting point given as an index),
// by-payload (starting point resolved via FindNodeIndex first), and
// whole-forest (every root tree, in forest order). All take a callback
// receiving a *P so callers needing read-only semantics simply don't
// mutate through it (see DESIGN.md Open Question #5).

// DepthFirst visits idx's subtree in pre-order (idx itself first).
func (f *Forest[P]) DepthFirst(idx int, visit func(i int, payload *P)) {
	if idx < 0 || idx >= len(f.nodes) {
		return
	}
	_, end := f.subtreeRange(idx)
	for i := idx; i < end; i++ {
		visit(i, &f.payloads[i])
	}
}

// DepthFirstByPayload resolves payload to its node and visits its subtree
// in pre-order. No-op if payload isn't found.
func (f *Forest[P]) DepthFirstByPayload(payload P, visit func(i int, p *P)) {
	if idx, ok := f.FindNodeIndex(payload); ok {
		f.DepthFirst(idx, visit)
	}
}

// DepthFirstAll visits every node of every tree in forest (pre-order)
// order — equivalent to DepthFirst(0, ...) extended across every root, i.e.
// simply every node in storage order.
func (f *Forest[P]) DepthFirstAll(visit func(i int, p *P)) {
	for i := range f.payloads {
		visit(i, &f.payloads[i])
	}
}

// LeveledVisit pairs a node with its depth relative to the traversal's
// starting point (0 at the start).
type LeveledVisit[P any] func(i int, payload *P, level int)

// DepthFirstWithLevel visits idx's subtree in pre-order, additionally
// reporting each node's depth relative to idx.
func (f *Forest[P]) DepthFirstWithLevel(idx int, visit LeveledVisit[P]) {
	if idx < 0 || idx >= len(f.nodes) {
		return
	}
	type frame struct {
		i     int
		level int
	}
	_, end := f.subtreeRange(idx)
	stack := []frame{{idx, 0}}
	// Pre-order via an explicit stack, pushing children in reverse so
	// they pop left-to-right; children are the immediate sub-branches
	// of the current node, found by walking forward skipping nested
	// subtrees.
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if fr.i >= end {
			continue
		}
		visit(fr.i, &f.payloads[fr.i], fr.level)

		var children []int
		for c := fr.i + 1; c < fr.i+int(f.nodes[fr.i].branchStride); {
			children = append(children, c)
			c += int(f.nodes[c].branchStride)
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], fr.level + 1})
		}
	}
}

// DepthFirstWithLevelByPayload resolves payload then runs
// DepthFirstWithLevel from its node.
func (f *Forest[P]) DepthFirstWithLevelByPayload(payload P, visit LeveledVisit[P]) {
	if idx, ok := f.FindNodeIndex(payload); ok {
		f.DepthFirstWithLevel(idx, visit)
	}
}

// DepthFirstWithLevelAll runs DepthFirstWithLevel across every root tree,
// each root restarting its level count at 0.
func (f *Forest[P]) DepthFirstWithLevelAll(visit LeveledVisit[P]) {
	for i := 0; i < len(f.nodes); {
		if f.nodes[i].parentOffset == noParent {
			f.DepthFirstWithLevel(i, visit)
		}
		i += int(f.nodes[i].branchStride)
	}
}

// childrenOf returns the direct children indices of idx, in pre-order.
func (f *Forest[P]) childrenOf(idx int) []int {
	var children []int
	limit := idx + int(f.nodes[idx].branchStride)
	for c := idx + 1; c < limit; {
		children = append(children, c)
		c += int(f.nodes[c].branchStride)
	}
	return children
}

// BreadthFirst visits idx's subtree level by level.
func (f *Forest[P]) BreadthFirst(idx int, visit func(i int, p *P)) {
	if idx < 0 || idx >= len(f.nodes) {
		return
	}
	queue := []int{idx}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visit(i, &f.payloads[i])
		queue = append(queue, f.childrenOf(i)...)
	}
}

// BreadthFirstByPayload resolves payload then runs BreadthFirst from its
// node.
func (f *Forest[P]) BreadthFirstByPayload(payload P, visit func(i int, p *P)) {
	if idx, ok := f.FindNodeIndex(payload); ok {
		f.BreadthFirst(idx, visit)
	}
}

// BreadthFirstAll runs BreadthFirst on each root tree in turn, in forest
// order — a per-root BFS, not a globally interleaved level order across
// trees (spec §4.C).
func (f *Forest[P]) BreadthFirstAll(visit func(i int, p *P)) {
	for i := 0; i < len(f.nodes); i += int(f.nodes[i].branchStride) {
		f.BreadthFirst(i, visit)
	}
}

// Progressive visits idx's subtree in pre-order, pairing each node with
// its direct parent's index (-1 for idx itself). Named for its intended
// use: propagating a transform or other accumulated value down from
// parent to child as the traversal proceeds.
func (f *Forest[P]) Progressive(idx int, visit func(i int, payload *P, parent int)) {
	if idx < 0 || idx >= len(f.nodes) {
		return
	}
	_, end := f.subtreeRange(idx)
	parentOf := make(map[int]int, end-idx)
	for i := idx; i < end; i++ {
		parent := -1
		if p, ok := parentOf[i]; ok {
			parent = p
		} else if i != idx {
			if p, ok := f.GetParent(i); ok {
				parent = p
			}
		}
		visit(i, &f.payloads[i], parent)
		for _, c := range f.childrenOf(i) {
			parentOf[c] = i
		}
	}
}

// ProgressiveByPayload resolves payload then runs Progressive from its
// node.
func (f *Forest[P]) ProgressiveByPayload(payload P, visit func(i int, p *P, parent int)) {
	if idx, ok := f.FindNodeIndex(payload); ok {
		f.Progressive(idx, visit)
	}
}

// ProgressiveAll runs Progressive across every node in storage order,
// parent reported as -1 for each root.
func (f *Forest[P]) ProgressiveAll(visit func(i int, p *P, parent int)) {
	for i := range f.payloads {
		parent, ok := f.GetParent(i)
		if !ok {
			parent = -1
		}
		visit(i, &f.payloads[i], parent)
	}
}

// Ascend walks from idx up through its ancestors to the tree's root,
// inclusive of idx itself, via parent_offset — the inverse direction of
// the other four families.
func (f *Forest[P]) Ascend(idx int, visit func(i int, p *P)) {
	for i := idx; i >= 0 && i < len(f.nodes); {
		visit(i, &f.payloads[i])
		if f.nodes[i].parentOffset == noParent {
			return
		}
		i -= int(f.nodes[i].parentOffset)
	}
}

// AscendByPayload resolves payload then runs Ascend from its node.
func (f *Forest[P]) AscendByPayload(payload P, visit func(i int, p *P)) {
	if idx, ok := f.FindNodeIndex(payload); ok {
		f.Ascend(idx, visit)
	}
}

// AscendAll runs Ascend starting from every node in the forest, in storage
// order (a shorthand useful mainly for testing the single-node case;
// for a real bottom-up sweep, callers typically pick specific leaves).
func (f *Forest[P]) AscendAll(visit func(i int, p *P)) {
	for i := range f.payloads {
		f.Ascend(i, visit)
	}
}

// ValidateInvariants checks internal consistency: every node's
// branch_stride must exactly cover its children's combined strides plus
// itself, every parent_offset must point at a node whose subtree contains
// the child, and children_count must match the number of direct children
// actually reachable by walking branch_stride — in the spirit of the
// teacher's ValidateClusterIntegrity sweep.
func (f *Forest[P]) ValidateInvariants() error {
	for i := range f.nodes {
		children := f.childrenOf(i)
		if len(children) != int(f.nodes[i].childrenCount) {
			return fmt.Errorf("forest: node %d reports %d children, found %d", i, f.nodes[i].childrenCount, len(children))
		}

		wantStride := uint32(1)
		for _, c := range children {
			wantStride += f.nodes[c].branchStride
		}
		if f.nodes[i].branchStride != wantStride {
			return fmt.Errorf("forest: node %d has branch_stride %d, want %d", i, f.nodes[i].branchStride, wantStride)
		}

		for _, c := range children {
			if int(f.nodes[c].parentOffset) != c-i {
				return fmt.Errorf("forest: node %d's child %d has parent_offset %d, want %d", i, c, f.nodes[c].parentOffset, c-i)
			}
		}

		if off := f.nodes[i].parentOffset; off != noParent {
			parentIdx := i - int(off)
			if parentIdx < 0 || parentIdx >= len(f.nodes) {
				return fmt.Errorf("forest: node %d's parent_offset %d points out of range", i, off)
			}
			start, end := f.subtreeRange(parentIdx)
			if i < start || i >= end {
				return fmt.Errorf("forest: node %d's claimed parent %d does not contain it in its subtree", i, parentIdx)
			}
		}
	}
	return nil
}

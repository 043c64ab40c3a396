package mdict

import "sort"

// recordBlockTable is a flat sorted index of (compressed-offset,
// decompressed-offset) pairs plus a sentinel pair. It is immutable after
// loadIndex populates it at open, aside from the one-time buildTree call
// that attaches the range-tree fast path once every pair is in.
type recordBlockTable struct {
	compOffsets   []uint32
	decompOffsets []uint32
	tree          *recordRangeNode
}

func newRecordBlockTable(n int) *recordBlockTable {
	return &recordBlockTable{
		compOffsets:   make([]uint32, 0, n+1),
		decompOffsets: make([]uint32, 0, n+1),
	}
}

// put appends one (comp_offset, decomp_offset) pair in sequence. The
// caller appends num_record_blocks pairs followed by one sentinel pair so
// that adjacent-pair subtraction yields block sizes.
func (t *recordBlockTable) put(compOffset, decompOffset uint32) {
	t.compOffsets = append(t.compOffsets, compOffset)
	t.decompOffsets = append(t.decompOffsets, decompOffset)
}

// numBlocks returns the number of real (non-sentinel) blocks.
func (t *recordBlockTable) numBlocks() int {
	if len(t.decompOffsets) == 0 {
		return 0
	}
	return len(t.decompOffsets) - 1
}

// totalDecompSize is decomp_offset[N], the total uncompressed record
// stream size.
func (t *recordBlockTable) totalDecompSize() uint32 {
	if len(t.decompOffsets) == 0 {
		return 0
	}
	return t.decompOffsets[len(t.decompOffsets)-1]
}

// buildTree attaches the range-tree fast path over t's pairs. Called once
// by loadRecordBlockIndex after every pair (plus the sentinel) has been
// put. Safe to call on an empty table; it just leaves tree nil.
func (t *recordBlockTable) buildTree() {
	n := t.numBlocks()
	if n == 0 {
		return
	}
	descs := make([]RecordBlockDesc, n)
	for i := 0; i < n; i++ {
		descs[i] = t.descAt(i)
	}
	t.tree = buildRangeTree(descs)
}

func (t *recordBlockTable) descAt(i int) RecordBlockDesc {
	return RecordBlockDesc{
		BlockNo:      i,
		CompOffset:   t.compOffsets[i],
		CompSize:     t.compOffsets[i+1] - t.compOffsets[i],
		DecompOffset: t.decompOffsets[i],
		DecompSize:   t.decompOffsets[i+1] - t.decompOffsets[i],
	}
}

// find locates the block containing decompPosition. It tries the
// range-tree fast path first and falls back to a binary search over the
// cumulative decompressed offsets when the tree misses or was never
// built (buildTree not called, or the table predates it in a test).
// Out-of-range input returns ok=false either way.
func (t *recordBlockTable) find(decompPosition uint32) (RecordBlockDesc, bool) {
	n := t.numBlocks()
	if n == 0 || decompPosition >= t.totalDecompSize() {
		return RecordBlockDesc{}, false
	}

	if t.tree != nil {
		if desc, ok := queryRangeTree(t.tree, decompPosition); ok {
			return desc, true
		}
	}

	i := sort.Search(n, func(i int) bool {
		return t.decompOffsets[i+1] > decompPosition
	})
	if i >= n {
		return RecordBlockDesc{}, false
	}
	return t.descAt(i), true
}

// recordRangeNode is a node of the range tree built over a
// recordBlockTable's decompressed-offset spans: an interior node covers
// the union range of its subtree, a leaf carries the block's own
// RecordBlockDesc.
type recordRangeNode struct {
	startRange uint32
	endRange   uint32
	desc       *RecordBlockDesc
	left       *recordRangeNode
	right      *recordRangeNode
}

// buildRangeTree recursively splits descs down the middle until each leaf
// covers exactly one block's decompressed span.
func buildRangeTree(descs []RecordBlockDesc) *recordRangeNode {
	if len(descs) == 0 {
		return nil
	}

	root := &recordRangeNode{
		startRange: descs[0].DecompOffset,
		endRange:   descs[len(descs)-1].DecompOffset + descs[len(descs)-1].DecompSize,
	}

	if len(descs) == 1 {
		d := descs[0]
		root.desc = &d
		return root
	}

	mid := len(descs) / 2
	root.left = buildRangeTree(descs[:mid])
	root.right = buildRangeTree(descs[mid:])
	return root
}

// queryRangeTree walks root looking for the leaf whose span contains
// decompPosition.
func queryRangeTree(root *recordRangeNode, decompPosition uint32) (RecordBlockDesc, bool) {
	if root == nil || decompPosition < root.startRange || decompPosition >= root.endRange {
		return RecordBlockDesc{}, false
	}
	if root.desc != nil {
		return *root.desc, true
	}
	if root.left != nil && decompPosition < root.left.endRange {
		return queryRangeTree(root.left, decompPosition)
	}
	if root.right != nil && decompPosition >= root.right.startRange {
		return queryRangeTree(root.right, decompPosition)
	}
	return RecordBlockDesc{}, false
}

package vmem

// Decode partitions a virtual address into its in-page offset, its page
// number, and the per-level page-table indices used to walk the tree. The
// index for level 0 occupies the most significant LayerSizes[0] bits of the
// page number; the index for the last level occupies the least significant
// LayerSizes[len-1] bits. Concatenating idx[0]..idx[depth-1] reproduces the
// page number exactly.
func (g *Geometry) Decode(v uint64) (page uint64, offset uint64, idx []uint64) {
	offset = v & (g.PageSize - 1)
	page = v >> g.OffsetWidth

	idx = make([]uint64, g.TablesDepth)
	for level := uint(0); level < g.TablesDepth; level++ {
		mask := uint64(1)<<g.LayerSizes[level] - 1
		idx[level] = (page >> g.LayerShift[level]) & mask
	}
	return page, offset, idx
}

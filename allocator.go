package vmem

import "github.com/NebulousLabs/Sia/build"

// frameAllocator implements the three-tier frame-acquisition algorithm:
// recycle an empty table, then grow into an unused frame, then evict by
// cyclic distance. It shares the geometry and physical memory of the
// VirtualMemory that owns it but, like the core as a whole, keeps no state
// of its own between calls.
type frameAllocator struct {
	geometry *Geometry
	physmem  *PhysicalMemory
}

// dfsState accumulates, in one depth-first pass over the reachable table
// tree, the results all three tiers need: the first empty intermediate
// table encountered (tier 1), the highest frame number reachable (tier 2),
// and the leaf furthest by cyclic distance from the page being faulted in
// (tier 3). Grounded on original_source's dfs_attributes.
type dfsState struct {
	pageIn PageNumber

	emptyFound      bool
	emptyFrame      Frame
	emptyParentAddr uint64

	maxFrame Frame

	haveVictim       bool
	victimFrame      Frame
	victimPage       PageNumber
	victimParentAddr uint64
	victimDistance   uint64
}

// findFrame returns a frame number that is not locked in path and is safe
// to repurpose as either a fresh page-table frame or a leaf-page frame,
// evicting a victim page if necessary.
func (fa *frameAllocator) findFrame(pageIn PageNumber, path *walkPath) (Frame, error) {
	state := &dfsState{pageIn: pageIn}
	fa.walk(state, 0, 0, 0, path)

	// Tier 1: an empty intermediate table, detached from its parent.
	if state.emptyFound {
		fa.physmem.WriteWord(state.emptyParentAddr, 0)
		return state.emptyFrame, nil
	}

	// Tier 2: grow into a frame past the end of the reachable tree.
	if candidate := state.maxFrame + 1; uint64(candidate) < fa.geometry.NumFrames && !path.contains(candidate) {
		return candidate, nil
	}

	// Tier 3: evict the leaf with maximum cyclic distance to pageIn.
	if state.haveVictim {
		if err := fa.physmem.Evict(state.victimFrame, state.victimPage); err != nil {
			return 0, build.ExtendErr("failed to evict victim page", err)
		}
		fa.physmem.WriteWord(state.victimParentAddr, 0)
		return state.victimFrame, nil
	}

	// Impossible when NUM_FRAMES > TABLES_DEPTH, the geometric precondition
	// NewGeometry enforces.
	panic("sanity check failed: frame allocator exhausted all three tiers")
}

// walk recurses over the table frame at (frame, level), whose reachable
// page number prefix is pageAddr. level indexes table levels in
// [0, TablesDepth): level TablesDepth-1's children are leaf pages, every
// other level's children are further tables.
func (fa *frameAllocator) walk(state *dfsState, frame Frame, level uint, pageAddr uint64, path *walkPath) {
	// frame's own emptiness was already checked by its caller (the parent
	// that discovered it as a child), except for the root, which has no
	// parent and is always locked in path by the walker before the
	// allocator is ever invoked, so it never needs checking here.
	base := uint64(frame) * fa.geometry.PageSize
	for i := uint64(0); i < fa.geometry.PageSize; i++ {
		childWord := fa.physmem.ReadWord(base + i)
		if childWord == 0 {
			continue
		}
		child := Frame(childWord)
		parentAddr := base + i
		childPageAddr := pageAddr + (i << fa.geometry.LayerShift[level])

		if child > state.maxFrame {
			state.maxFrame = child
		}

		if level == fa.geometry.TablesDepth-1 {
			// child is a leaf page.
			if path.contains(child) {
				continue
			}
			dist := cyclicDistance(childPageAddr, uint64(state.pageIn), fa.geometry.NumPages)
			if !state.haveVictim || dist > state.victimDistance {
				state.haveVictim = true
				state.victimFrame = child
				state.victimPage = PageNumber(childPageAddr)
				state.victimParentAddr = parentAddr
				state.victimDistance = dist
			}
			continue
		}

		// child is an intermediate table: check it for tier 1 before
		// descending further, so "first encountered" follows DFS preorder.
		if !state.emptyFound && !path.contains(child) && fa.isEmptyTable(child) {
			state.emptyFound = true
			state.emptyFrame = child
			state.emptyParentAddr = parentAddr
		}
		fa.walk(state, child, level+1, childPageAddr, path)
	}
}

// isEmptyTable reports whether every entry of frame is zero.
func (fa *frameAllocator) isEmptyTable(frame Frame) bool {
	base := uint64(frame) * fa.geometry.PageSize
	for i := uint64(0); i < fa.geometry.PageSize; i++ {
		if fa.physmem.ReadWord(base+i) != 0 {
			return false
		}
	}
	return true
}

// cyclicDistance is the shorter of the forward and backward arc lengths
// between p and pageIn on a ring of size numPages.
func cyclicDistance(p, pageIn, numPages uint64) uint64 {
	var diff uint64
	if p > pageIn {
		diff = p - pageIn
	} else {
		diff = pageIn - p
	}
	if rest := numPages - diff; rest < diff {
		return rest
	}
	return diff
}

package vmem

import "fmt"

// Geometry is the compile-time shape of an address space: word widths, page
// size, and the page-table tree depth. It is supplied by the collaborator
// that owns the simulated physical memory and is immutable once built; the
// core reads it but never defines it.
type Geometry struct {
	OffsetWidth          uint
	VirtualAddressWidth  uint
	PhysicalAddressWidth uint
	TablesDepth          uint

	// PageSize is 2^OffsetWidth words.
	PageSize uint64

	// NumFrames is 2^(PhysicalAddressWidth - OffsetWidth).
	NumFrames uint64

	// NumPages is 2^(VirtualAddressWidth - OffsetWidth).
	NumPages uint64

	// VirtualMemorySize is NumPages * PageSize.
	VirtualMemorySize uint64

	// LayerSizes holds, for each level in [0, TablesDepth), the bit-width of
	// the page-table index at that level. LayerSizes[0] is the most
	// significant field of the page number, LayerSizes[TablesDepth-1] the
	// least. The page-number bit-width is split as evenly as possible: each
	// level gets base = floor(pageBits/TablesDepth) bits, and the first
	// pageBits mod TablesDepth levels get one extra bit.
	LayerSizes []uint

	// LayerShift[level] is the number of bits contributed by every level
	// below it (sum of LayerSizes[level+1:]), the shift needed to place a
	// level's index into its slot of the reconstructed page number.
	LayerShift []uint
}

// NewGeometry validates the four build-time widths and the tree depth and
// returns a ready-to-use Geometry. It rejects geometries where physical
// memory couldn't possibly hold a full translation path (NumFrames <=
// TablesDepth), the precondition the frame allocator relies on to guarantee
// tier 2 or tier 3 always succeeds.
func NewGeometry(offsetWidth, virtualAddressWidth, physicalAddressWidth, tablesDepth uint) (*Geometry, error) {
	if tablesDepth == 0 {
		return nil, fmt.Errorf("vmem: tablesDepth must be at least 1")
	}
	if virtualAddressWidth <= offsetWidth {
		return nil, fmt.Errorf("vmem: virtualAddressWidth must exceed offsetWidth")
	}
	if physicalAddressWidth <= offsetWidth {
		return nil, fmt.Errorf("vmem: physicalAddressWidth must exceed offsetWidth")
	}

	pageBits := virtualAddressWidth - offsetWidth
	if pageBits < tablesDepth {
		return nil, fmt.Errorf("vmem: page-number width %d can't be split across %d levels", pageBits, tablesDepth)
	}

	numFrames := uint64(1) << (physicalAddressWidth - offsetWidth)
	if numFrames <= uint64(tablesDepth) {
		return nil, fmt.Errorf("vmem: NUM_FRAMES (%d) must exceed TABLES_DEPTH (%d)", numFrames, tablesDepth)
	}

	layerSizes := make([]uint, tablesDepth)
	base := pageBits / tablesDepth
	extra := pageBits % tablesDepth
	for level := uint(0); level < tablesDepth; level++ {
		layerSizes[level] = base
		if level < extra {
			layerSizes[level]++
		}
	}

	layerShift := make([]uint, tablesDepth)
	var shift uint
	for level := int(tablesDepth) - 1; level >= 0; level-- {
		layerShift[level] = shift
		shift += layerSizes[level]
	}

	pageSize := uint64(1) << offsetWidth
	numPages := uint64(1) << pageBits

	return &Geometry{
		OffsetWidth:          offsetWidth,
		VirtualAddressWidth:  virtualAddressWidth,
		PhysicalAddressWidth: physicalAddressWidth,
		TablesDepth:          tablesDepth,
		PageSize:             pageSize,
		NumFrames:            numFrames,
		NumPages:             numPages,
		VirtualMemorySize:    numPages * pageSize,
		LayerSizes:           layerSizes,
		LayerShift:           layerShift,
	}, nil
}

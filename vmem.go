package vmem

import (
	"errors"
	"fmt"
)

// Error kinds reported by the public read/write operations: both are
// reported before any physical memory side effect, so a failed call leaves
// all state unchanged.
var (
	// ErrInvalidAddress is returned when a virtual address lies outside
	// [0, VirtualMemorySize).
	ErrInvalidAddress = errors.New("vmem: virtual address out of range")

	// ErrNilDestination is returned by ReadWord when the output location is
	// nil.
	ErrNilDestination = errors.New("vmem: nil destination for read")
)

// VirtualMemory is the hierarchical demand-paged virtual memory manager: a
// page-table walker and frame allocator sitting on top of a simulated
// physical memory and backing store. It owns no state of its own between
// calls beyond the physical memory it was constructed with, the single
// top-level owning type for the whole address space.
type VirtualMemory struct {
	geometry  *Geometry
	physmem   *PhysicalMemory
	allocator *frameAllocator
}

// NewVirtualMemory wires a VirtualMemory to the given geometry and backing
// store and initialises it (zeroing frame 0). It does not check that store
// was built for the same page size as geometry.
func NewVirtualMemory(geometry *Geometry, store BackingStore) *VirtualMemory {
	physmem := NewPhysicalMemory(geometry, store)
	vm := &VirtualMemory{
		geometry: geometry,
		physmem:  physmem,
		allocator: &frameAllocator{
			geometry: geometry,
			physmem:  physmem,
		},
	}
	vm.Initialize()
	return vm
}

// Initialize zeroes frame 0, the root page table. No other physical memory
// state is touched.
func (vm *VirtualMemory) Initialize() {
	vm.physmem.ZeroFrame(0)
}

// ReadWord reads the word at virtual address v into *dst. It fails, leaving
// physical memory untouched, if v is out of range or dst is nil.
func (vm *VirtualMemory) ReadWord(v uint64, dst *Word) error {
	if dst == nil {
		return ErrNilDestination
	}
	if v >= vm.geometry.VirtualMemorySize {
		return ErrInvalidAddress
	}

	addr, err := vm.translate(v)
	if err != nil {
		return err
	}
	*dst = vm.physmem.ReadWord(addr)
	return nil
}

// WriteWord writes w to virtual address v. It fails, leaving physical
// memory untouched, if v is out of range.
func (vm *VirtualMemory) WriteWord(v uint64, w Word) error {
	if v >= vm.geometry.VirtualMemorySize {
		return ErrInvalidAddress
	}

	addr, err := vm.translate(v)
	if err != nil {
		return err
	}
	vm.physmem.WriteWord(addr, w)
	return nil
}

// CheckTreeInvariant walks the reachable frame tree from frame 0 and
// confirms every frame has exactly one parent, i.e. that it is actually a
// tree rather than a DAG. It is a read-only verifier for tests exercising
// the post-translation tree invariant.
func (vm *VirtualMemory) CheckTreeInvariant() error {
	seen := make(map[Frame]bool)
	return vm.checkSubtree(0, 0, seen)
}

func (vm *VirtualMemory) checkSubtree(frame Frame, level uint, seen map[Frame]bool) error {
	if seen[frame] {
		return fmt.Errorf("vmem: frame %d reached by more than one path", frame)
	}
	seen[frame] = true

	if level >= vm.geometry.TablesDepth {
		return nil
	}

	base := uint64(frame) * vm.geometry.PageSize
	for i := uint64(0); i < vm.geometry.PageSize; i++ {
		child := vm.physmem.ReadWord(base + i)
		if child == 0 {
			continue
		}
		if level == vm.geometry.TablesDepth-1 {
			if seen[Frame(child)] {
				return fmt.Errorf("vmem: frame %d reached by more than one path", Frame(child))
			}
			seen[Frame(child)] = true
			continue
		}
		if err := vm.checkSubtree(Frame(child), level+1, seen); err != nil {
			return err
		}
	}
	return nil
}

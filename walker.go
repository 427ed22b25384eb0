package vmem

import "github.com/NebulousLabs/Sia/build"

// translate walks the page-table tree for virtual address v, materialising
// any missing intermediate tables or leaf pages on demand, and returns the
// corresponding physical address. v must already be validated to lie in
// [0, VirtualMemorySize).
func (vm *VirtualMemory) translate(v uint64) (uint64, error) {
	page, offset, idx := vm.geometry.Decode(v)

	path := newWalkPath(vm.geometry.TablesDepth)
	curFrame := Frame(0)
	path.lock(curFrame)

	for level := uint(0); level < vm.geometry.TablesDepth; level++ {
		slot := uint64(curFrame)*vm.geometry.PageSize + idx[level]
		child := vm.physmem.ReadWord(slot)

		if child == 0 {
			newFrame, err := vm.allocator.findFrame(PageNumber(page), path)
			if err != nil {
				return 0, build.ExtendErr("failed to acquire a frame during translation", err)
			}

			if level < vm.geometry.TablesDepth-1 {
				vm.physmem.ZeroFrame(newFrame)
			} else if err := vm.physmem.Restore(newFrame, PageNumber(page)); err != nil {
				return 0, build.ExtendErr("failed to restore page from backing store", err)
			}

			vm.physmem.WriteWord(slot, Word(newFrame))
			child = Word(newFrame)
		}

		curFrame = Frame(child)
		path.lock(curFrame)
	}

	return uint64(curFrame)*vm.geometry.PageSize + offset, nil
}

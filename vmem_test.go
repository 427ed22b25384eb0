package vmem

import (
	"testing"

	"github.com/NebulousLabs/fastrand"
)

// memoryTester is a helper object to simplify testing.
type memoryTester struct {
	vm *VirtualMemory
	g  *Geometry
}

// newMemoryTester returns a ready-to-rock memoryTester using the small
// scenario geometry.
func newMemoryTester(t *testing.T) *memoryTester {
	g := smallGeometry(t)
	return &memoryTester{
		vm: NewVirtualMemory(g, NewMemBackingStore(g)),
		g:  g,
	}
}

// snapshot copies the current contents of physical memory for later
// byte-identity comparison.
func (mt *memoryTester) snapshot() []Word {
	words := make([]Word, len(mt.vm.physmem.words))
	copy(words, mt.vm.physmem.words)
	return words
}

func sameWords(a, b []Word) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestS1SimpleWriteRead: Initialise; write 13 at address 13; read address 13
// -> 13.
func TestS1SimpleWriteRead(t *testing.T) {
	mt := newMemoryTester(t)

	if err := mt.vm.WriteWord(13, 13); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got Word
	if err := mt.vm.ReadWord(13, &got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != 13 {
		t.Errorf("expected 13 but got %v", got)
	}
}

// TestS2WriteReadEveryPage exercises eviction many times: write a distinct
// word at the start of every page, then confirm every one reads back
// correctly afterward.
func TestS2WriteReadEveryPage(t *testing.T) {
	mt := newMemoryTester(t)
	g := mt.g

	for i := uint64(0); i < g.NumPages; i++ {
		if err := mt.vm.WriteWord(i*g.PageSize, Word(i)); err != nil {
			t.Fatalf("write to page %v failed: %v", i, err)
		}
	}
	for i := uint64(0); i < g.NumPages; i++ {
		var got Word
		if err := mt.vm.ReadWord(i*g.PageSize, &got); err != nil {
			t.Fatalf("read from page %v failed: %v", i, err)
		}
		if got != Word(i) {
			t.Errorf("page %v should read back %v but got %v", i, i, got)
		}
	}
}

// TestS3FillPhysicalMemoryThenContinue fills physical memory with tables
// and leaves for pages 0..15 (forcing tier-3 evictions before page 15 is
// even written), then touches every other page, then confirms pages 0..15
// still read back correctly (having been evicted and restored along the
// way).
func TestS3FillPhysicalMemoryThenContinue(t *testing.T) {
	mt := newMemoryTester(t)
	g := mt.g

	const firstBatch = 16
	for i := uint64(0); i < firstBatch; i++ {
		if err := mt.vm.WriteWord(i*g.PageSize, Word(1000+i)); err != nil {
			t.Fatalf("write to page %v failed: %v", i, err)
		}
	}

	for i := uint64(firstBatch); i < g.NumPages; i++ {
		if err := mt.vm.WriteWord(i*g.PageSize, Word(i)); err != nil {
			t.Fatalf("write to page %v failed: %v", i, err)
		}
	}

	for i := uint64(0); i < firstBatch; i++ {
		var got Word
		if err := mt.vm.ReadWord(i*g.PageSize, &got); err != nil {
			t.Fatalf("read from page %v failed: %v", i, err)
		}
		if got != Word(1000+i) {
			t.Errorf("page %v should read back %v but got %v", i, 1000+i, got)
		}
	}
}

// TestS4LastAddress: Initialise; write 888 at VirtualMemorySize-1; read back
// -> 888.
func TestS4LastAddress(t *testing.T) {
	mt := newMemoryTester(t)
	last := mt.g.VirtualMemorySize - 1

	if err := mt.vm.WriteWord(last, 888); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got Word
	if err := mt.vm.ReadWord(last, &got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != 888 {
		t.Errorf("expected 888 but got %v", got)
	}
}

// TestS5OutOfRangeWriteIsRejected: a write at VirtualMemorySize fails and
// leaves physical memory byte-identical to its post-Initialize state.
func TestS5OutOfRangeWriteIsRejected(t *testing.T) {
	mt := newMemoryTester(t)
	before := mt.snapshot()

	if err := mt.vm.WriteWord(mt.g.VirtualMemorySize, 777); err != ErrInvalidAddress {
		t.Fatalf("expected ErrInvalidAddress but got %v", err)
	}
	if !sameWords(before, mt.snapshot()) {
		t.Error("physical memory should be unchanged after a rejected write")
	}
}

// TestS6RepeatedWritesToSameAddress: write 100, 200, 300 in sequence to the
// same address; read back -> 300.
func TestS6RepeatedWritesToSameAddress(t *testing.T) {
	mt := newMemoryTester(t)

	for _, w := range []Word{100, 200, 300} {
		if err := mt.vm.WriteWord(50, w); err != nil {
			t.Fatalf("write %v failed: %v", w, err)
		}
	}
	var got Word
	if err := mt.vm.ReadWord(50, &got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != 300 {
		t.Errorf("expected 300 but got %v", got)
	}
}

// TestReadRejectsNilDestination: ReadWord with a nil destination fails
// without touching physical memory.
func TestReadRejectsNilDestination(t *testing.T) {
	mt := newMemoryTester(t)
	before := mt.snapshot()

	if err := mt.vm.ReadWord(10, nil); err != ErrNilDestination {
		t.Fatalf("expected ErrNilDestination but got %v", err)
	}
	if !sameWords(before, mt.snapshot()) {
		t.Error("physical memory should be unchanged after a rejected read")
	}
}

// TestRoundTripIdentity fuzzes random addresses and words: writing w to v
// then reading v always yields w.
func TestRoundTripIdentity(t *testing.T) {
	mt := newMemoryTester(t)

	const iterations = 500
	for i := 0; i < iterations; i++ {
		v := fastrand.Uint64n(mt.g.VirtualMemorySize)
		w := Word(fastrand.Uint64n(1 << 32))

		if err := mt.vm.WriteWord(v, w); err != nil {
			t.Fatalf("write to %v failed: %v", v, err)
		}
		var got Word
		if err := mt.vm.ReadWord(v, &got); err != nil {
			t.Fatalf("read from %v failed: %v", v, err)
		}
		if got != w {
			t.Fatalf("round trip at %v: wrote %v, read %v", v, w, got)
		}
	}
}

// TestIsolation checks that writing to v1 doesn't change what is
// subsequently read at a distinct v2.
func TestIsolation(t *testing.T) {
	mt := newMemoryTester(t)

	v1 := fastrand.Uint64n(mt.g.VirtualMemorySize)
	var v2 uint64
	for {
		v2 = fastrand.Uint64n(mt.g.VirtualMemorySize)
		if v2 != v1 {
			break
		}
	}

	if err := mt.vm.WriteWord(v2, 42); err != nil {
		t.Fatalf("write to v2 failed: %v", err)
	}
	var before Word
	if err := mt.vm.ReadWord(v1, &before); err != nil {
		t.Fatalf("read from v1 failed: %v", err)
	}

	if err := mt.vm.WriteWord(v1, 7); err != nil {
		t.Fatalf("write to v1 failed: %v", err)
	}
	var afterV2 Word
	if err := mt.vm.ReadWord(v2, &afterV2); err != nil {
		t.Fatalf("read from v2 failed: %v", err)
	}
	if afterV2 != 42 {
		t.Errorf("writing to v1 should not change v2's value, got %v", afterV2)
	}
}

// TestPostTranslationTreeInvariant checks that after a burst of writes that
// forces repeated eviction, the reachable frame tree is still a tree, not a
// DAG.
func TestPostTranslationTreeInvariant(t *testing.T) {
	mt := newMemoryTester(t)

	for i := 0; i < 2000; i++ {
		v := fastrand.Uint64n(mt.g.VirtualMemorySize)
		if err := mt.vm.WriteWord(v, Word(i)); err != nil {
			t.Fatalf("write to %v failed: %v", v, err)
		}
		if err := mt.vm.CheckTreeInvariant(); err != nil {
			t.Fatalf("tree invariant broken after writing to %v: %v", v, err)
		}
	}
}

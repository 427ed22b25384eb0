package vmem

// Word is a single addressable unit of physical or virtual memory.
type Word uint64

// Frame is an index into the simulated physical memory, identifying either
// an intermediate page table or a leaf page.
type Frame uint64

// PageNumber identifies a leaf in the virtual address space.
type PageNumber uint64

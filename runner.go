package jpegxl

import "unsafe"

// ParallelRunner is a borrowed parallel execution capability. The engine
// calls the runner function with the opaque context to fan out work; this
// package never inspects or schedules on it. Implementations must stay alive
// for as long as any Decoder borrowing them; see the parallel subpackage for
// ready-made runners.
type ParallelRunner interface {
	// RunnerFunc returns the C function pointer the engine invokes to run
	// parallel work.
	RunnerFunc() unsafe.Pointer
	// RunnerOpaque returns the context pointer handed back to RunnerFunc.
	RunnerOpaque() unsafe.Pointer
}

// MemoryManager is a borrowed allocator capability, consumed by the native
// engine handle for its entire lifetime. It is handed over once at Decoder
// construction and must outlive the Decoder.
type MemoryManager interface {
	// Alloc returns size bytes of C-addressable memory, or nil on failure.
	Alloc(size uint) unsafe.Pointer
	// Free releases memory returned by Alloc.
	Free(ptr unsafe.Pointer)
}

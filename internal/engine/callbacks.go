package engine

/*
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	pointer "github.com/mattn/go-pointer"
)

// goEngineAlloc is the engine-side allocation trampoline. opaque is a
// go-pointer handle for the borrowed MemoryManager saved at handle creation.
//
//export goEngineAlloc
func goEngineAlloc(opaque unsafe.Pointer, size C.size_t) unsafe.Pointer {
	mm, ok := pointer.Restore(opaque).(MemoryManager)
	if !ok || mm == nil {
		return nil
	}
	return mm.Alloc(uint(size))
}

// goEngineFree releases memory handed out by goEngineAlloc.
//
//export goEngineFree
func goEngineFree(opaque unsafe.Pointer, address unsafe.Pointer) {
	if mm, ok := pointer.Restore(opaque).(MemoryManager); ok && mm != nil {
		mm.Free(address)
	}
}

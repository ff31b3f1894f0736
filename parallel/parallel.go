// Package parallel provides ready-made parallel runner capabilities for
// jpegxl decoders, backed by the engine's thread-pool runner library.
//
// A runner is borrowed by a Decoder via Config.ParallelRunner and must stay
// alive (not Closed) for as long as any decoder borrows it. The decoder
// never schedules work itself; it only hands the engine the runner function
// and its opaque context.
package parallel

/*
#cgo pkg-config: libjxl_threads
#include <jxl/thread_parallel_runner.h>
#include <jxl/resizable_parallel_runner.h>

static void* jxlThreadRunnerFn(void) {
	return (void*)&JxlThreadParallelRunner;
}

static void* jxlResizableRunnerFn(void) {
	return (void*)&JxlResizableParallelRunner;
}
*/
import "C"

import (
	"errors"
	"log/slog"
	"runtime"
	"unsafe"
)

// ErrCannotCreateRunner means the engine refused to allocate a runner
// (typically out of memory).
var ErrCannotCreateRunner = errors.New("parallel: cannot create runner")

// ThreadsRunner runs engine work on a fixed-size native thread pool.
type ThreadsRunner struct {
	opaque unsafe.Pointer
	closed bool
}

// NewThreadsRunner creates a thread-pool runner with numThreads workers.
// numThreads <= 0 selects the library default (one per CPU core).
func NewThreadsRunner(numThreads int) (*ThreadsRunner, error) {
	n := C.size_t(numThreads)
	if numThreads <= 0 {
		n = C.JxlThreadParallelRunnerDefaultNumWorkerThreads()
	}

	opaque := C.JxlThreadParallelRunnerCreate(nil, n)
	if opaque == nil {
		return nil, ErrCannotCreateRunner
	}

	r := &ThreadsRunner{opaque: opaque}
	runtime.SetFinalizer(r, (*ThreadsRunner).finalize)

	slog.Debug("parallel: thread runner created", "num_threads", int(n))
	return r, nil
}

// RunnerFunc returns the engine-side runner function pointer.
func (r *ThreadsRunner) RunnerFunc() unsafe.Pointer {
	return C.jxlThreadRunnerFn()
}

// RunnerOpaque returns the native thread pool handle.
func (r *ThreadsRunner) RunnerOpaque() unsafe.Pointer {
	return r.opaque
}

// Close releases the native thread pool. Idempotent. No decoder may borrow
// the runner after Close.
func (r *ThreadsRunner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	runtime.SetFinalizer(r, nil)
	C.JxlThreadParallelRunnerDestroy(r.opaque)
	return nil
}

func (r *ThreadsRunner) finalize() {
	if !r.closed {
		C.JxlThreadParallelRunnerDestroy(r.opaque)
	}
}

// ResizableRunner runs engine work on a thread pool whose size can be
// adjusted between decodes, typically from the image dimensions.
type ResizableRunner struct {
	opaque unsafe.Pointer
	closed bool
}

// NewResizableRunner creates a resizable runner with no worker threads yet;
// call SetThreadsFor (or SetThreads) before decoding large images.
func NewResizableRunner() (*ResizableRunner, error) {
	opaque := C.JxlResizableParallelRunnerCreate(nil)
	if opaque == nil {
		return nil, ErrCannotCreateRunner
	}

	r := &ResizableRunner{opaque: opaque}
	runtime.SetFinalizer(r, (*ResizableRunner).finalize)

	slog.Debug("parallel: resizable runner created")
	return r, nil
}

// SetThreads sets the worker thread count directly.
func (r *ResizableRunner) SetThreads(n int) {
	if n < 0 {
		n = 0
	}
	C.JxlResizableParallelRunnerSetThreads(r.opaque, C.size_t(n))
}

// SetThreadsFor sizes the pool for an image of the given dimensions using
// the library's suggestion, and returns the chosen thread count.
func (r *ResizableRunner) SetThreadsFor(width, height uint32) int {
	n := C.JxlResizableParallelRunnerSuggestThreads(C.uint64_t(width), C.uint64_t(height))
	C.JxlResizableParallelRunnerSetThreads(r.opaque, C.size_t(n))
	return int(n)
}

// RunnerFunc returns the engine-side runner function pointer.
func (r *ResizableRunner) RunnerFunc() unsafe.Pointer {
	return C.jxlResizableRunnerFn()
}

// RunnerOpaque returns the native runner handle.
func (r *ResizableRunner) RunnerOpaque() unsafe.Pointer {
	return r.opaque
}

// Close releases the native runner. Idempotent.
func (r *ResizableRunner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	runtime.SetFinalizer(r, nil)
	C.JxlResizableParallelRunnerDestroy(r.opaque)
	return nil
}

func (r *ResizableRunner) finalize() {
	if !r.closed {
		C.JxlResizableParallelRunnerDestroy(r.opaque)
	}
}

package engine

/*
#cgo pkg-config: libjxl
#include <stdlib.h>
#include <jxl/decode.h>

extern void* goEngineAlloc(void* opaque, size_t size);
extern void goEngineFree(void* opaque, void* address);

static JxlMemoryManager jxlGoMemoryManager(void* opaque) {
	JxlMemoryManager mm;
	mm.opaque = opaque;
	mm.alloc = goEngineAlloc;
	mm.free = goEngineFree;
	return mm;
}
*/
import "C"

import (
	"errors"
	"runtime"
	"unsafe"

	pointer "github.com/mattn/go-pointer"
)

// handle owns exactly one native decoder. Buffers handed to the engine stay
// pinned until the engine lets go of them (release, reset or destroy), since
// the engine keeps the raw pointers between calls.
type handle struct {
	dec      *C.JxlDecoder
	mmOpaque unsafe.Pointer // go-pointer ref pinning the borrowed memory manager

	inputPin runtime.Pinner
	imagePin runtime.Pinner
	jpegPin  runtime.Pinner
}

// NewHandle creates a native decoder, routing the engine's internal
// allocations through mm when non-nil. mm is borrowed and must outlive the
// handle. Returns an error only if the engine refuses to allocate a decoder.
func NewHandle(mm MemoryManager) (Handle, error) {
	h := &handle{}
	if mm != nil {
		h.mmOpaque = pointer.Save(mm)
		mgr := C.jxlGoMemoryManager(h.mmOpaque)
		h.dec = C.JxlDecoderCreate(&mgr)
	} else {
		h.dec = C.JxlDecoderCreate(nil)
	}
	if h.dec == nil {
		if h.mmOpaque != nil {
			pointer.Unref(h.mmOpaque)
			h.mmOpaque = nil
		}
		return nil, errors.New("engine: decoder allocation refused")
	}
	return h, nil
}

func (h *handle) SetParallelRunner(fn, opaque unsafe.Pointer) Status {
	return Status(C.JxlDecoderSetParallelRunner(h.dec, C.JxlParallelRunner(fn), opaque))
}

func (h *handle) SubscribeEvents(events int32) Status {
	return Status(C.JxlDecoderSubscribeEvents(h.dec, C.int(events)))
}

func (h *handle) SetKeepOrientation(keep bool) Status {
	return Status(C.JxlDecoderSetKeepOrientation(h.dec, cBool(keep)))
}

func (h *handle) SetInput(data []byte) Status {
	var p *C.uint8_t
	if len(data) > 0 {
		h.inputPin.Pin(&data[0])
		p = (*C.uint8_t)(unsafe.Pointer(&data[0]))
	}
	st := Status(C.JxlDecoderSetInput(h.dec, p, C.size_t(len(data))))
	if st == StatusSuccess {
		// Single-shot contract: the whole bitstream is in, nothing follows.
		C.JxlDecoderCloseInput(h.dec)
	}
	return st
}

func (h *handle) ProcessInput() Status {
	return Status(C.JxlDecoderProcessInput(h.dec))
}

func (h *handle) BasicInfo() (BasicInfo, Status) {
	var ci C.JxlBasicInfo
	st := Status(C.JxlDecoderGetBasicInfo(h.dec, &ci))
	if st != StatusSuccess {
		return BasicInfo{}, st
	}
	return BasicInfo{
		XSize:                 uint32(ci.xsize),
		YSize:                 uint32(ci.ysize),
		BitsPerSample:         uint32(ci.bits_per_sample),
		ExponentBitsPerSample: uint32(ci.exponent_bits_per_sample),
		NumColorChannels:      uint32(ci.num_color_channels),
		NumExtraChannels:      uint32(ci.num_extra_channels),
		AlphaBits:             uint32(ci.alpha_bits),
		Orientation:           int32(ci.orientation),
		UsesOriginalProfile:   ci.uses_original_profile != 0,
		HaveAnimation:         ci.have_animation != 0,
	}, st
}

func (h *handle) ICCProfileSize(format *PixelFormat) (int, Status) {
	var size C.size_t
	cf := cFormat(format)
	st := Status(C.JxlDecoderGetICCProfileSize(h.dec, &cf, C.JXL_COLOR_PROFILE_TARGET_DATA, &size))
	return int(size), st
}

func (h *handle) ICCProfile(format *PixelFormat, dst []byte) Status {
	if len(dst) == 0 {
		return StatusSuccess
	}
	cf := cFormat(format)
	return Status(C.JxlDecoderGetColorAsICCProfile(
		h.dec, &cf, C.JXL_COLOR_PROFILE_TARGET_DATA,
		(*C.uint8_t)(unsafe.Pointer(&dst[0])), C.size_t(len(dst)),
	))
}

func (h *handle) ImageOutBufferSize(format *PixelFormat) (int, Status) {
	var size C.size_t
	cf := cFormat(format)
	st := Status(C.JxlDecoderImageOutBufferSize(h.dec, &cf, &size))
	return int(size), st
}

func (h *handle) SetImageOutBuffer(format *PixelFormat, buf []byte) Status {
	if len(buf) == 0 {
		return StatusError
	}
	h.imagePin.Pin(&buf[0])
	cf := cFormat(format)
	return Status(C.JxlDecoderSetImageOutBuffer(
		h.dec, &cf, unsafe.Pointer(&buf[0]), C.size_t(len(buf)),
	))
}

func (h *handle) SetJPEGBuffer(buf []byte) Status {
	if len(buf) == 0 {
		return StatusError
	}
	h.jpegPin.Pin(&buf[0])
	return Status(C.JxlDecoderSetJPEGBuffer(
		h.dec, (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)),
	))
}

func (h *handle) ReleaseJPEGBuffer() int {
	n := C.JxlDecoderReleaseJPEGBuffer(h.dec)
	h.jpegPin.Unpin()
	return int(n)
}

func (h *handle) Reset() {
	C.JxlDecoderReset(h.dec)
	h.unpinAll()
}

func (h *handle) Destroy() {
	if h.dec == nil {
		return
	}
	C.JxlDecoderDestroy(h.dec)
	h.dec = nil
	h.unpinAll()
	if h.mmOpaque != nil {
		pointer.Unref(h.mmOpaque)
		h.mmOpaque = nil
	}
}

func (h *handle) unpinAll() {
	h.inputPin.Unpin()
	h.imagePin.Unpin()
	h.jpegPin.Unpin()
}

func cFormat(f *PixelFormat) C.JxlPixelFormat {
	return C.JxlPixelFormat{
		num_channels: C.uint32_t(f.NumChannels),
		data_type:    C.JxlDataType(f.DataType),
		endianness:   C.JxlEndianness(f.Endianness),
		align:        C.size_t(f.Align),
	}
}

// JXL_BOOL is a macro for int in the engine headers, so plain C.int here.
func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// Package engine is the binding layer over the libjxl decoder C API.
//
// It exposes the engine's pull protocol as the Handle interface: the caller
// feeds input once, then repeatedly calls ProcessInput and reacts to the
// returned Status. The package translates nothing: status codes, event flags
// and struct layouts mirror the engine so the orchestrator in the parent
// package owns all policy.
package engine

import "unsafe"

// Status is a code returned by the engine's advance operation. Informative
// statuses double as event flags for SubscribeEvents.
type Status int32

const (
	// StatusSuccess means the current operation (or the whole decode)
	// completed.
	StatusSuccess Status = 0
	// StatusError means the engine hit an internal failure.
	StatusError Status = 1
	// StatusNeedMoreInput means the engine exhausted the input buffer.
	StatusNeedMoreInput Status = 2
	// StatusNeedPreviewOutBuffer requests a preview output buffer.
	StatusNeedPreviewOutBuffer Status = 3
	// StatusNeedImageOutBuffer requests the full-image output buffer.
	StatusNeedImageOutBuffer Status = 5
	// StatusJPEGNeedMoreOutput means the registered JPEG buffer is too small.
	StatusJPEGNeedMoreOutput Status = 6
	// StatusBoxNeedMoreOutput means the registered box buffer is too small.
	StatusBoxNeedMoreOutput Status = 7

	// StatusBasicInfo signals that image dimensions and metadata are readable.
	StatusBasicInfo Status = 0x40
	// StatusColorEncoding signals that the color profile is readable.
	StatusColorEncoding Status = 0x100
	// StatusPreviewImage signals a decoded preview image.
	StatusPreviewImage Status = 0x200
	// StatusFrame signals the start of a frame.
	StatusFrame Status = 0x400
	// StatusFullImage signals that the registered output buffer holds a
	// complete decoded image.
	StatusFullImage Status = 0x1000
	// StatusJPEGReconstruction signals that the input carries reconstruction
	// data and a JPEG output buffer must be registered.
	StatusJPEGReconstruction Status = 0x2000
	// StatusBox signals a metadata box.
	StatusBox Status = 0x4000
	// StatusFrameProgression signals a progressive detail pass.
	StatusFrameProgression Status = 0x8000
)

// String returns the engine's name for the status, for diagnostics.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusNeedMoreInput:
		return "need more input"
	case StatusNeedPreviewOutBuffer:
		return "need preview out buffer"
	case StatusNeedImageOutBuffer:
		return "need image out buffer"
	case StatusJPEGNeedMoreOutput:
		return "jpeg need more output"
	case StatusBoxNeedMoreOutput:
		return "box need more output"
	case StatusBasicInfo:
		return "basic info"
	case StatusColorEncoding:
		return "color encoding"
	case StatusPreviewImage:
		return "preview image"
	case StatusFrame:
		return "frame"
	case StatusFullImage:
		return "full image"
	case StatusJPEGReconstruction:
		return "jpeg reconstruction"
	case StatusBox:
		return "box"
	case StatusFrameProgression:
		return "frame progression"
	default:
		return "unknown"
	}
}

// Event flags accepted by Handle.SubscribeEvents. Values are shared with the
// corresponding informative statuses.
const (
	EventBasicInfo          = int32(StatusBasicInfo)
	EventColorEncoding      = int32(StatusColorEncoding)
	EventFullImage          = int32(StatusFullImage)
	EventJPEGReconstruction = int32(StatusJPEGReconstruction)
)

// DataType is the engine's sample data type code.
type DataType int32

const (
	DataFloat   DataType = 0
	DataBoolean DataType = 1 // retained by the engine for compatibility only
	DataUint8   DataType = 2
	DataUint16  DataType = 3
	DataUint32  DataType = 4 // retained by the engine for compatibility only
	DataFloat16 DataType = 5
)

// Endianness is the engine's byte-order code.
type Endianness int32

const (
	EndianNative Endianness = 0
	EndianLittle Endianness = 1
	EndianBig    Endianness = 2
)

// PixelFormat describes the sample layout of an output buffer. It maps
// field-for-field onto the engine's pixel format struct.
type PixelFormat struct {
	NumChannels uint32
	DataType    DataType
	Endianness  Endianness
	Align       uintptr
}

// BasicInfo is the subset of the engine's basic info struct the decoder
// surfaces. Populated once per decode from the basic-info event.
type BasicInfo struct {
	XSize                 uint32
	YSize                 uint32
	BitsPerSample         uint32
	ExponentBitsPerSample uint32
	NumColorChannels      uint32
	NumExtraChannels      uint32
	AlphaBits             uint32
	Orientation           int32
	UsesOriginalProfile   bool
	HaveAnimation         bool
}

// MemoryManager is a borrowed allocate/free capability handed to the engine
// at handle creation. The engine uses it for every internal allocation, so
// the implementation must outlive the handle.
type MemoryManager interface {
	// Alloc returns size bytes of C-addressable memory, or nil on failure.
	Alloc(size uint) unsafe.Pointer
	// Free releases memory returned by Alloc.
	Free(ptr unsafe.Pointer)
}

// Handle is one native decoder instance. It is not safe for concurrent use.
// Buffers passed to SetInput, SetImageOutBuffer and SetJPEGBuffer are
// retained by the engine until Reset, Destroy or (for the JPEG buffer)
// ReleaseJPEGBuffer.
type Handle interface {
	// SetParallelRunner registers a parallel runner: a C function pointer and
	// the opaque context passed back to it.
	SetParallelRunner(fn, opaque unsafe.Pointer) Status
	// SubscribeEvents selects which informative statuses ProcessInput may
	// return, as an OR of Event flags.
	SubscribeEvents(events int32) Status
	// SetKeepOrientation controls whether the engine applies the EXIF
	// orientation itself (false) or leaves it to the caller (true).
	SetKeepOrientation(keep bool) Status
	// SetInput hands the engine the complete input bitstream. The buffer is
	// given once; no further input is supplied.
	SetInput(data []byte) Status
	// ProcessInput advances the engine and reports the next event.
	ProcessInput() Status
	// BasicInfo reads the image metadata. Valid after StatusBasicInfo.
	BasicInfo() (BasicInfo, Status)
	// ICCProfileSize reports the byte length of the ICC profile for the
	// given output format. Valid after StatusColorEncoding.
	ICCProfileSize(format *PixelFormat) (int, Status)
	// ICCProfile fills dst with the ICC profile. len(dst) must equal the
	// size reported by ICCProfileSize.
	ICCProfile(format *PixelFormat, dst []byte) Status
	// ImageOutBufferSize reports the exact byte length the engine needs for
	// the decoded image in the given format.
	ImageOutBufferSize(format *PixelFormat) (int, Status)
	// SetImageOutBuffer registers buf as the engine's image output sink.
	SetImageOutBuffer(format *PixelFormat, buf []byte) Status
	// SetJPEGBuffer registers buf as the engine's JPEG reconstruction sink.
	// Re-registering a grown buffer continues writing after the prefix the
	// engine already produced.
	SetJPEGBuffer(buf []byte) Status
	// ReleaseJPEGBuffer detaches the JPEG buffer and returns the number of
	// bytes the engine has not written: the outstanding deficit while
	// decoding, or the unused tail after success.
	ReleaseJPEGBuffer() int
	// Reset returns the handle to its initial state so it can decode again.
	Reset()
	// Destroy releases the native decoder. The handle must not be used
	// afterwards.
	Destroy()
}

package jpegxl

import (
	"fmt"

	"github.com/e7canasta/jpegxl/internal/engine"
)

// Endianness selects the byte order of multi-byte samples in the output
// buffer.
type Endianness int32

const (
	// EndianNative uses the host byte order (default).
	EndianNative Endianness = iota
	// EndianLittle forces little-endian samples.
	EndianLittle
	// EndianBig forces big-endian samples.
	EndianBig
)

// String returns a human-readable name for the endianness.
func (e Endianness) String() string {
	switch e {
	case EndianNative:
		return "native"
	case EndianLittle:
		return "little"
	case EndianBig:
		return "big"
	default:
		return "unknown"
	}
}

// DataType selects the sample data type of the decoded pixel buffer.
type DataType int

const (
	// DataTypeUint8 decodes to 8-bit unsigned samples (default).
	DataTypeUint8 DataType = iota
	// DataTypeUint16 decodes to 16-bit unsigned samples.
	DataTypeUint16
	// DataTypeFloat16 decodes to 16-bit floating point samples.
	DataTypeFloat16
	// DataTypeFloat32 decodes to 32-bit floating point samples.
	DataTypeFloat32

	// DataTypeBoolean decodes to 1-byte boolean samples.
	//
	// Deprecated: retained for compatibility with old engine versions only;
	// use DataTypeUint8 instead.
	DataTypeBoolean
	// DataTypeUint32 decodes to 32-bit unsigned samples.
	//
	// Deprecated: retained for compatibility with old engine versions only;
	// use DataTypeFloat32 instead.
	DataTypeUint32
)

// BytesPerSample returns the width of one sample of this type in bytes.
func (t DataType) BytesPerSample() int {
	switch t {
	case DataTypeUint8, DataTypeBoolean:
		return 1
	case DataTypeUint16, DataTypeFloat16:
		return 2
	case DataTypeFloat32, DataTypeUint32:
		return 4
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (t DataType) String() string {
	switch t {
	case DataTypeUint8:
		return "uint8"
	case DataTypeUint16:
		return "uint16"
	case DataTypeFloat16:
		return "float16"
	case DataTypeFloat32:
		return "float32"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeUint32:
		return "uint32"
	default:
		return "unknown"
	}
}

// engineValue maps the data type onto the engine's wire code.
func (t DataType) engineValue() engine.DataType {
	switch t {
	case DataTypeUint8:
		return engine.DataUint8
	case DataTypeUint16:
		return engine.DataUint16
	case DataTypeFloat16:
		return engine.DataFloat16
	case DataTypeFloat32:
		return engine.DataFloat
	case DataTypeBoolean:
		return engine.DataBoolean
	case DataTypeUint32:
		return engine.DataUint32
	default:
		return engine.DataUint8
	}
}

// Orientation is the EXIF-style orientation of the decoded image. With the
// default configuration the engine applies the transform itself and reports
// OrientationIdentity; with Config.KeepOrientation the pixels are left as
// stored and the caller is expected to apply it.
type Orientation int32

const (
	OrientationIdentity       Orientation = 1
	OrientationFlipHorizontal Orientation = 2
	OrientationRotate180      Orientation = 3
	OrientationFlipVertical   Orientation = 4
	OrientationTranspose      Orientation = 5
	OrientationRotate90CW     Orientation = 6
	OrientationAntiTranspose  Orientation = 7
	OrientationRotate90CCW    Orientation = 8
)

// String returns a human-readable name for the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationIdentity:
		return "identity"
	case OrientationFlipHorizontal:
		return "flip-horizontal"
	case OrientationRotate180:
		return "rotate-180"
	case OrientationFlipVertical:
		return "flip-vertical"
	case OrientationTranspose:
		return "transpose"
	case OrientationRotate90CW:
		return "rotate-90-cw"
	case OrientationAntiTranspose:
		return "anti-transpose"
	case OrientationRotate90CCW:
		return "rotate-90-ccw"
	default:
		return fmt.Sprintf("orientation(%d)", int32(o))
	}
}

// PixelFormat describes the sample layout of a decoded pixel buffer:
// row-major scanlines of channel-interleaved samples. It is derived from the
// decoder configuration once per decode and is immutable afterwards.
type PixelFormat struct {
	// NumChannels is the number of interleaved channels per pixel.
	NumChannels uint32
	// DataType is the sample data type.
	DataType DataType
	// Endianness is the sample byte order.
	Endianness Endianness
	// Align is the scanline alignment in bytes (0 = natural).
	Align uintptr
}

// Config configures a Decoder. The zero value is a working default: 4-channel
// RGBA, uint8 samples, native endianness, natural alignment, engine-applied
// orientation, 1 KiB initial JPEG reconstruction buffer.
type Config struct {
	// NumChannels is the number of channels per returned pixel.
	// Default: 4 (RGBA).
	NumChannels uint32
	// DataType is the sample data type of the returned pixels.
	// Default: DataTypeUint8.
	DataType DataType
	// Endianness is the byte order of multi-byte samples.
	// Default: EndianNative.
	Endianness Endianness
	// Align is the scanline alignment in bytes.
	// Default: 0 (natural alignment).
	Align uintptr
	// KeepOrientation disables the engine's automatic EXIF rotation. When
	// false (default) the engine rotates the image for you and reports
	// OrientationIdentity.
	KeepOrientation bool
	// InitJPEGBuffer is the initial scratch size in bytes for JPEG
	// reconstruction. A larger value can avoid regrowth round-trips.
	// Default: 1024.
	InitJPEGBuffer int

	// ParallelRunner is an optional borrowed parallel execution capability,
	// registered with the engine once per decode call. It must outlive the
	// Decoder.
	ParallelRunner ParallelRunner
	// MemoryManager is an optional borrowed allocator, consumed by the
	// native handle for its entire lifetime. It must outlive the Decoder.
	MemoryManager MemoryManager
}

// withDefaults returns cfg with zero-valued fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.NumChannels == 0 {
		cfg.NumChannels = 4
	}
	if cfg.InitJPEGBuffer == 0 {
		cfg.InitJPEGBuffer = 1024
	}
	return cfg
}

// Info is the per-decode image metadata, populated once from the engine's
// basic-info event and read-only afterwards.
type Info struct {
	// Width of the image in pixels.
	Width uint32
	// Height of the image in pixels.
	Height uint32
	// Orientation of the decoded pixels.
	Orientation Orientation
	// NumChannels is the number of channels per pixel in the output.
	NumChannels uint32
	// ICCProfile is the image's ICC color profile, empty if the bitstream
	// carries none.
	ICCProfile []byte
}

// PixelResult is the outcome of Decoder.Decode: metadata plus a flat sample
// buffer (Width x Height pixels, NumChannels interleaved samples each).
type PixelResult struct {
	Info
	// Format describes the sample layout of Pixels.
	Format PixelFormat
	// Pixels is the decoded sample buffer. Its length is exactly
	// Width * Height * NumChannels * Format.DataType.BytesPerSample().
	Pixels []byte
}

// JPEGResult is the outcome of Decoder.DecodeJPEG: metadata plus the
// reconstructed JPEG bitstream.
type JPEGResult struct {
	Info
	// Data is the reconstructed JPEG-compatible bitstream.
	Data []byte
}

// Stats is a point-in-time snapshot of decoder counters.
type Stats struct {
	// Decodes is the number of successful decode calls.
	Decodes uint64
	// Failures is the number of decode calls that returned an error.
	Failures uint64
	// Reconstructions is the number of successful JPEG reconstructions.
	Reconstructions uint64
	// BytesIn is the total encoded input bytes consumed.
	BytesIn uint64
	// BytesOut is the total decoded output bytes produced.
	BytesOut uint64
}

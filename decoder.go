package jpegxl

import (
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/e7canasta/jpegxl/internal/engine"
)

// Decoder is one decode session. It owns exactly one native engine handle,
// created at construction and released by Close (or, as a safety net, by a
// finalizer). The configuration is immutable for the session's lifetime.
//
// A Decoder is reusable across sequential decode calls but is NOT safe for
// concurrent use: one session per goroutine, or external synchronization.
// Concurrent calls and calls after Close are programming errors and panic.
type Decoder struct {
	cfg    Config
	handle engine.Handle

	closed bool
	busy   atomic.Bool

	decodes         atomic.Uint64
	failures        atomic.Uint64
	reconstructions atomic.Uint64
	bytesIn         atomic.Uint64
	bytesOut        atomic.Uint64
}

// New creates a decode session with the given configuration. Zero-valued
// fields get defaults (see Config). If cfg.MemoryManager is set, the native
// handle routes all internal allocations through it for its entire lifetime.
//
// Returns ErrCannotCreateDecoder if the engine refuses to allocate a handle;
// no other validation happens here; malformed option combinations surface
// later as engine-reported decode errors.
func New(cfg Config) (*Decoder, error) {
	cfg = cfg.withDefaults()

	h, err := engine.NewHandle(cfg.MemoryManager)
	if err != nil {
		slog.Error("jpegxl: engine refused to create decoder", "error", err)
		return nil, ErrCannotCreateDecoder
	}

	d := newWithHandle(cfg, h)

	slog.Debug("jpegxl: decoder created",
		"num_channels", cfg.NumChannels,
		"data_type", cfg.DataType.String(),
		"endianness", cfg.Endianness.String(),
		"keep_orientation", cfg.KeepOrientation,
		"init_jpeg_buffer", cfg.InitJPEGBuffer,
		"parallel_runner", cfg.ParallelRunner != nil,
		"memory_manager", cfg.MemoryManager != nil,
	)

	return d, nil
}

// newWithHandle wires a session around an already-created handle. Split from
// New so tests can drive the orchestrator with a scripted engine.
func newWithHandle(cfg Config, h engine.Handle) *Decoder {
	d := &Decoder{cfg: cfg.withDefaults(), handle: h}
	// Safety net only; Close is the intended release path.
	runtime.SetFinalizer(d, (*Decoder).finalize)
	return d
}

// Close releases the native engine handle. Idempotent. The Decoder must not
// be used afterwards.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	runtime.SetFinalizer(d, nil)
	d.handle.Destroy()
	slog.Debug("jpegxl: decoder closed")
	return nil
}

func (d *Decoder) finalize() {
	if !d.closed {
		d.handle.Destroy()
	}
}

// Decode decodes a complete JPEG XL bitstream into a flat pixel buffer laid
// out per the session's pixel format. The entire input must be supplied in
// one call; there is no streaming mode.
func (d *Decoder) Decode(data []byte) (*PixelResult, error) {
	info, out, err := d.decode(data, false)
	if err != nil {
		return nil, err
	}
	return &PixelResult{Info: info, Format: out.format, Pixels: out.pixels}, nil
}

// DecodeJPEG decodes a JPEG XL bitstream that was produced by losslessly
// wrapping a JPEG image, and returns the reconstructed JPEG bitstream.
// Fails with ErrCannotReconstruct if the input is not such a wrapper.
func (d *Decoder) DecodeJPEG(data []byte) (*JPEGResult, error) {
	info, out, err := d.decode(data, true)
	if err != nil {
		return nil, err
	}
	return &JPEGResult{Info: info, Data: out.jpeg}, nil
}

// Info reads the image metadata without decoding pixel data. Subscribes only
// to the basic-info event, so the engine stops as soon as the header is
// parsed.
func (d *Decoder) Info(data []byte) (*Info, error) {
	d.enter()
	defer d.leave()

	info, err := d.runInfo(data)
	if err != nil {
		d.failures.Add(1)
		d.handle.Reset()
		return nil, err
	}
	return info, nil
}

// Stats returns a snapshot of the session's counters. Safe to call from
// other goroutines.
func (d *Decoder) Stats() Stats {
	return Stats{
		Decodes:         d.decodes.Load(),
		Failures:        d.failures.Load(),
		Reconstructions: d.reconstructions.Load(),
		BytesIn:         d.bytesIn.Load(),
		BytesOut:        d.bytesOut.Load(),
	}
}

// output is the mutually exclusive decode payload: pixel samples when
// reconstruct is false, a JPEG bitstream when it is true. Never both.
type output struct {
	format PixelFormat
	pixels []byte
	jpeg   []byte
}

func (d *Decoder) decode(data []byte, reconstruct bool) (Info, *output, error) {
	d.enter()
	defer d.leave()

	trace := uuid.NewString()
	slog.Debug("jpegxl: decode start",
		"trace_id", trace,
		"bytes_in", len(data),
		"reconstruct", reconstruct,
	)

	info, out, err := d.run(data, reconstruct, trace)
	if err != nil {
		d.failures.Add(1)
		// Drop all in-progress native state so the session stays reusable.
		d.handle.Reset()
		slog.Debug("jpegxl: decode failed", "trace_id", trace, "error", err)
		return Info{}, nil, err
	}

	d.decodes.Add(1)
	d.bytesIn.Add(uint64(len(data)))
	if reconstruct {
		d.reconstructions.Add(1)
		d.bytesOut.Add(uint64(len(out.jpeg)))
	} else {
		d.bytesOut.Add(uint64(len(out.pixels)))
	}

	slog.Debug("jpegxl: decode done",
		"trace_id", trace,
		"width", info.Width,
		"height", info.Height,
		"orientation", info.Orientation.String(),
	)
	return info, out, nil
}

// run drives the engine's event protocol to completion for one decode call.
// The reactions per event are fixed by the engine contract: informative
// events trigger metadata fetches, buffer-request events trigger exact-size
// provisioning, and anything unrecognized is a protocol mismatch.
func (d *Decoder) run(data []byte, reconstruct bool, trace string) (Info, *output, error) {
	var (
		info     Info
		haveInfo bool
		format   engine.PixelFormat
		icc      []byte
		pixels   []byte
		jpegBuf  []byte
		started  bool // engine confirmed the input carries reconstruction data
	)

	if reconstruct {
		jpegBuf = make([]byte, d.cfg.InitJPEGBuffer)
	}

	if err := d.setup(reconstruct); err != nil {
		return Info{}, nil, err
	}

	// The whole bitstream goes in at once; the engine is never fed again.
	if err := checkStatus(d.handle.SetInput(data), "set input"); err != nil {
		return Info{}, nil, err
	}

	for {
		status := d.handle.ProcessInput()

		switch status {
		case engine.StatusError:
			return Info{}, nil, decodeError("process input")

		case engine.StatusNeedMoreInput:
			// Single-shot input: the engine wanting more means the
			// bitstream is truncated (or empty).
			return Info{}, nil, decodeError("need more input")

		case engine.StatusBasicInfo:
			bi, st := d.handle.BasicInfo()
			if err := checkStatus(st, "get basic info"); err != nil {
				return Info{}, nil, err
			}
			format = d.pixelFormat()
			info = Info{
				Width:       bi.XSize,
				Height:      bi.YSize,
				Orientation: Orientation(bi.Orientation),
				NumChannels: format.NumChannels,
			}
			haveInfo = true
			slog.Debug("jpegxl: basic info",
				"trace_id", trace,
				"width", bi.XSize,
				"height", bi.YSize,
				"color_channels", bi.NumColorChannels,
				"alpha_bits", bi.AlphaBits,
			)

		case engine.StatusColorEncoding:
			if !haveInfo {
				return Info{}, nil, decodeError("color encoding before basic info")
			}
			profile, err := d.iccProfile(&format)
			if err != nil {
				return Info{}, nil, err
			}
			icc = profile

		case engine.StatusJPEGReconstruction:
			started = true
			if err := checkStatus(d.handle.SetJPEGBuffer(jpegBuf), "set jpeg buffer"); err != nil {
				return Info{}, nil, err
			}

		case engine.StatusJPEGNeedMoreOutput:
			// Grow by exactly the engine-reported deficit, keeping the
			// already-written prefix, and re-register the whole buffer.
			// The engine tracks its own write offset across registrations.
			deficit := d.handle.ReleaseJPEGBuffer()
			jpegBuf = append(jpegBuf, make([]byte, deficit)...)
			if err := checkStatus(d.handle.SetJPEGBuffer(jpegBuf), "set grown jpeg buffer"); err != nil {
				return Info{}, nil, err
			}
			slog.Debug("jpegxl: jpeg buffer grown",
				"trace_id", trace,
				"deficit", deficit,
				"size", len(jpegBuf),
			)

		case engine.StatusNeedImageOutBuffer:
			size, st := d.handle.ImageOutBufferSize(&format)
			if err := checkStatus(st, "get output buffer size"); err != nil {
				return Info{}, nil, err
			}
			pixels = make([]byte, size)
			if err := checkStatus(d.handle.SetImageOutBuffer(&format, pixels), "set output buffer"); err != nil {
				return Info{}, nil, err
			}

		case engine.StatusFullImage:
			// The registered buffer was filled in place; nothing to do.
			continue

		case engine.StatusSuccess:
			if reconstruct {
				if !started {
					return Info{}, nil, ErrCannotReconstruct
				}
				// Truncate the unwritten tail and shrink to fit.
				unused := d.handle.ReleaseJPEGBuffer()
				jpegBuf = slices.Clip(jpegBuf[:len(jpegBuf)-unused])
			}

			// Reset so the same session can decode again.
			d.handle.Reset()

			info.ICCProfile = icc
			out := &output{format: publicFormat(&format)}
			if reconstruct {
				out.jpeg = jpegBuf
			} else {
				out.pixels = pixels
			}
			return info, out, nil

		default:
			return Info{}, nil, unknownStatusError(status)
		}
	}
}

// setup registers the optional parallel runner, subscribes the minimal event
// set for the requested mode and configures the orientation policy. Runs
// before every decode call.
func (d *Decoder) setup(reconstruct bool) error {
	if r := d.cfg.ParallelRunner; r != nil {
		st := d.handle.SetParallelRunner(r.RunnerFunc(), r.RunnerOpaque())
		if err := checkStatus(st, "set parallel runner"); err != nil {
			return err
		}
	}

	events := engine.EventBasicInfo | engine.EventColorEncoding | engine.EventFullImage
	if reconstruct {
		events |= engine.EventJPEGReconstruction
	}
	if err := checkStatus(d.handle.SubscribeEvents(events), "subscribe events"); err != nil {
		return err
	}

	return checkStatus(d.handle.SetKeepOrientation(d.cfg.KeepOrientation), "set keep orientation")
}

// runInfo is the metadata-only drive loop: subscribe to basic info, feed the
// input, stop at the first basic-info event.
func (d *Decoder) runInfo(data []byte) (*Info, error) {
	if err := checkStatus(d.handle.SubscribeEvents(engine.EventBasicInfo), "subscribe events"); err != nil {
		return nil, err
	}
	if err := checkStatus(d.handle.SetKeepOrientation(d.cfg.KeepOrientation), "set keep orientation"); err != nil {
		return nil, err
	}
	if err := checkStatus(d.handle.SetInput(data), "set input"); err != nil {
		return nil, err
	}

	for {
		status := d.handle.ProcessInput()

		switch status {
		case engine.StatusError:
			return nil, decodeError("process input")
		case engine.StatusNeedMoreInput:
			return nil, decodeError("need more input")
		case engine.StatusBasicInfo:
			bi, st := d.handle.BasicInfo()
			if err := checkStatus(st, "get basic info"); err != nil {
				return nil, err
			}
			d.handle.Reset()
			return &Info{
				Width:       bi.XSize,
				Height:      bi.YSize,
				Orientation: Orientation(bi.Orientation),
				NumChannels: d.cfg.NumChannels,
			}, nil
		case engine.StatusSuccess:
			// Success without a basic-info event means the subscription was
			// not honored; treat as protocol mismatch.
			return nil, unknownStatusError(status)
		default:
			return nil, unknownStatusError(status)
		}
	}
}

// iccProfile fetches the color profile: one size query, one exact-size
// allocation, one content fetch.
func (d *Decoder) iccProfile(format *engine.PixelFormat) ([]byte, error) {
	size, st := d.handle.ICCProfileSize(format)
	if err := checkStatus(st, "get ICC profile size"); err != nil {
		return nil, err
	}

	icc := make([]byte, size)
	if err := checkStatus(d.handle.ICCProfile(format, icc), "get ICC profile"); err != nil {
		return nil, err
	}
	return icc, nil
}

// pixelFormat derives the engine pixel format from the session config.
func (d *Decoder) pixelFormat() engine.PixelFormat {
	return engine.PixelFormat{
		NumChannels: d.cfg.NumChannels,
		DataType:    d.cfg.DataType.engineValue(),
		Endianness:  engine.Endianness(d.cfg.Endianness),
		Align:       d.cfg.Align,
	}
}

// publicFormat converts the engine format back to the exported descriptor.
func publicFormat(f *engine.PixelFormat) PixelFormat {
	var dt DataType
	switch f.DataType {
	case engine.DataUint8:
		dt = DataTypeUint8
	case engine.DataUint16:
		dt = DataTypeUint16
	case engine.DataFloat16:
		dt = DataTypeFloat16
	case engine.DataFloat:
		dt = DataTypeFloat32
	case engine.DataBoolean:
		dt = DataTypeBoolean
	case engine.DataUint32:
		dt = DataTypeUint32
	}
	return PixelFormat{
		NumChannels: f.NumChannels,
		DataType:    dt,
		Endianness:  Endianness(f.Endianness),
		Align:       f.Align,
	}
}

// enter/leave guard the single-caller contract. Misuse is a programming
// error, not a decode error, so it panics rather than widening the error
// taxonomy.
func (d *Decoder) enter() {
	if d.closed {
		panic("jpegxl: decoder used after Close")
	}
	if !d.busy.CompareAndSwap(false, true) {
		panic("jpegxl: concurrent decode on the same Decoder")
	}
}

func (d *Decoder) leave() {
	d.busy.Store(false)
}

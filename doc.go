// Package jpegxl provides synchronous JPEG XL decoding on top of the libjxl
// engine.
//
// The engine exposes a pull protocol: the caller feeds input, repeatedly
// advances the decoder and reacts to status events (metadata ready, output
// buffer needed, buffer too small, done). This package drives that protocol
// to completion behind a single blocking call per image.
//
// # Quick Start
//
// Decode a complete bitstream into interleaved RGBA8 pixels:
//
//	dec, err := jpegxl.New(jpegxl.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	res, err := dec.Decode(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// res.Pixels holds res.Width x res.Height pixels,
//	// res.NumChannels interleaved samples each.
//
// # Decode Modes
//
// A session decodes in one of two mutually exclusive modes per call:
//
//   - Decode returns raw pixel samples in the configured pixel format.
//   - DecodeJPEG returns the original JPEG bitstream, available only when
//     the input was produced by losslessly wrapping a JPEG image. Inputs
//     without reconstruction data fail with ErrCannotReconstruct.
//
// Info reads width, height and orientation without decoding pixels.
//
// # Sessions
//
// A Decoder owns one native engine handle, created by New and released by
// Close. The handle is reset after every call, so one session can decode any
// number of images sequentially. Sessions are not safe for concurrent use:
// use one Decoder per goroutine.
//
// The input is always a single complete bitstream handed over in one call;
// there is no streaming or chunked input mode.
//
// # Collaborators
//
// Two optional capabilities can be borrowed for a session's lifetime:
//
//   - Config.ParallelRunner lets the engine fan work out over threads; the
//     parallel subpackage provides runners backed by the engine's thread
//     pool. The runner must outlive the Decoder.
//   - Config.MemoryManager routes every engine allocation through a custom
//     allocate/free pair, handed to the native handle at construction. The
//     manager must outlive the Decoder.
//
// # Errors
//
// All failures match exactly one of ErrCannotCreateDecoder, ErrDecode,
// ErrCannotReconstruct or ErrUnknownStatus under errors.Is. Engine failures
// are never retried; each is surfaced immediately with the stage it happened
// at, and the session remains usable for the next call.
//
// # image Package Integration
//
// The package registers the "jxl" format, so image.Decode recognizes both
// bare codestreams and container files:
//
//	img, _, err := image.Decode(f)
package jpegxl

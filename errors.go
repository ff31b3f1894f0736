package jpegxl

import (
	"errors"
	"fmt"

	"github.com/e7canasta/jpegxl/internal/engine"
)

// The decode error taxonomy is closed: every failure a Decoder returns
// matches exactly one of these sentinels under errors.Is.
var (
	// ErrCannotCreateDecoder means the engine refused to allocate a native
	// decoder handle (typically out of memory). Fatal, not retryable.
	ErrCannotCreateDecoder = errors.New("jpegxl: cannot create decoder")

	// ErrCannotReconstruct means JPEG reconstruction was requested but the
	// input was not produced by wrapping a JPEG bitstream. Fatal for the
	// call; the session stays usable.
	ErrCannotReconstruct = errors.New("jpegxl: input does not contain a reconstructible JPEG bitstream")

	// ErrDecode means the engine reported an internal failure. The wrapped
	// message names the stage that failed. Fatal for the call; the session
	// stays usable.
	ErrDecode = errors.New("jpegxl: decode failed")

	// ErrUnknownStatus means the engine returned a status outside the
	// recognized protocol, which indicates an engine version mismatch. The
	// wrapped message carries the raw code.
	ErrUnknownStatus = errors.New("jpegxl: unknown decoder status")
)

// decodeError labels an engine failure with the stage it happened at.
func decodeError(stage string) error {
	return fmt.Errorf("%w: %s", ErrDecode, stage)
}

// unknownStatusError carries the raw out-of-protocol code for diagnostics.
func unknownStatusError(status engine.Status) error {
	return fmt.Errorf("%w: %v (code %d)", ErrUnknownStatus, status, int32(status))
}

// checkStatus translates an engine status from a control call into the error
// taxonomy. Informative event codes are never expected here, so anything
// besides success, error and need-more-input is a protocol mismatch.
func checkStatus(status engine.Status, stage string) error {
	switch status {
	case engine.StatusSuccess:
		return nil
	case engine.StatusError:
		return decodeError(stage)
	case engine.StatusNeedMoreInput:
		return decodeError(stage + ": need more input")
	default:
		return unknownStatusError(status)
	}
}

package jpegxl

import (
	"fmt"
	"image"
	"image/color"
	"io"
)

// Magic numbers for the two JPEG XL envelopes: the bare codestream and the
// ISOBMFF container.
const (
	magicCodestream = "\xff\x0a"
	magicContainer  = "\x00\x00\x00\x0cJXL \r\n\x87\n"
)

// Decode reads a JPEG XL image from r and returns it as an image.Image.
// It decodes with the default configuration (RGBA8), using a fresh session
// per call.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("jpegxl: failed to read image data: %w", err)
	}

	dec, err := New(Config{})
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	res, err := dec.Decode(data)
	if err != nil {
		return nil, err
	}

	return &image.RGBA{
		Pix:    res.Pixels,
		Stride: int(res.Width) * 4,
		Rect:   image.Rect(0, 0, int(res.Width), int(res.Height)),
	}, nil
}

// DecodeConfig returns the dimensions and color model of a JPEG XL image
// without decoding pixel data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("jpegxl: failed to read image data: %w", err)
	}

	dec, err := New(Config{})
	if err != nil {
		return image.Config{}, err
	}
	defer dec.Close()

	info, err := dec.Info(data)
	if err != nil {
		return image.Config{}, err
	}

	return image.Config{
		ColorModel: color.RGBAModel,
		Width:      int(info.Width),
		Height:     int(info.Height),
	}, nil
}

// init registers the JPEG XL format with the standard library's image
// package, for both the bare codestream and the container signature.
func init() {
	image.RegisterFormat("jxl", magicCodestream, Decode, DecodeConfig)
	image.RegisterFormat("jxl", magicContainer, Decode, DecodeConfig)
}

package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/e7canasta/jpegxl"
	"github.com/e7canasta/jpegxl/parallel"
)

// Version information
const version = "v0.1.0"

func main() {
	// Parse command-line flags
	output := flag.String("o", "", "Output file (default: input name with new extension)")
	extractJPEG := flag.Bool("jpeg", false, "Extract the original JPEG instead of converting to PNG")
	infoOnly := flag.Bool("info", false, "Print image metadata and exit")
	keepOrientation := flag.Bool("keep-orientation", false, "Keep pixels as stored, do not apply EXIF orientation")
	threads := flag.Int("threads", 0, "Worker threads for decoding (0 = one per CPU core)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("jxltopng %s\n", version)
		os.Exit(0)
	}

	// Validate arguments
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one input file is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  jxltopng photo.jxl\n")
		fmt.Fprintf(os.Stderr, "  jxltopng -jpeg -o original.jpg wrapped.jxl\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	input := flag.Arg(0)

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	data, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	// Create the parallel runner and decode session
	runner, err := parallel.NewThreadsRunner(*threads)
	if err != nil {
		log.Fatalf("Failed to create thread runner: %v", err)
	}
	defer runner.Close()

	dec, err := jpegxl.New(jpegxl.Config{
		KeepOrientation: *keepOrientation,
		ParallelRunner:  runner,
	})
	if err != nil {
		log.Fatalf("Failed to create decoder: %v", err)
	}
	defer dec.Close()

	if *infoOnly {
		info, err := dec.Info(data)
		if err != nil {
			log.Fatalf("Failed to read metadata: %v", err)
		}
		fmt.Printf("File:        %s\n", input)
		fmt.Printf("Dimensions:  %dx%d\n", info.Width, info.Height)
		fmt.Printf("Orientation: %s\n", info.Orientation)
		return
	}

	if *extractJPEG {
		if err := writeJPEG(dec, data, outputName(input, *output, ".jpg")); err != nil {
			log.Fatalf("Failed to extract JPEG: %v", err)
		}
		return
	}

	if err := writePNG(dec, data, outputName(input, *output, ".png")); err != nil {
		log.Fatalf("Failed to convert to PNG: %v", err)
	}
}

// outputName derives the output path from the input when -o is not given.
func outputName(input, output, ext string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

// writeJPEG reconstructs the original JPEG bitstream and writes it verbatim.
func writeJPEG(dec *jpegxl.Decoder, data []byte, path string) error {
	res, err := dec.DecodeJPEG(data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, res.Data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	slog.Info("JPEG extracted",
		"output", path,
		"width", res.Width,
		"height", res.Height,
		"bytes", len(res.Data),
	)
	return nil
}

// writePNG decodes to RGBA8 pixels and encodes them as PNG.
func writePNG(dec *jpegxl.Decoder, data []byte, path string) error {
	res, err := dec.Decode(data)
	if err != nil {
		return err
	}

	img := &image.RGBA{
		Pix:    res.Pixels,
		Stride: int(res.Width) * 4,
		Rect:   image.Rect(0, 0, int(res.Width), int(res.Height)),
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	slog.Info("PNG written",
		"output", path,
		"width", res.Width,
		"height", res.Height,
		"orientation", res.Orientation.String(),
	)
	return nil
}

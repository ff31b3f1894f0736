package jpegxl

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unsafe"

	"github.com/e7canasta/jpegxl/internal/engine"
)

// fakeEngine is a scripted engine handle. ProcessInput returns the scripted
// statuses in order, and the fake performs the engine-side buffer writes the
// real engine would do around each status: filling the registered JPEG
// buffer to capacity before reporting it full, writing the pixel payload on
// the full-image event, and completing the JPEG stream on success.
type fakeEngine struct {
	script []engine.Status
	step   int

	basicInfo engine.BasicInfo
	icc       []byte
	imageData []byte // pixel payload the engine "decodes"
	jpegData  []byte // JPEG stream the engine "reconstructs"

	// deficits are the values returned by mid-stream ReleaseJPEGBuffer
	// calls; when exhausted, the fake reports the exact remaining bytes.
	deficits []int
	// slack inflates the computed deficit, producing an unused tail that
	// the orchestrator must truncate.
	slack int

	// captured calls
	subscribed      int32
	keepOrientation bool
	runnerFn        unsafe.Pointer
	runnerOpaque    unsafe.Pointer
	input           []byte
	iccSizeCalls    int
	iccCalls        int
	sizeCalls       int
	setImageCalls   int
	setJPEGLens     []int // registered JPEG buffer length, per registration
	resets          int
	destroys        int
	prefixViolated  bool

	failSubscribe bool

	imageBuf    []byte
	jpegBuf     []byte
	jpegWritten int
}

func (f *fakeEngine) SetParallelRunner(fn, opaque unsafe.Pointer) engine.Status {
	f.runnerFn = fn
	f.runnerOpaque = opaque
	return engine.StatusSuccess
}

func (f *fakeEngine) SubscribeEvents(events int32) engine.Status {
	if f.failSubscribe {
		return engine.StatusError
	}
	f.subscribed = events
	return engine.StatusSuccess
}

func (f *fakeEngine) SetKeepOrientation(keep bool) engine.Status {
	f.keepOrientation = keep
	return engine.StatusSuccess
}

func (f *fakeEngine) SetInput(data []byte) engine.Status {
	f.input = data
	return engine.StatusSuccess
}

func (f *fakeEngine) ProcessInput() engine.Status {
	if f.step >= len(f.script) {
		return engine.StatusError
	}
	status := f.script[f.step]
	f.step++

	switch status {
	case engine.StatusJPEGNeedMoreOutput:
		f.writeJPEG()
	case engine.StatusFullImage:
		copy(f.imageBuf, f.imageData)
	case engine.StatusSuccess:
		if f.jpegBuf != nil {
			f.writeJPEG()
		}
	}
	return status
}

// writeJPEG fills the registered buffer as far as the payload allows.
func (f *fakeEngine) writeJPEG() {
	n := copy(f.jpegBuf[f.jpegWritten:], f.jpegData[f.jpegWritten:])
	f.jpegWritten += n
}

func (f *fakeEngine) BasicInfo() (engine.BasicInfo, engine.Status) {
	return f.basicInfo, engine.StatusSuccess
}

func (f *fakeEngine) ICCProfileSize(format *engine.PixelFormat) (int, engine.Status) {
	f.iccSizeCalls++
	return len(f.icc), engine.StatusSuccess
}

func (f *fakeEngine) ICCProfile(format *engine.PixelFormat, dst []byte) engine.Status {
	f.iccCalls++
	copy(dst, f.icc)
	return engine.StatusSuccess
}

func (f *fakeEngine) ImageOutBufferSize(format *engine.PixelFormat) (int, engine.Status) {
	f.sizeCalls++
	return len(f.imageData), engine.StatusSuccess
}

func (f *fakeEngine) SetImageOutBuffer(format *engine.PixelFormat, buf []byte) engine.Status {
	f.setImageCalls++
	f.imageBuf = buf
	return engine.StatusSuccess
}

func (f *fakeEngine) SetJPEGBuffer(buf []byte) engine.Status {
	if f.jpegWritten > 0 && !bytes.Equal(buf[:f.jpegWritten], f.jpegData[:f.jpegWritten]) {
		f.prefixViolated = true
	}
	f.jpegBuf = buf
	f.setJPEGLens = append(f.setJPEGLens, len(buf))
	return engine.StatusSuccess
}

func (f *fakeEngine) ReleaseJPEGBuffer() int {
	buf := f.jpegBuf
	f.jpegBuf = nil

	remaining := len(f.jpegData) - f.jpegWritten
	if remaining > 0 {
		// Mid-stream release: report the outstanding deficit.
		if len(f.deficits) > 0 {
			d := f.deficits[0]
			f.deficits = f.deficits[1:]
			return d
		}
		return remaining + f.slack
	}
	// Final release: report the unused tail.
	return len(buf) - f.jpegWritten
}

func (f *fakeEngine) Reset() {
	f.resets++
	f.step = 0
	f.imageBuf = nil
	f.jpegBuf = nil
	f.jpegWritten = 0
}

func (f *fakeEngine) Destroy() {
	f.destroys++
}

// pixelPattern builds a deterministic sample payload of n bytes.
func pixelPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func happyPixelFake() *fakeEngine {
	return &fakeEngine{
		script: []engine.Status{
			engine.StatusBasicInfo,
			engine.StatusColorEncoding,
			engine.StatusNeedImageOutBuffer,
			engine.StatusFullImage,
			engine.StatusSuccess,
		},
		basicInfo: engine.BasicInfo{
			XSize:            64,
			YSize:            64,
			NumColorChannels: 3,
			AlphaBits:        8,
			Orientation:      int32(OrientationIdentity),
		},
		icc:       []byte("fake-icc-profile"),
		imageData: pixelPattern(64 * 64 * 4),
	}
}

func TestDecodePixels(t *testing.T) {
	fake := happyPixelFake()
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	res, err := d.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if res.Width != 64 || res.Height != 64 {
		t.Errorf("Decode() dimensions = %dx%d, want 64x64", res.Width, res.Height)
	}
	if res.NumChannels != 4 {
		t.Errorf("Decode() NumChannels = %d, want 4", res.NumChannels)
	}
	if want := 64 * 64 * 4 * DataTypeUint8.BytesPerSample(); len(res.Pixels) != want {
		t.Errorf("Decode() pixel buffer length = %d, want %d", len(res.Pixels), want)
	}
	if !bytes.Equal(res.Pixels, fake.imageData) {
		t.Error("Decode() pixel buffer does not match engine output")
	}
	if !bytes.Equal(res.ICCProfile, fake.icc) {
		t.Errorf("Decode() ICC profile = %q, want %q", res.ICCProfile, fake.icc)
	}
	if res.Orientation != OrientationIdentity {
		t.Errorf("Decode() orientation = %v, want identity", res.Orientation)
	}

	// Exactly one ICC fetch and one output-buffer allocation.
	if fake.iccSizeCalls != 1 || fake.iccCalls != 1 {
		t.Errorf("ICC fetches = %d/%d, want 1/1", fake.iccSizeCalls, fake.iccCalls)
	}
	if fake.sizeCalls != 1 || fake.setImageCalls != 1 {
		t.Errorf("output buffer calls = %d/%d, want 1/1", fake.sizeCalls, fake.setImageCalls)
	}
	if fake.resets != 1 {
		t.Errorf("engine resets = %d, want 1 (reset after success)", fake.resets)
	}
}

func TestDecodeJPEG(t *testing.T) {
	jpegData := pixelPattern(30)
	fake := &fakeEngine{
		script: []engine.Status{
			engine.StatusBasicInfo,
			engine.StatusJPEGReconstruction,
			engine.StatusJPEGNeedMoreOutput,
			engine.StatusSuccess,
		},
		basicInfo: engine.BasicInfo{XSize: 8, YSize: 8, Orientation: int32(OrientationIdentity)},
		jpegData:  jpegData,
		slack:     6,
	}
	d := newWithHandle(Config{InitJPEGBuffer: 16}, fake)
	defer d.Close()

	res, err := d.DecodeJPEG([]byte("wrapped"))
	if err != nil {
		t.Fatalf("DecodeJPEG() unexpected error: %v", err)
	}

	if !bytes.Equal(res.Data, jpegData) {
		t.Errorf("DecodeJPEG() data length = %d, want %d (byte-identical stream)", len(res.Data), len(jpegData))
	}
	// 16-byte scratch, 16 written, deficit 14+6 slack: one growth to 36,
	// then a 6-byte unused tail truncated.
	if want := []int{16, 36}; len(fake.setJPEGLens) != 2 || fake.setJPEGLens[0] != want[0] || fake.setJPEGLens[1] != want[1] {
		t.Errorf("registered JPEG buffer lengths = %v, want %v", fake.setJPEGLens, want)
	}
	if fake.prefixViolated {
		t.Error("JPEG buffer growth dropped already-written bytes")
	}
	if fake.resets != 1 {
		t.Errorf("engine resets = %d, want 1", fake.resets)
	}
}

func TestDecodeJPEGGrowthAccounting(t *testing.T) {
	// Three engine-chosen growth increments; the buffer must end up at
	// exactly init + d1 + d2 + d3 with every prefix preserved.
	const init = 8
	deficits := []int{16, 40, 36}
	jpegData := pixelPattern(100)

	fake := &fakeEngine{
		script: []engine.Status{
			engine.StatusBasicInfo,
			engine.StatusJPEGReconstruction,
			engine.StatusJPEGNeedMoreOutput,
			engine.StatusJPEGNeedMoreOutput,
			engine.StatusJPEGNeedMoreOutput,
			engine.StatusSuccess,
		},
		basicInfo: engine.BasicInfo{XSize: 8, YSize: 8},
		jpegData:  jpegData,
		deficits:  append([]int(nil), deficits...),
	}
	d := newWithHandle(Config{InitJPEGBuffer: init}, fake)
	defer d.Close()

	res, err := d.DecodeJPEG([]byte("wrapped"))
	if err != nil {
		t.Fatalf("DecodeJPEG() unexpected error: %v", err)
	}

	if len(fake.setJPEGLens) != len(deficits)+1 {
		t.Fatalf("registrations = %d, want %d", len(fake.setJPEGLens), len(deficits)+1)
	}
	want := init
	for i, deficit := range deficits {
		want += deficit
		if got := fake.setJPEGLens[i+1]; got != want {
			t.Errorf("registration %d: buffer length = %d, want %d", i+1, got, want)
		}
	}
	if fake.prefixViolated {
		t.Error("JPEG buffer growth dropped already-written bytes")
	}
	if !bytes.Equal(res.Data, jpegData) {
		t.Error("DecodeJPEG() reconstructed stream does not match engine output")
	}
}

func TestDecodeJPEGCannotReconstruct(t *testing.T) {
	fake := &fakeEngine{
		script: []engine.Status{
			engine.StatusBasicInfo,
			engine.StatusSuccess,
		},
		basicInfo: engine.BasicInfo{XSize: 8, YSize: 8},
	}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.DecodeJPEG([]byte("plain jxl, not a wrapped jpeg"))
	if !errors.Is(err, ErrCannotReconstruct) {
		t.Fatalf("DecodeJPEG() error = %v, want ErrCannotReconstruct", err)
	}
	if errors.Is(err, ErrDecode) {
		t.Error("DecodeJPEG() error must not also match the generic taxonomy entry")
	}
	if fake.resets != 1 {
		t.Errorf("engine resets = %d, want 1 (reset on the error path)", fake.resets)
	}
}

func TestDecodeEngineError(t *testing.T) {
	fake := &fakeEngine{script: []engine.Status{engine.StatusError}}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.Decode([]byte("broken"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "process input") {
		t.Errorf("Decode() error %q should carry the stage label", err)
	}
	if fake.resets != 1 {
		t.Errorf("engine resets = %d, want 1 (reset on the error path)", fake.resets)
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	fake := &fakeEngine{script: []engine.Status{engine.StatusNeedMoreInput}}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.Decode(nil)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode(nil) error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "need more input") {
		t.Errorf("Decode(nil) error %q should name the need-more-input condition", err)
	}
}

func TestDecodeUnknownStatus(t *testing.T) {
	fake := &fakeEngine{script: []engine.Status{engine.Status(0x31337)}}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.Decode([]byte("future bitstream"))
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("Decode() error = %v, want ErrUnknownStatus", err)
	}
	if !strings.Contains(err.Error(), "201527") { // 0x31337 in decimal
		t.Errorf("Decode() error %q should carry the raw status code", err)
	}
}

func TestDecodeSetupFailure(t *testing.T) {
	fake := &fakeEngine{failSubscribe: true}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.Decode([]byte("x"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "subscribe events") {
		t.Errorf("Decode() error %q should carry the setup stage label", err)
	}
}

func TestDecodeColorEncodingBeforeBasicInfo(t *testing.T) {
	fake := &fakeEngine{script: []engine.Status{engine.StatusColorEncoding}}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	_, err := d.Decode([]byte("x"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "color encoding before basic info") {
		t.Errorf("Decode() error %q should name the ordering violation", err)
	}
}

func TestDecodeSequentialReuse(t *testing.T) {
	fake := happyPixelFake()
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	first, err := d.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("first Decode() unexpected error: %v", err)
	}
	second, err := d.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("second Decode() unexpected error: %v", err)
	}

	if !bytes.Equal(first.Pixels, second.Pixels) {
		t.Error("sequential decodes of the same input differ")
	}
	if fake.resets != 2 {
		t.Errorf("engine resets = %d, want 2", fake.resets)
	}
}

func TestDecodeIndependentSessionsAgree(t *testing.T) {
	a := newWithHandle(Config{}, happyPixelFake())
	defer a.Close()
	b := newWithHandle(Config{}, happyPixelFake())
	defer b.Close()

	ra, err := a.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	rb, err := b.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if !bytes.Equal(ra.Pixels, rb.Pixels) || !bytes.Equal(ra.ICCProfile, rb.ICCProfile) {
		t.Error("independently built sessions produced different results")
	}
}

func TestDecodeReuseAfterError(t *testing.T) {
	fake := happyPixelFake()
	fake.script = []engine.Status{engine.StatusError}
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	if _, err := d.Decode([]byte("broken")); !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}

	fake.script = happyPixelFake().script
	res, err := d.Decode([]byte("bitstream"))
	if err != nil {
		t.Fatalf("Decode() after failed call: unexpected error: %v", err)
	}
	if res.Width != 64 {
		t.Errorf("Decode() after failed call: width = %d, want 64", res.Width)
	}
}

func TestSetupEventSubscription(t *testing.T) {
	tests := []struct {
		name        string
		reconstruct bool
		want        int32
	}{
		{
			name: "pixel mode",
			want: engine.EventBasicInfo | engine.EventColorEncoding | engine.EventFullImage,
		},
		{
			name:        "reconstruction mode",
			reconstruct: true,
			want: engine.EventBasicInfo | engine.EventColorEncoding |
				engine.EventFullImage | engine.EventJPEGReconstruction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := happyPixelFake()
			if tt.reconstruct {
				fake.script = []engine.Status{
					engine.StatusBasicInfo,
					engine.StatusJPEGReconstruction,
					engine.StatusSuccess,
				}
				fake.jpegData = pixelPattern(100)
			}
			d := newWithHandle(Config{KeepOrientation: true}, fake)
			defer d.Close()

			var err error
			if tt.reconstruct {
				_, err = d.DecodeJPEG([]byte("x"))
			} else {
				_, err = d.Decode([]byte("x"))
			}
			if err != nil {
				t.Fatalf("decode unexpected error: %v", err)
			}

			if fake.subscribed != tt.want {
				t.Errorf("subscribed events = %#x, want %#x", fake.subscribed, tt.want)
			}
			if !fake.keepOrientation {
				t.Error("KeepOrientation was not propagated to the engine")
			}
		})
	}
}

// staticRunner is a ParallelRunner with fixed pointers, enough to verify the
// orchestrator hands the capability through untouched.
type staticRunner struct{ fn, opaque int }

func (r *staticRunner) RunnerFunc() unsafe.Pointer   { return unsafe.Pointer(&r.fn) }
func (r *staticRunner) RunnerOpaque() unsafe.Pointer { return unsafe.Pointer(&r.opaque) }

func TestParallelRunnerRegistration(t *testing.T) {
	runner := &staticRunner{}
	fake := happyPixelFake()
	d := newWithHandle(Config{ParallelRunner: runner}, fake)
	defer d.Close()

	if _, err := d.Decode([]byte("x")); err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if fake.runnerFn != runner.RunnerFunc() || fake.runnerOpaque != runner.RunnerOpaque() {
		t.Error("parallel runner was not registered with the engine as provided")
	}
}

func TestInfo(t *testing.T) {
	fake := &fakeEngine{
		script: []engine.Status{engine.StatusBasicInfo},
		basicInfo: engine.BasicInfo{
			XSize:       640,
			YSize:       480,
			Orientation: int32(OrientationRotate90CW),
		},
	}
	d := newWithHandle(Config{KeepOrientation: true}, fake)
	defer d.Close()

	info, err := d.Info([]byte("header"))
	if err != nil {
		t.Fatalf("Info() unexpected error: %v", err)
	}
	if info.Width != 640 || info.Height != 480 {
		t.Errorf("Info() dimensions = %dx%d, want 640x480", info.Width, info.Height)
	}
	if info.Orientation != OrientationRotate90CW {
		t.Errorf("Info() orientation = %v, want rotate-90-cw", info.Orientation)
	}
	if fake.subscribed != engine.EventBasicInfo {
		t.Errorf("Info() subscribed events = %#x, want basic info only", fake.subscribed)
	}
	if fake.resets != 1 {
		t.Errorf("engine resets = %d, want 1", fake.resets)
	}
}

func TestStats(t *testing.T) {
	fake := happyPixelFake()
	d := newWithHandle(Config{}, fake)
	defer d.Close()

	input := []byte("bitstream")
	if _, err := d.Decode(input); err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	fake.script = []engine.Status{engine.StatusError}
	if _, err := d.Decode(input); err == nil {
		t.Fatal("Decode() expected error, got nil")
	}

	stats := d.Stats()
	if stats.Decodes != 1 || stats.Failures != 1 {
		t.Errorf("Stats() decodes/failures = %d/%d, want 1/1", stats.Decodes, stats.Failures)
	}
	if stats.BytesIn != uint64(len(input)) {
		t.Errorf("Stats() BytesIn = %d, want %d", stats.BytesIn, len(input))
	}
	if stats.BytesOut != uint64(len(fake.imageData)) {
		t.Errorf("Stats() BytesOut = %d, want %d", stats.BytesOut, len(fake.imageData))
	}
}

func TestCloseIdempotent(t *testing.T) {
	fake := happyPixelFake()
	d := newWithHandle(Config{}, fake)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() unexpected error: %v", err)
	}
	if fake.destroys != 1 {
		t.Errorf("engine destroys = %d, want exactly 1", fake.destroys)
	}
}

func TestDecodeAfterClosePanics(t *testing.T) {
	d := newWithHandle(Config{}, happyPixelFake())
	_ = d.Close()

	defer func() {
		if recover() == nil {
			t.Error("Decode() after Close should panic")
		}
	}()
	_, _ = d.Decode([]byte("x"))
}

func TestConcurrentDecodePanics(t *testing.T) {
	d := newWithHandle(Config{}, happyPixelFake())
	defer d.Close()

	d.enter() // simulate a decode in flight
	defer d.leave()

	defer func() {
		if recover() == nil {
			t.Error("overlapping decode calls should panic")
		}
	}()
	d.enter()
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name   string
		status engine.Status
		want   error
	}{
		{name: "success", status: engine.StatusSuccess, want: nil},
		{name: "error", status: engine.StatusError, want: ErrDecode},
		{name: "need more input", status: engine.StatusNeedMoreInput, want: ErrDecode},
		{name: "out of protocol", status: engine.StatusFrame, want: ErrUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStatus(tt.status, "stage")
			if tt.want == nil {
				if err != nil {
					t.Errorf("checkStatus(%v) = %v, want nil", tt.status, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("checkStatus(%v) = %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.NumChannels != 4 {
		t.Errorf("default NumChannels = %d, want 4", cfg.NumChannels)
	}
	if cfg.InitJPEGBuffer != 1024 {
		t.Errorf("default InitJPEGBuffer = %d, want 1024", cfg.InitJPEGBuffer)
	}
	if cfg.DataType != DataTypeUint8 || cfg.Endianness != EndianNative || cfg.Align != 0 {
		t.Error("zero-value format options should stay at their natural defaults")
	}

	cfg = Config{NumChannels: 3, InitJPEGBuffer: 4096}.withDefaults()
	if cfg.NumChannels != 3 || cfg.InitJPEGBuffer != 4096 {
		t.Error("withDefaults() must not override explicit values")
	}
}

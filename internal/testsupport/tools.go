package testsupport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"dailete/internal/audiotool"
	"dailete/internal/services"
)

// FakeTools is an in-process audiotool.Tools. Captures are treated as raw PCM
// already in the comparison layout: comparison transcodes copy the file, the
// quality transcode repeats every body byte so the byte rate matches the
// quality layout, and encoding copies its input. Durations are derived from
// file size.
type FakeTools struct {
	Comparison  audiotool.Format
	Quality     audiotool.Format
	HeaderBytes int64

	// FailOn makes the named operation ("pcm", "encode", "probe") fail.
	FailOn string
	// DurationFunc overrides size-based durations when set.
	DurationFunc func(path string) (time.Duration, error)

	mu    sync.Mutex
	calls []string
}

// NewFakeTools returns fake tools for the given layouts.
func NewFakeTools(comparison, quality audiotool.Format, headerBytes int64) *FakeTools {
	return &FakeTools{Comparison: comparison, Quality: quality, HeaderBytes: headerBytes}
}

// Calls returns the recorded operations in order.
func (f *FakeTools) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeTools) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *FakeTools) fail(op string) error {
	if f.FailOn != op {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, op, "fake", "forced failure for "+op, nil)
}

// ToPCM implements audiotool.Transcoder.
func (f *FakeTools) ToPCM(_ context.Context, input, output string, format audiotool.Format) error {
	f.record("pcm " + format.String())
	if err := f.fail("pcm"); err != nil {
		return err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "pcm", "fake", "read input", err)
	}
	if format == f.Quality && f.Quality != f.Comparison {
		data = f.expand(data)
	}
	return os.WriteFile(output, data, 0o644)
}

// Encode implements audiotool.Transcoder.
func (f *FakeTools) Encode(_ context.Context, input, output string, opts audiotool.EncodeOptions) error {
	f.record("encode " + opts.Codec)
	if err := f.fail("encode"); err != nil {
		return err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encode", "fake", "read input", err)
	}
	return os.WriteFile(output, data, 0o644)
}

// Duration implements audiotool.Prober. Capture files use the comparison
// byte rate; everything else uses the quality byte rate.
func (f *FakeTools) Duration(_ context.Context, path string) (time.Duration, error) {
	f.record("probe")
	if err := f.fail("probe"); err != nil {
		return 0, err
	}
	if f.DurationFunc != nil {
		return f.DurationFunc(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "probe", "fake", path, err)
	}
	format := f.Quality
	if strings.HasSuffix(path, ".local") || strings.HasSuffix(path, ".remote") {
		format = f.Comparison
	}
	body := info.Size() - f.HeaderBytes
	if body < 0 {
		body = 0
	}
	bps := int64(format.BytesPerSecond())
	if bps <= 0 {
		return 0, fmt.Errorf("fake probe: unusable format %s", format)
	}
	return time.Duration(body) * time.Second / time.Duration(bps), nil
}

func (f *FakeTools) expand(data []byte) []byte {
	factor := f.Quality.BytesPerSecond() / f.Comparison.BytesPerSecond()
	if factor <= 1 {
		return data
	}
	header := min(f.HeaderBytes, int64(len(data)))
	out := make([]byte, 0, int64(len(data))*int64(factor))
	out = append(out, data[:header]...)
	for _, b := range data[header:] {
		for range factor {
			out = append(out, b)
		}
	}
	return out
}

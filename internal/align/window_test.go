package align_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"dailete/internal/align"
	"dailete/internal/audiotool"
)

func TestWindowSizeIsFrameAligned(t *testing.T) {
	for _, rate := range []int{8000, 11025, 16000, 22050, 44100, 48000, 96000} {
		for _, channels := range []int{1, 2, 3, 6} {
			for _, bits := range []int{16, 24, 32} {
				for _, seconds := range []int{1, 3, 7} {
					f := audiotool.Format{SampleRate: rate, Channels: channels, BitsPerSample: bits}
					w := align.WindowSize(f, seconds)
					if w < 0 {
						t.Fatalf("%s/%ds: negative window %d", f, seconds, w)
					}
					if w%int64(f.FrameSize()) != 0 {
						t.Fatalf("%s/%ds: window %d splits a %d-byte frame", f, seconds, w, f.FrameSize())
					}
				}
			}
		}
	}
}

func TestWindowSizeUnusableFormats(t *testing.T) {
	if w := align.WindowSize(audiotool.Format{}, 3); w != 0 {
		t.Fatalf("expected zero window for empty format, got %d", w)
	}
	if w := align.WindowSize(testComparison, 0); w != 0 {
		t.Fatalf("expected zero window for zero seconds, got %d", w)
	}
}

func TestSimilarityScore(t *testing.T) {
	s := align.Similarity{Step: 4, Tolerance: 6, Threshold: 0.5}
	a := []byte{10, 0, 0, 0, 20, 0, 0, 0}
	b := []byte{16, 9, 9, 9, 27, 9, 9, 9}
	if got := s.Score(a, b); got != 0.5 {
		t.Fatalf("unexpected score %v", got)
	}
	if !s.Match(a, b) {
		t.Fatal("expected match at threshold")
	}
	if got := s.Score(a, b[:4]); got != 0 {
		t.Fatalf("expected zero score for mismatched lengths, got %v", got)
	}
}

func TestAlignFilesReleasesHandles(t *testing.T) {
	f := newFixture(11)
	a := f.windows(2)
	ad := f.windows(1)
	b := f.windows(2)
	ep := f.build(flatten(a, ad, b), join(join(a...), join(b...)))

	dir := t.TempDir()
	paths := align.Paths{
		Local:   filepath.Join(dir, "ep.local.wav"),
		Remote:  filepath.Join(dir, "ep.remote.wav"),
		Quality: filepath.Join(dir, "ep.quality.wav"),
		Output:  filepath.Join(dir, "ep.processed.wav"),
	}
	for path, data := range map[string][]byte{paths.Local: ep.local, paths.Remote: ep.remote, paths.Quality: ep.quality} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	stats, err := align.AlignFiles(context.Background(), newEngine(t, 4, nil), paths)
	if err != nil {
		t.Fatalf("AlignFiles returned error: %v", err)
	}
	if stats.Dropped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	got, err := os.ReadFile(paths.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, ep.expected(flatten(a, b))) {
		t.Fatalf("output mismatch: %d bytes", len(got))
	}
	for _, path := range []string{paths.Local, paths.Remote, paths.Quality} {
		if err := os.Remove(path); err != nil {
			t.Fatalf("remove %s: %v", path, err)
		}
	}
}

func TestAlignFilesMissingInputLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	paths := align.Paths{
		Local:   filepath.Join(dir, "missing.local.wav"),
		Remote:  filepath.Join(dir, "missing.remote.wav"),
		Quality: filepath.Join(dir, "missing.quality.wav"),
		Output:  filepath.Join(dir, "out.wav"),
	}
	if _, err := align.AlignFiles(context.Background(), newEngine(t, 2, nil), paths); err == nil {
		t.Fatal("expected error for missing inputs")
	}
	if _, err := os.Stat(paths.Output); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err=%v", err)
	}
}

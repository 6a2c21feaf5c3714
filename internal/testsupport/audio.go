package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"dailete/internal/acquire"
)

// Fixture audio layout: 100 Hz mono comparison, 200 Hz stereo quality, three
// second windows. One comparison window is 600 bytes.
const (
	FixtureHeaderBytes = 8
	FixtureWindowBytes = 600
)

var fixtureHeader = []byte("RIFFhead")

// WithFixtureAudio shrinks the PCM layouts so tests can build captures by hand.
func WithFixtureAudio() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Alignment.ComparisonSampleRate = 100
		b.cfg.Alignment.QualitySampleRate = 200
		b.cfg.Alignment.HeaderBytes = FixtureHeaderBytes
		b.cfg.Alignment.WindowSeconds = 3
		b.cfg.Alignment.LookAheadSeconds = 30
	}
}

// Window returns one comparison window of pseudo-random, never-silent bytes.
// Windows from different seeds do not overlap in practice.
func Window(seed int) []byte {
	out := make([]byte, FixtureWindowBytes)
	state := uint32(seed)*2654435761 + 12345
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state>>24) | 1
	}
	return out
}

// Capture concatenates the fixture header and windows.
func Capture(windows ...[]byte) []byte {
	out := append([]byte(nil), fixtureHeader...)
	for _, w := range windows {
		out = append(out, w...)
	}
	return out
}

// StaticAcquirer writes fixed capture bytes instead of downloading. A nil
// Remote leaves the remote capture missing.
type StaticAcquirer struct {
	WorkDir string
	Local   []byte
	Remote  []byte
	Err     error

	mu   sync.Mutex
	jobs []acquire.Job
}

// Acquire implements pipeline.Acquirer.
func (s *StaticAcquirer) Acquire(_ context.Context, job acquire.Job) (acquire.Captures, error) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	if s.Err != nil {
		return acquire.Captures{}, s.Err
	}
	captures := acquire.CapturePaths(s.WorkDir, job.PodcastID, job.EpisodeID)
	if err := os.MkdirAll(filepath.Dir(captures.Local), 0o755); err != nil {
		return acquire.Captures{}, err
	}
	if err := os.WriteFile(captures.Local, s.Local, 0o644); err != nil {
		return acquire.Captures{}, err
	}
	if s.Remote != nil {
		if err := os.WriteFile(captures.Remote, s.Remote, 0o644); err != nil {
			return acquire.Captures{}, err
		}
	}
	return captures, nil
}

// Jobs returns the jobs seen so far.
func (s *StaticAcquirer) Jobs() []acquire.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]acquire.Job(nil), s.jobs...)
}

package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dailete/internal/config"
	"dailete/internal/logging"
	"dailete/internal/normalize"
	"dailete/internal/pipeline"
	"dailete/internal/services"
	"dailete/internal/testsupport"
)

type fakeRecorder struct {
	mu        sync.Mutex
	timeSaved map[string]time.Duration
	names     map[string]string
	jobs      []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{timeSaved: map[string]time.Duration{}, names: map[string]string{}}
}

func (r *fakeRecorder) RecordTimeSaved(_ context.Context, podcastID, episodeID string, d time.Duration, podcastName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeSaved[podcastID+"/"+episodeID] += d
	r.names[podcastID] = podcastName
}

func (r *fakeRecorder) RecordJob(_ context.Context, _ string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, outcome)
}

type harness struct {
	cfg      *config.Config
	tools    *testsupport.FakeTools
	acquirer *testsupport.StaticAcquirer
	recorder *fakeRecorder
	pipeline *pipeline.Pipeline
}

func newHarness(t *testing.T, local, remote []byte, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithFixtureAudio()}, opts...)...)
	profiles := normalize.ProfilesFromConfig(cfg)
	h := &harness{
		cfg:      cfg,
		tools:    testsupport.NewFakeTools(profiles.Comparison, profiles.Quality, testsupport.FixtureHeaderBytes),
		acquirer: &testsupport.StaticAcquirer{WorkDir: cfg.Paths.WorkDir, Local: local, Remote: remote},
		recorder: newFakeRecorder(),
	}
	p, err := pipeline.NewFromConfig(cfg, h.acquirer, h.tools, h.recorder, logging.NewNop())
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	h.pipeline = p
	return h
}

var job = pipeline.Job{PodcastID: "pod", PodcastName: "Daily Show", EpisodeID: "ep1", URL: "https://cdn.example.test/ep1.mp3"}

func w(seed int) []byte { return testsupport.Window(seed) }

// adSwapped has three shared windows, two local-only ad windows, one
// remote-only ad window, then three more shared windows.
func adSwapped() (local, remote []byte) {
	local = testsupport.Capture(w(1), w(2), w(3), w(100), w(101), w(4), w(5), w(6))
	remote = testsupport.Capture(w(1), w(2), w(3), w(200), w(4), w(5), w(6))
	return local, remote
}

// assertWorkDirEmpty fails if any file or per-podcast directory is left
// under dir.
func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("expected empty work dir, found %v", names)
	}
}

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return files
}

func TestProcessIdenticalCapturesPublishesLocal(t *testing.T) {
	capture := testsupport.Capture(w(1), w(2), w(3))
	h := newHarness(t, capture, capture)

	result, err := h.pipeline.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Outcome != pipeline.OutcomeIdentical || result.TimeSaved != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	got, err := os.ReadFile(result.FinalPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, capture) {
		t.Fatal("artifact must equal the local capture")
	}
	if result.FinalPath != filepath.Join(h.cfg.Paths.StorageDir, "pod", "ep1.mp3") {
		t.Fatalf("unexpected artifact path %s", result.FinalPath)
	}
	if result.FileSize != int64(len(capture)) {
		t.Fatalf("unexpected size %d", result.FileSize)
	}
	for _, call := range h.tools.Calls() {
		if strings.HasPrefix(call, "pcm") || strings.HasPrefix(call, "encode") {
			t.Fatalf("identical captures must skip normalization and encoding, saw %v", h.tools.Calls())
		}
	}
	if len(h.recorder.timeSaved) != 0 {
		t.Fatalf("no time saved should be recorded, got %v", h.recorder.timeSaved)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.WorkDir)
}

func TestProcessRemovesLocalOnlyAds(t *testing.T) {
	local, remote := adSwapped()
	h := newHarness(t, local, remote)

	result, err := h.pipeline.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Outcome != pipeline.OutcomeProcessed {
		t.Fatalf("expected processed outcome, got %+v", result)
	}
	if result.OriginalDuration != 24*time.Second || result.FinalDuration != 18*time.Second {
		t.Fatalf("unexpected durations original=%s final=%s", result.OriginalDuration, result.FinalDuration)
	}
	if result.TimeSaved != 6*time.Second {
		t.Fatalf("expected 6s saved, got %s", result.TimeSaved)
	}
	if result.Stats.Dropped != 2 || result.Stats.Kept() != 6 {
		t.Fatalf("unexpected stats %+v", result.Stats)
	}
	if got := h.recorder.timeSaved["pod/ep1"]; got != 6*time.Second {
		t.Fatalf("recorder saw %s", got)
	}
	if h.recorder.names["pod"] != "Daily Show" {
		t.Fatalf("podcast name not forwarded: %v", h.recorder.names)
	}
	if len(h.recorder.jobs) != 1 || h.recorder.jobs[0] != string(pipeline.OutcomeProcessed) {
		t.Fatalf("unexpected job outcomes %v", h.recorder.jobs)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.WorkDir)
	stored, err := os.ReadDir(filepath.Dir(result.FinalPath))
	if err != nil {
		t.Fatalf("read storage dir: %v", err)
	}
	if len(stored) != 1 || stored[0].Name() != "ep1.mp3" {
		t.Fatalf("expected only the artifact in storage, found %v", stored)
	}
}

func TestProcessEncodesOutsideStorage(t *testing.T) {
	local, remote := adSwapped()
	h := newHarness(t, local, remote)
	var encodedPath string
	var storageDuringEncode []string
	h.tools.DurationFunc = func(path string) (time.Duration, error) {
		if strings.HasSuffix(path, ".local") {
			return 24 * time.Second, nil
		}
		encodedPath = path
		storageDuringEncode = scratchFiles(t, h.cfg.Paths.StorageDir)
		return 18 * time.Second, nil
	}

	result, err := h.pipeline.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !strings.HasPrefix(encodedPath, h.cfg.Paths.WorkDir+string(filepath.Separator)) {
		t.Fatalf("expected encoder output under the work dir, got %q", encodedPath)
	}
	if len(storageDuringEncode) != 0 {
		t.Fatalf("storage must not hold anything before commit, found %v", storageDuringEncode)
	}
	if _, err := os.Stat(result.FinalPath); err != nil {
		t.Fatalf("artifact missing after commit: %v", err)
	}
}

func TestProcessFallsBackWhenTooMuchIsDropped(t *testing.T) {
	local := testsupport.Capture(w(1), w(100), w(101), w(102), w(103), w(2))
	remote := testsupport.Capture(w(1), w(2))
	h := newHarness(t, local, remote, testsupport.WithKeepCaptures())

	result, err := h.pipeline.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Outcome != pipeline.OutcomeFallback || result.TimeSaved != 0 {
		t.Fatalf("expected fallback with no time saved, got %+v", result)
	}
	got, err := os.ReadFile(result.FinalPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, local) {
		t.Fatal("fallback artifact must be the untouched local capture")
	}
	if len(h.recorder.timeSaved) != 0 {
		t.Fatalf("fallback must not record time saved, got %v", h.recorder.timeSaved)
	}
	kept := filepath.Join(h.cfg.Paths.DiagnosticsDir, "pod", "ep1.remote")
	if data, err := os.ReadFile(kept); err != nil || !bytes.Equal(data, remote) {
		t.Fatalf("expected remote capture kept for diagnostics: %v", err)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.WorkDir)
}

func TestRetainedRatioBoundary(t *testing.T) {
	cases := []struct {
		name    string
		final   time.Duration
		outcome pipeline.Outcome
	}{
		{"exactly seventy percent", 70 * time.Second, pipeline.OutcomeProcessed},
		{"just under seventy percent", 69999 * time.Millisecond, pipeline.OutcomeFallback},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local, remote := adSwapped()
			h := newHarness(t, local, remote)
			h.tools.DurationFunc = func(path string) (time.Duration, error) {
				if strings.HasSuffix(path, ".local") {
					return 100 * time.Second, nil
				}
				return tc.final, nil
			}
			result, err := h.pipeline.Process(context.Background(), job)
			if err != nil {
				t.Fatalf("Process returned error: %v", err)
			}
			if result.Outcome != tc.outcome {
				t.Fatalf("expected %s, got %s", tc.outcome, result.Outcome)
			}
		})
	}

	if !pipeline.RetainedEnough(100*time.Second, 70*time.Second, 0.7) {
		t.Fatal("70% must be retained")
	}
	if pipeline.RetainedEnough(100*time.Second, 69999*time.Millisecond, 0.7) {
		t.Fatal("69.999% must trip the guard")
	}
}

func TestProcessToolFailureLeavesNothingBehind(t *testing.T) {
	local, remote := adSwapped()
	h := newHarness(t, local, remote)
	h.tools.FailOn = "encode"

	_, err := h.pipeline.Process(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.WorkDir)
	if files := scratchFiles(t, h.cfg.Paths.StorageDir); len(files) != 0 {
		t.Fatalf("expected no artifact, found %v", files)
	}
	if len(h.recorder.jobs) != 1 || h.recorder.jobs[0] != string(pipeline.OutcomeFailed) {
		t.Fatalf("unexpected job outcomes %v", h.recorder.jobs)
	}
}

func TestProcessAcquisitionFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.acquirer.Err = services.Wrap(services.ErrFetch, "acquire", "fetch", "503", nil)

	_, err := h.pipeline.Process(context.Background(), job)
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("fetch failures must be retryable")
	}
	if files := scratchFiles(t, h.cfg.Paths.StorageDir); len(files) != 0 {
		t.Fatalf("expected no artifact, found %v", files)
	}
}

func TestProcessMissingRemoteCapture(t *testing.T) {
	h := newHarness(t, testsupport.Capture(w(1)), nil)

	_, err := h.pipeline.Process(context.Background(), job)
	if !errors.Is(err, services.ErrMissingCapture) {
		t.Fatalf("expected ErrMissingCapture, got %v", err)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.WorkDir)
}

func TestNewRejectsBadRatio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Alignment.MinRetainedRatio = 1.5
	profiles := normalize.ProfilesFromConfig(cfg)
	tools := testsupport.NewFakeTools(profiles.Comparison, profiles.Quality, 0)
	if _, err := pipeline.NewFromConfig(cfg, &testsupport.StaticAcquirer{}, tools, nil, nil); err == nil {
		t.Fatal("expected error for ratio above 1")
	}
}

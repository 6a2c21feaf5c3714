package align_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"dailete/internal/align"
	"dailete/internal/audiotool"
)

// 100 Hz mono 16-bit gives 600-byte comparison windows; the quality format
// carries four bytes for every comparison byte.
var (
	testComparison = audiotool.Format{SampleRate: 100, Channels: 1, BitsPerSample: 16}
	testQuality    = audiotool.Format{SampleRate: 200, Channels: 2, BitsPerSample: 16}
)

const (
	testHeader = 8
	testWindow = 600
)

type fixture struct {
	rng *rand.Rand
}

func newFixture(seed uint64) *fixture {
	return &fixture{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// noise returns n non-zero bytes.
func (f *fixture) noise(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(f.rng.IntN(255) + 1)
	}
	return out
}

func (f *fixture) windows(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = f.noise(testWindow)
	}
	return out
}

func join(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

func flatten(groups ...[][]byte) [][]byte {
	var out [][]byte
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// expand renders a comparison window at quality fidelity.
func expand(win []byte) []byte {
	out := make([]byte, 0, len(win)*4)
	for _, b := range win {
		out = append(out, b, b, b, b)
	}
	return out
}

type episode struct {
	local   []byte
	remote  []byte
	quality []byte
}

// build lays out the three streams. Local and quality are derived from the
// same window list; remote is given verbatim after its header.
func (f *fixture) build(localWindows [][]byte, remoteBody []byte) episode {
	localParts := [][]byte{f.noise(testHeader)}
	qualityParts := [][]byte{f.noise(testHeader)}
	for _, w := range localWindows {
		localParts = append(localParts, w)
		qualityParts = append(qualityParts, expand(w))
	}
	return episode{
		local:   join(localParts...),
		remote:  join(f.noise(testHeader), remoteBody),
		quality: join(qualityParts...),
	}
}

func (ep episode) expected(kept [][]byte) []byte {
	parts := [][]byte{ep.quality[:testHeader]}
	for _, w := range kept {
		parts = append(parts, expand(w))
	}
	return join(parts...)
}

func newEngine(t *testing.T, lookAhead int, steps *[]align.Step) *align.Engine {
	t.Helper()
	opts := align.Options{
		Comparison:       testComparison,
		Quality:          testQuality,
		HeaderBytes:      testHeader,
		WindowSeconds:    3,
		LookAheadWindows: lookAhead,
	}
	if steps != nil {
		opts.OnStep = func(s align.Step) { *steps = append(*steps, s) }
	}
	engine, err := align.New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if engine.Window() != testWindow {
		t.Fatalf("unexpected window %d", engine.Window())
	}
	if engine.QualityWindow() != testWindow*4 {
		t.Fatalf("unexpected quality window %d", engine.QualityWindow())
	}
	return engine
}

func run(t *testing.T, engine *align.Engine, ep episode) ([]byte, align.Stats) {
	t.Helper()
	var out bytes.Buffer
	stats, err := engine.Run(context.Background(), align.Inputs{
		Local:       bytes.NewReader(ep.local),
		LocalSize:   int64(len(ep.local)),
		Remote:      bytes.NewReader(ep.remote),
		RemoteSize:  int64(len(ep.remote)),
		Quality:     bytes.NewReader(ep.quality),
		QualitySize: int64(len(ep.quality)),
	}, &out)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.BytesWritten != int64(out.Len()) {
		t.Fatalf("BytesWritten %d does not match output %d", stats.BytesWritten, out.Len())
	}
	return out.Bytes(), stats
}

func assertOutput(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("output mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestNoAdsKeepsEverything(t *testing.T) {
	f := newFixture(1)
	content := f.windows(10)
	ep := f.build(content, join(content...))

	var steps []align.Step
	out, stats := run(t, newEngine(t, 4, &steps), ep)

	assertOutput(t, out, ep.quality)
	if stats.Windows != 10 || stats.Direct != 10 {
		t.Fatalf("expected 10 direct windows, got %+v", stats)
	}
	if stats.Dropped != 0 || stats.Resynced != 0 {
		t.Fatalf("expected no drops or resyncs, got %+v", stats)
	}
	for _, s := range steps {
		if s.DroppedFrames != 0 {
			t.Fatalf("unexpected dropped frames in %+v", s)
		}
	}
}

func TestAdInRemoteOnlyResynchronizes(t *testing.T) {
	f := newFixture(2)
	a := f.windows(3)
	b := f.windows(4)
	ad := f.noise(testWindow + testWindow/2 + 7)
	ep := f.build(flatten(a, b), join(join(a...), ad, join(b...)))

	var steps []align.Step
	out, stats := run(t, newEngine(t, 4, &steps), ep)

	assertOutput(t, out, ep.expected(flatten(a, b)))
	if stats.Resynced != 1 || stats.Dropped != 0 || stats.Direct != 6 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	resync := steps[3]
	if resync.Kind != align.StepResynced {
		t.Fatalf("expected fourth window to resync, got %s", resync.Kind)
	}
	wantRemote := int64(testHeader + 3*testWindow + len(ad) + testWindow)
	if resync.RemoteOffset != wantRemote {
		t.Fatalf("remote cursor after resync = %d, want %d", resync.RemoteOffset, wantRemote)
	}
}

func TestAdInLocalOnlyIsDropped(t *testing.T) {
	f := newFixture(3)
	a := f.windows(3)
	ad := f.windows(2)
	b := f.windows(3)
	ep := f.build(flatten(a, ad, b), join(join(a...), join(b...)))

	out, stats := run(t, newEngine(t, 4, nil), ep)

	assertOutput(t, out, ep.expected(flatten(a, b)))
	if stats.Dropped != 2 || stats.MaxDroppedRun != 2 {
		t.Fatalf("expected two dropped windows, got %+v", stats)
	}
	if stats.Direct != 6 || stats.Resynced != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLongAdNeedsDroppedFrameGrowth(t *testing.T) {
	f := newFixture(4)
	a := f.windows(2)
	localAd := f.windows(3)
	b := f.windows(3)
	// Longer than the two-window base look-ahead can bridge, short enough to
	// be reached once three dropped windows have widened the bound.
	remoteAd := f.noise(3*testWindow + 3)
	ep := f.build(flatten(a, localAd, b), join(join(a...), remoteAd, join(b...)))

	var steps []align.Step
	out, stats := run(t, newEngine(t, 2, &steps), ep)

	assertOutput(t, out, ep.expected(flatten(a, b)))
	if stats.Dropped != 3 || stats.Resynced != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	adStart := int64(testHeader + 2*testWindow)
	wantLimits := []int64{
		adStart + 2*testWindow,
		adStart + 3*testWindow,
		adStart + 4*testWindow,
		adStart + 5*testWindow,
	}
	for i, want := range wantLimits {
		s := steps[2+i]
		if s.SearchLimit != want {
			t.Fatalf("step %d search limit = %d, want %d", 2+i, s.SearchLimit, want)
		}
	}
	if steps[5].Kind != align.StepResynced {
		t.Fatalf("expected resync after growth, got %s", steps[5].Kind)
	}
}

func TestNeverResynchronizingDropsRemainder(t *testing.T) {
	f := newFixture(5)
	a := f.windows(2)
	ep := f.build(flatten(a, f.windows(8)), join(join(a...), f.noise(8*testWindow)))

	var steps []align.Step
	out, stats := run(t, newEngine(t, 2, &steps), ep)

	assertOutput(t, out, ep.expected(a))
	if stats.Dropped != 8 || stats.MaxDroppedRun != 8 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	last := steps[len(steps)-1]
	if last.SearchLimit != int64(len(ep.remote)) {
		t.Fatalf("expected search bound capped at remote length, got %d", last.SearchLimit)
	}
}

func TestSilentLocalWindowIsKept(t *testing.T) {
	f := newFixture(6)
	a := f.windows(2)
	silence := make([]byte, testWindow)
	b := f.windows(2)
	ep := f.build(flatten(a, [][]byte{silence}, b), join(join(a...), f.noise(testWindow), join(b...)))

	out, stats := run(t, newEngine(t, 4, nil), ep)

	assertOutput(t, out, ep.expected(flatten(a, [][]byte{silence}, b)))
	if stats.Silent != 1 || stats.Direct != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCursorAndDroppedFrameInvariants(t *testing.T) {
	f := newFixture(7)
	a := f.windows(2)
	localAd := f.windows(2)
	b := f.windows(2)
	remoteAd := f.noise(testWindow + 11)
	c := f.windows(2)
	remoteAd2 := f.noise(2*testWindow + 1)
	d := f.windows(2)
	local := flatten(a, localAd, b, c, d)
	remote := join(join(a...), remoteAd, join(b...), join(c...), remoteAd2, join(d...))
	ep := f.build(local, remote)

	var steps []align.Step
	run(t, newEngine(t, 4, &steps), ep)

	prevRemote := int64(testHeader)
	prevDropped := 0
	for i, s := range steps {
		if s.RemoteOffset < prevRemote {
			t.Fatalf("step %d: remote cursor regressed from %d to %d", i, prevRemote, s.RemoteOffset)
		}
		if s.Kind == align.StepResynced && s.RemoteOffset <= prevRemote {
			t.Fatalf("step %d: resync did not advance remote cursor", i)
		}
		if s.Kind.Kept() {
			if s.DroppedFrames != 0 {
				t.Fatalf("step %d: dropped frames not reset after match", i)
			}
		} else if s.DroppedFrames != prevDropped+1 {
			t.Fatalf("step %d: dropped frames %d after %d", i, s.DroppedFrames, prevDropped)
		}
		prevRemote = s.RemoteOffset
		prevDropped = s.DroppedFrames
	}
}

func TestApproximateMatchIsOptIn(t *testing.T) {
	f := newFixture(8)
	content := f.windows(4)
	perturbed := make([][]byte, len(content))
	for i, w := range content {
		p := make([]byte, len(w))
		for j, b := range w {
			p[j] = b ^ 1
		}
		perturbed[i] = p
	}
	ep := f.build(content, join(perturbed...))

	_, exact := run(t, newEngine(t, 2, nil), ep)
	if exact.Direct != 0 {
		t.Fatalf("exact matching accepted perturbed windows: %+v", exact)
	}

	engine, err := align.New(align.Options{
		Comparison:       testComparison,
		Quality:          testQuality,
		HeaderBytes:      testHeader,
		WindowSeconds:    3,
		LookAheadWindows: 2,
		Approximate:      align.DefaultSimilarity(0.98),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	out, approx := run(t, engine, ep)
	if approx.Direct != 4 {
		t.Fatalf("expected approximate direct matches, got %+v", approx)
	}
	assertOutput(t, out, ep.quality)
}

func TestRunHonoursCancellation(t *testing.T) {
	f := newFixture(9)
	content := f.windows(3)
	ep := f.build(content, join(content...))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t, 2, nil).Run(ctx, align.Inputs{
		Local:       bytes.NewReader(ep.local),
		LocalSize:   int64(len(ep.local)),
		Remote:      bytes.NewReader(ep.remote),
		RemoteSize:  int64(len(ep.remote)),
		Quality:     bytes.NewReader(ep.quality),
		QualitySize: int64(len(ep.quality)),
	}, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShortStreamsProduceHeaderOnly(t *testing.T) {
	f := newFixture(10)
	ep := f.build(nil, f.noise(testWindow-1))
	out, stats := run(t, newEngine(t, 2, nil), ep)
	if stats.Windows != 0 {
		t.Fatalf("expected no windows, got %+v", stats)
	}
	assertOutput(t, out, ep.quality[:testHeader])
}

func TestNewRejectsUnusableOptions(t *testing.T) {
	base := align.Options{Comparison: testComparison, Quality: testQuality, WindowSeconds: 3}

	bad := base
	bad.WindowSeconds = 0
	if _, err := align.New(bad); err == nil {
		t.Fatal("expected error for zero window")
	}
	bad = base
	bad.Comparison.BitsPerSample = 12
	if _, err := align.New(bad); err == nil {
		t.Fatal("expected error for unsupported bit depth")
	}
	bad = base
	bad.HeaderBytes = -1
	if _, err := align.New(bad); err == nil {
		t.Fatal("expected error for negative header")
	}
}

package align

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"dailete/internal/audiotool"
)

// StepKind classifies how one Local window was handled.
type StepKind int

const (
	// StepDirect means the window matched Remote at the current cursor.
	StepDirect StepKind = iota
	// StepSilent means the Local window was all zero and kept unconditionally.
	StepSilent
	// StepResynced means the window was found further ahead in Remote.
	StepResynced
	// StepDropped means the window has no counterpart within the search bound.
	StepDropped
)

func (k StepKind) String() string {
	switch k {
	case StepDirect:
		return "direct"
	case StepSilent:
		return "silent"
	case StepResynced:
		return "resynced"
	case StepDropped:
		return "dropped"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Kept reports whether the window was written to the output.
func (k StepKind) Kept() bool {
	return k != StepDropped
}

// Step describes one iteration, reported after the cursors have moved.
type Step struct {
	Kind StepKind
	// LocalOffset is the Local offset of the window that was examined.
	LocalOffset int64
	// RemoteOffset is the Remote cursor after the step.
	RemoteOffset int64
	// SearchLimit is the exclusive end of the forward search, zero when no
	// search was needed.
	SearchLimit int64
	// DroppedFrames is the consecutive-drop counter after the step.
	DroppedFrames int
}

// Options configures an Engine.
type Options struct {
	Comparison    audiotool.Format
	Quality       audiotool.Format
	HeaderBytes   int64
	WindowSeconds int
	// LookAheadWindows is the base forward search breadth in windows.
	LookAheadWindows int
	// Approximate enables the tolerance comparator for direct comparisons
	// only. The forward search is always exact.
	Approximate *Similarity
	// OnStep, when set, observes every window.
	OnStep func(Step)
}

// Inputs are the three PCM streams and their byte lengths.
type Inputs struct {
	Local       io.ReaderAt
	LocalSize   int64
	Remote      io.ReaderAt
	RemoteSize  int64
	Quality     io.ReaderAt
	QualitySize int64
}

// Stats summarizes a run.
type Stats struct {
	Window        int64
	QualityWindow int64
	Windows       int
	Direct        int
	Silent        int
	Resynced      int
	Dropped       int
	MaxDroppedRun int
	BytesWritten  int64
}

// Kept is the number of windows written to the output.
func (s Stats) Kept() int {
	return s.Direct + s.Silent + s.Resynced
}

// Engine runs the windowed match-and-resynchronize algorithm.
type Engine struct {
	opts          Options
	window        int64
	qualityWindow int64
}

// New validates opts and derives the window sizes.
func New(opts Options) (*Engine, error) {
	if err := opts.Comparison.Validate(); err != nil {
		return nil, fmt.Errorf("comparison format: %w", err)
	}
	if err := opts.Quality.Validate(); err != nil {
		return nil, fmt.Errorf("quality format: %w", err)
	}
	if opts.HeaderBytes < 0 {
		return nil, errors.New("header bytes must be >= 0")
	}
	if opts.LookAheadWindows < 0 {
		return nil, errors.New("look-ahead must be >= 0")
	}
	window := WindowSize(opts.Comparison, opts.WindowSeconds)
	if window <= 0 {
		return nil, fmt.Errorf("window of %ds yields no bytes for %s", opts.WindowSeconds, opts.Comparison)
	}
	return &Engine{
		opts:          opts,
		window:        window,
		qualityWindow: WindowSize(opts.Quality, opts.WindowSeconds),
	}, nil
}

// Window returns the comparison window size in bytes.
func (e *Engine) Window() int64 { return e.window }

// QualityWindow returns the quality window size in bytes.
func (e *Engine) QualityWindow() int64 { return e.qualityWindow }

// Run aligns in and writes the kept quality audio, preceded by the quality
// stream's header, to out.
//
// The quality cursor is derived from the number of Local windows consumed
// rather than accumulated, and both windows span the same whole number of
// seconds, so the two renderings cannot drift apart over long episodes.
func (e *Engine) Run(ctx context.Context, in Inputs, out io.Writer) (Stats, error) {
	stats := Stats{Window: e.window, QualityWindow: e.qualityWindow}
	if in.Local == nil || in.Remote == nil || in.Quality == nil {
		return stats, errors.New("align: all three streams are required")
	}

	w := e.window
	header := e.opts.HeaderBytes

	headerLen := min(header, in.QualitySize)
	if headerLen > 0 {
		n, err := io.Copy(out, io.NewSectionReader(in.Quality, 0, headerLen))
		stats.BytesWritten += n
		if err != nil {
			return stats, fmt.Errorf("align: copy header: %w", err)
		}
	}

	bufL := make([]byte, w)
	bufR := make([]byte, w)
	bufQ := make([]byte, e.qualityWindow)
	var scratch []byte

	localPos, remotePos := header, header
	var consumed int64
	dropped, run := 0, 0

	for localPos+w <= in.LocalSize && remotePos+w <= in.RemoteSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := readAt(in.Local, bufL, localPos); err != nil {
			return stats, fmt.Errorf("align: read local at %d: %w", localPos, err)
		}
		if err := readAt(in.Remote, bufR, remotePos); err != nil {
			return stats, fmt.Errorf("align: read remote at %d: %w", remotePos, err)
		}

		step := Step{LocalOffset: localPos}
		switch {
		case e.directMatch(bufL, bufR):
			step.Kind = StepDirect
			remotePos += w
		case isSilent(bufL):
			step.Kind = StepSilent
			remotePos += w
		default:
			limit := e.searchLimit(remotePos, dropped, in.RemoteSize)
			step.SearchLimit = limit
			k, found, err := e.search(in.Remote, remotePos, limit, bufL, &scratch)
			if err != nil {
				return stats, err
			}
			if found {
				step.Kind = StepResynced
				remotePos += k + w
			} else {
				step.Kind = StepDropped
			}
		}

		if step.Kind.Kept() {
			n, err := e.emitQuality(in, header, consumed, bufQ, out)
			stats.BytesWritten += n
			if err != nil {
				return stats, err
			}
			dropped = 0
			run = 0
		} else {
			dropped++
			run++
			stats.MaxDroppedRun = max(stats.MaxDroppedRun, run)
		}

		localPos += w
		consumed++
		stats.Windows++
		switch step.Kind {
		case StepDirect:
			stats.Direct++
		case StepSilent:
			stats.Silent++
		case StepResynced:
			stats.Resynced++
		case StepDropped:
			stats.Dropped++
		}

		step.RemoteOffset = remotePos
		step.DroppedFrames = dropped
		if e.opts.OnStep != nil {
			e.opts.OnStep(step)
		}
	}
	return stats, nil
}

func (e *Engine) directMatch(local, remote []byte) bool {
	if bytes.Equal(local, remote) {
		return true
	}
	return e.opts.Approximate != nil && e.opts.Approximate.Match(local, remote)
}

// searchLimit bounds the forward search: the base look-ahead plus one window
// per consecutive dropped window, never past the end of Remote.
func (e *Engine) searchLimit(remotePos int64, dropped int, remoteSize int64) int64 {
	span := e.window * (int64(e.opts.LookAheadWindows) + int64(dropped))
	return min(remotePos+span, remoteSize)
}

// search looks for local in Remote[remotePos+1, limit) at single-byte
// granularity and returns the offset k relative to remotePos of the first hit.
func (e *Engine) search(remote io.ReaderAt, remotePos, limit int64, local []byte, scratch *[]byte) (int64, bool, error) {
	start := remotePos + 1
	length := limit - start
	if length < e.window {
		return 0, false, nil
	}
	if int64(cap(*scratch)) < length {
		*scratch = make([]byte, length)
	}
	buf := (*scratch)[:length]
	if err := readAt(remote, buf, start); err != nil {
		return 0, false, fmt.Errorf("align: read remote look-ahead at %d: %w", start, err)
	}
	j := bytes.Index(buf, local)
	if j < 0 {
		return 0, false, nil
	}
	return int64(j) + 1, true, nil
}

// emitQuality copies the quality window for the consumed-th Local window. A
// quality stream that ends early contributes whatever bytes remain.
func (e *Engine) emitQuality(in Inputs, header, consumed int64, buf []byte, out io.Writer) (int64, error) {
	pos := header + consumed*e.qualityWindow
	if pos >= in.QualitySize || len(buf) == 0 {
		return 0, nil
	}
	n, err := in.Quality.ReadAt(buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("align: read quality at %d: %w", pos, err)
	}
	written, err := out.Write(buf[:n])
	if err != nil {
		return int64(written), fmt.Errorf("align: write output: %w", err)
	}
	return int64(written), nil
}

func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func isSilent(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

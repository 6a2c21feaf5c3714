package audiotool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dailete/internal/logging"
	"dailete/internal/media/ffprobe"
	"dailete/internal/services"
)

const stderrLimit = 8 << 10

// Exec runs ffmpeg and ffprobe as blocking child processes.
type Exec struct {
	FFmpeg  string
	FFprobe string
	logger  *slog.Logger
}

// NewExec constructs an adapter for the given binaries.
func NewExec(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *Exec {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Exec{
		FFmpeg:  ffmpegBinary,
		FFprobe: ffprobeBinary,
		logger:  logging.NewComponentLogger(logger, "audiotool"),
	}
}

// ToPCM implements Transcoder.
func (e *Exec) ToPCM(ctx context.Context, input, output string, format Format) error {
	codec, err := pcmCodec(format.BitsPerSample)
	if err != nil {
		return services.Wrap(services.ErrValidation, "normalize", "pcm format", format.String(), err)
	}
	args := []string{
		"-hide_banner", "-nostdin", "-v", "error", "-y",
		"-i", input,
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-acodec", codec,
		output,
	}
	return e.run(ctx, "normalize", e.FFmpeg, args)
}

// Encode implements Transcoder.
func (e *Exec) Encode(ctx context.Context, input, output string, opts EncodeOptions) error {
	args := []string{"-hide_banner", "-nostdin", "-v", "error", "-y", "-i", input}
	if opts.Codec != "" {
		args = append(args, "-c:a", opts.Codec)
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:a", opts.Bitrate)
	}
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	if opts.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(opts.Channels))
	}
	args = append(args, output)
	return e.run(ctx, "encode", e.FFmpeg, args)
}

// Duration implements Prober.
func (e *Exec) Duration(ctx context.Context, path string) (time.Duration, error) {
	result, err := ffprobe.Inspect(ctx, e.FFprobe, path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "probe", filepath.Base(e.FFprobe), filepath.Base(path), err)
	}
	if result.AudioStreamCount() == 0 {
		return 0, services.Wrap(services.ErrExternalTool, "probe", filepath.Base(e.FFprobe), filepath.Base(path), errors.New("no audio stream"))
	}
	duration, err := result.Duration()
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "probe", filepath.Base(e.FFprobe), filepath.Base(path), err)
	}
	return duration, nil
}

func (e *Exec) run(ctx context.Context, stage, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	e.logger.Debug("running external tool",
		logging.String(logging.FieldStage, stage),
		logging.String("command", binary),
		logging.String("args", strings.Join(args, " ")),
	)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, stage, filepath.Base(binary), strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it. Tool diagnostics that
// matter are at the end of the stream.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

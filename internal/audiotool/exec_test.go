package audiotool_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"dailete/internal/audiotool"
	"dailete/internal/logging"
	"dailete/internal/services"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestToPCMPassesFormatArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	ffmpeg := writeStub(t, dir, "ffmpeg", `echo "$@" > "`+argsFile+`"`)

	tool := audiotool.NewExec(ffmpeg, "ffprobe", logging.NewNop())
	format := audiotool.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	if err := tool.ToPCM(context.Background(), "in.mp3", "out.wav", format); err != nil {
		t.Fatalf("ToPCM returned error: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := strings.TrimSpace(string(data))
	for _, fragment := range []string{"-i in.mp3", "-ar 16000", "-ac 1", "-acodec pcm_s16le", "out.wav"} {
		if !strings.Contains(args, fragment) {
			t.Fatalf("expected %q in args %q", fragment, args)
		}
	}
}

func TestEncodePassesCodecArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	ffmpeg := writeStub(t, dir, "ffmpeg", `echo "$@" > "`+argsFile+`"`)

	tool := audiotool.NewExec(ffmpeg, "ffprobe", nil)
	opts := audiotool.EncodeOptions{Codec: "libmp3lame", Bitrate: "256k", SampleRate: 48000, Channels: 2}
	if err := tool.Encode(context.Background(), "in.wav", "out.mp3", opts); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := string(data)
	for _, fragment := range []string{"-c:a libmp3lame", "-b:a 256k", "-ar 48000", "-ac 2"} {
		if !strings.Contains(args, fragment) {
			t.Fatalf("expected %q in args %q", fragment, args)
		}
	}
}

func TestToolFailureCarriesStderr(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", `echo "in.mp3: Invalid data found when processing input" >&2; exit 1`)

	tool := audiotool.NewExec(ffmpeg, "ffprobe", logging.NewNop())
	err := tool.ToPCM(context.Background(), "in.mp3", "out.wav", audiotool.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16})
	if err == nil {
		t.Fatal("expected error for failing tool")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestToPCMRejectsUnsupportedDepth(t *testing.T) {
	tool := audiotool.NewExec("ffmpeg", "ffprobe", nil)
	err := tool.ToPCM(context.Background(), "in", "out", audiotool.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 12})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDurationParsesProbeOutput(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeStub(t, dir, "ffprobe", `echo '{"streams":[{"codec_type":"audio"}],"format":{"duration":"1800.250000"}}'`)

	tool := audiotool.NewExec("ffmpeg", ffprobe, logging.NewNop())
	got, err := tool.Duration(context.Background(), filepath.Join(dir, "episode.mp3"))
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if got != 1800*time.Second+250*time.Millisecond {
		t.Fatalf("unexpected duration %s", got)
	}
}

func TestDurationMissingValueIsToolFailure(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeStub(t, dir, "ffprobe", `echo '{"streams":[],"format":{}}'`)

	tool := audiotool.NewExec("ffmpeg", ffprobe, logging.NewNop())
	if _, err := tool.Duration(context.Background(), "episode.mp3"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestDurationRequiresAudioStream(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeStub(t, dir, "ffprobe", `echo '{"streams":[{"codec_type":"video"}],"format":{"duration":"10.0"}}'`)

	tool := audiotool.NewExec("ffmpeg", ffprobe, logging.NewNop())
	if _, err := tool.Duration(context.Background(), "episode.mp3"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error for a file without audio, got %v", err)
	}
}

func TestFormatFrameMath(t *testing.T) {
	f := audiotool.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	if f.FrameSize() != 4 {
		t.Fatalf("unexpected frame size %d", f.FrameSize())
	}
	if f.BytesPerSecond() != 192000 {
		t.Fatalf("unexpected byte rate %d", f.BytesPerSecond())
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if err := (audiotool.Format{SampleRate: 0, Channels: 1, BitsPerSample: 16}).Validate(); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

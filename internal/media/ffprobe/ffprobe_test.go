package ffprobe

import (
	"testing"
	"time"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "audio"},
			{CodecType: "video"},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	got, err := result.Duration()
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if got != 123450*time.Millisecond {
		t.Fatalf("unexpected duration: %s", got)
	}
}

func TestDurationRejectsInvalidNumbers(t *testing.T) {
	for _, value := range []string{"bad", "-1", "+Inf"} {
		result := Result{Format: Format{Duration: value}}
		if _, err := result.Duration(); err == nil {
			t.Fatalf("expected error for duration %q", value)
		}
	}
}

func TestDurationFallsBackToAudioStream(t *testing.T) {
	result, err := Parse([]byte(`{"streams":[{"codec_type":"audio","duration":"61.5"}],"format":{}}`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got, err := result.Duration()
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if got != 61500*time.Millisecond {
		t.Fatalf("unexpected duration: %s", got)
	}

	empty, err := Parse([]byte(`{"streams":[],"format":{}}`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if _, err := empty.Duration(); err == nil {
		t.Fatal("expected error when duration missing")
	}
}

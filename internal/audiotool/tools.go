package audiotool

import (
	"context"
	"time"
)

// EncodeOptions selects the delivery codec for the final artifact.
type EncodeOptions struct {
	Codec      string
	Bitrate    string
	SampleRate int
	Channels   int
}

// Transcoder converts between compressed audio and raw PCM.
type Transcoder interface {
	// ToPCM decodes input into a WAV file holding PCM in the given format.
	ToPCM(ctx context.Context, input, output string, format Format) error
	// Encode compresses a PCM input into the delivery codec.
	Encode(ctx context.Context, input, output string, opts EncodeOptions) error
}

// Prober measures playback duration.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Tools bundles both capabilities; the pipeline depends on this.
type Tools interface {
	Transcoder
	Prober
}

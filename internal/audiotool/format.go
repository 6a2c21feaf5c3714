package audiotool

import (
	"errors"
	"fmt"
)

// Format describes an uncompressed PCM layout.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// FrameSize is the byte width of one sample across all channels.
func (f Format) FrameSize() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// BytesPerSecond is the raw byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Validate reports whether the format can be produced and compared.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	if f.Channels <= 0 {
		return errors.New("channel count must be positive")
	}
	if _, err := pcmCodec(f.BitsPerSample); err != nil {
		return err
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

func pcmCodec(bits int) (string, error) {
	switch bits {
	case 16:
		return "pcm_s16le", nil
	case 24:
		return "pcm_s24le", nil
	case 32:
		return "pcm_s32le", nil
	default:
		return "", fmt.Errorf("unsupported bit depth %d", bits)
	}
}

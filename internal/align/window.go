package align

import "dailete/internal/audiotool"

// WindowSize returns the byte length of a window spanning seconds of f,
// rounded down to a whole number of frames. It is zero for unusable formats.
func WindowSize(f audiotool.Format, seconds int) int64 {
	frame := int64(f.FrameSize())
	if frame <= 0 || seconds <= 0 || f.SampleRate <= 0 {
		return 0
	}
	raw := int64(f.BytesPerSecond()) * int64(seconds)
	return raw / frame * frame
}

// Package audiotool wraps the external transcoding and duration-probing
// tools behind narrow interfaces.
//
// Exec is the production implementation: it runs ffmpeg and ffprobe
// synchronously, keeps the tail of stderr, and reports nonzero exits as
// services.ErrExternalTool with that diagnostic text attached. Tests and the
// pipeline fakes implement Tools directly.
package audiotool

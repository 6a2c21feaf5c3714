package align

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// Paths names the on-disk streams for AlignFiles.
type Paths struct {
	Local   string
	Remote  string
	Quality string
	Output  string
}

// AlignFiles runs the engine over files. Every handle it opens is closed
// before it returns, on success and on failure, so callers may delete the
// inputs immediately afterwards.
func AlignFiles(ctx context.Context, engine *Engine, paths Paths) (stats Stats, err error) {
	local, localSize, err := openSized(paths.Local)
	if err != nil {
		return stats, err
	}
	defer local.Close()

	remote, remoteSize, err := openSized(paths.Remote)
	if err != nil {
		return stats, err
	}
	defer remote.Close()

	quality, qualitySize, err := openSized(paths.Quality)
	if err != nil {
		return stats, err
	}
	defer quality.Close()

	out, err := os.Create(paths.Output)
	if err != nil {
		return stats, fmt.Errorf("align: create output: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("align: close output: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(paths.Output)
		}
	}()

	writer := bufio.NewWriterSize(out, 1<<20)
	stats, err = engine.Run(ctx, Inputs{
		Local:       local,
		LocalSize:   localSize,
		Remote:      remote,
		RemoteSize:  remoteSize,
		Quality:     quality,
		QualitySize: qualitySize,
	}, writer)
	if err != nil {
		return stats, err
	}
	if err := writer.Flush(); err != nil {
		return stats, fmt.Errorf("align: flush output: %w", err)
	}
	return stats, nil
}

func openSized(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("align: open stream: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("align: stat stream: %w", err)
	}
	return f, info.Size(), nil
}

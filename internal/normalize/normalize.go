// Package normalize converts downloaded captures into fixed-format PCM.
//
// Two fidelities exist. Comparison streams are mono and low rate so that
// byte windows are cheap to compare; both channels share the exact same
// layout. The Quality stream is stereo and high rate and is only produced for
// the Local capture, which is the source of the reconstructed episode.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dailete/internal/audiotool"
	"dailete/internal/config"
	"dailete/internal/logging"
	"dailete/internal/services"
)

// Profile selects a fidelity.
type Profile int

const (
	Comparison Profile = iota
	Quality
)

func (p Profile) String() string {
	switch p {
	case Comparison:
		return "comparison"
	case Quality:
		return "quality"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// Profiles maps each fidelity to its PCM layout.
type Profiles struct {
	Comparison audiotool.Format
	Quality    audiotool.Format
}

// Format returns the layout for p.
func (p Profiles) Format(profile Profile) audiotool.Format {
	if profile == Quality {
		return p.Quality
	}
	return p.Comparison
}

// ProfilesFromConfig builds 16-bit mono comparison and 16-bit stereo quality
// layouts at the configured rates.
func ProfilesFromConfig(cfg *config.Config) Profiles {
	return Profiles{
		Comparison: audiotool.Format{SampleRate: cfg.Alignment.ComparisonSampleRate, Channels: 1, BitsPerSample: 16},
		Quality:    audiotool.Format{SampleRate: cfg.Alignment.QualitySampleRate, Channels: 2, BitsPerSample: 16},
	}
}

// Stream is one normalized PCM file.
type Stream struct {
	Path    string
	Profile Profile
	Format  audiotool.Format
	Size    int64
}

// Streams are the three inputs of the alignment engine.
type Streams struct {
	LocalComparison  Stream
	RemoteComparison Stream
	LocalQuality     Stream
}

// Paths lists every file in s.
func (s Streams) Paths() []string {
	return []string{s.LocalComparison.Path, s.RemoteComparison.Path, s.LocalQuality.Path}
}

// Remove deletes every produced stream, ignoring files that do not exist.
func (s Streams) Remove() {
	for _, path := range s.Paths() {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}

// Normalizer drives the transcoder.
type Normalizer struct {
	tools    audiotool.Transcoder
	profiles Profiles
	logger   *slog.Logger
}

// New constructs a Normalizer.
func New(tools audiotool.Transcoder, profiles Profiles, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		tools:    tools,
		profiles: profiles,
		logger:   logging.NewComponentLogger(logger, "normalize"),
	}
}

// Profiles returns the configured layouts.
func (n *Normalizer) Profiles() Profiles {
	return n.profiles
}

// OutputPath is where a capture's stream for profile is written.
func OutputPath(capturePath string, profile Profile) string {
	return capturePath + "." + profile.String() + ".wav"
}

// Normalize transcodes capturePath at the given fidelity.
func (n *Normalizer) Normalize(ctx context.Context, capturePath string, profile Profile) (Stream, error) {
	if strings.TrimSpace(capturePath) == "" {
		return Stream{}, services.Wrap(services.ErrValidation, "normalize", profile.String(), "empty capture path", nil)
	}
	if _, err := os.Stat(capturePath); err != nil {
		return Stream{}, services.Wrap(services.ErrMissingCapture, "normalize", profile.String(), capturePath, err)
	}
	format := n.profiles.Format(profile)
	output := OutputPath(capturePath, profile)
	if err := n.tools.ToPCM(ctx, capturePath, output, format); err != nil {
		_ = os.Remove(output)
		return Stream{}, err
	}
	info, err := os.Stat(output)
	if err != nil {
		return Stream{}, services.Wrap(services.ErrExternalTool, "normalize", profile.String(), "transcoder produced no output", err)
	}
	n.logger.Debug("capture normalized",
		logging.String("capture", capturePath),
		logging.String("profile", profile.String()),
		logging.String("format", format.String()),
		logging.Int64("bytes", info.Size()),
	)
	return Stream{Path: output, Profile: profile, Format: format, Size: info.Size()}, nil
}

// Prepare produces both comparison streams and the local quality stream. On
// failure anything already written is removed.
func (n *Normalizer) Prepare(ctx context.Context, localCapture, remoteCapture string) (Streams, error) {
	var streams Streams
	var err error
	if streams.LocalComparison, err = n.Normalize(ctx, localCapture, Comparison); err != nil {
		return Streams{}, err
	}
	if streams.RemoteComparison, err = n.Normalize(ctx, remoteCapture, Comparison); err != nil {
		streams.Remove()
		return Streams{}, err
	}
	if streams.LocalQuality, err = n.Normalize(ctx, localCapture, Quality); err != nil {
		streams.Remove()
		return Streams{}, err
	}
	return streams, nil
}

package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/pipeline"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// episodeJSON matches the daemon API's episode shape so scripts can read
// either source. Durations are seconds.
type episodeJSON struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	FileSize         int64     `json:"file_size"`
	OriginalSeconds  float64   `json:"original_seconds"`
	FinalSeconds     float64   `json:"final_seconds"`
	TimeSavedSeconds float64   `json:"time_saved_seconds"`
	Outcome          string    `json:"outcome"`
	ProcessedAt      time.Time `json:"processed_at"`
}

func toEpisodeJSON(cfg *config.Config, episodes []catalog.Episode) []episodeJSON {
	views := make([]episodeJSON, 0, len(episodes))
	for _, episode := range episodes {
		views = append(views, episodeJSON{
			ID:               episode.ID,
			URL:              catalog.PublicURL(cfg.Server.BaseAddress, episode.PodcastID, episode.ID, cfg.Encoding.Extension),
			FileSize:         episode.FileSize,
			OriginalSeconds:  episode.Original.Seconds(),
			FinalSeconds:     episode.Final.Seconds(),
			TimeSavedSeconds: episode.TimeSaved.Seconds(),
			Outcome:          episode.Outcome,
			ProcessedAt:      episode.ProcessedAt,
		})
	}
	return views
}

type processJSON struct {
	Outcome          string  `json:"outcome"`
	Path             string  `json:"path"`
	URL              string  `json:"url"`
	FileSize         int64   `json:"file_size"`
	OriginalSeconds  float64 `json:"original_seconds"`
	FinalSeconds     float64 `json:"final_seconds"`
	TimeSavedSeconds float64 `json:"time_saved_seconds"`
	Windows          int     `json:"windows"`
	Dropped          int     `json:"dropped_windows"`
}

func toProcessJSON(url string, result pipeline.Result) processJSON {
	return processJSON{
		Outcome:          string(result.Outcome),
		Path:             result.FinalPath,
		URL:              url,
		FileSize:         result.FileSize,
		OriginalSeconds:  result.OriginalDuration.Seconds(),
		FinalSeconds:     result.FinalDuration.Seconds(),
		TimeSavedSeconds: result.TimeSaved.Seconds(),
		Windows:          result.Stats.Windows,
		Dropped:          result.Stats.Dropped,
	}
}

package main

import (
	"testing"
	"time"

	"dailete/internal/align"
	"dailete/internal/catalog"
	"dailete/internal/pipeline"
	"dailete/internal/testsupport"
)

func TestEpisodeJSONUsesSecondsAndPublicURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	views := toEpisodeJSON(cfg, []catalog.Episode{{
		PodcastID: "pod",
		ID:        "ep-1",
		FileSize:  2048,
		Original:  90 * time.Second,
		Final:     60 * time.Second,
		TimeSaved: 30 * time.Second,
		Outcome:   "processed",
	}})
	if len(views) != 1 {
		t.Fatalf("expected one view, got %d", len(views))
	}
	got := views[0]
	if got.URL != "http://pods.example.test/podcasts/pod/ep-1.mp3" {
		t.Fatalf("unexpected url %q", got.URL)
	}
	if got.OriginalSeconds != 90 || got.FinalSeconds != 60 || got.TimeSavedSeconds != 30 {
		t.Fatalf("unexpected durations %#v", got)
	}
}

func TestProcessJSONCarriesStats(t *testing.T) {
	got := toProcessJSON("http://host/podcasts/pod/ep.mp3", pipeline.Result{
		Outcome:          pipeline.OutcomeFallback,
		FinalPath:        "/srv/pod/ep.mp3",
		FileSize:         10,
		OriginalDuration: 10 * time.Second,
		FinalDuration:    10 * time.Second,
		Stats:            align.Stats{Windows: 4, Dropped: 3},
	})
	if got.Outcome != "fallback" || got.TimeSavedSeconds != 0 {
		t.Fatalf("unexpected outcome fields %#v", got)
	}
	if got.Windows != 4 || got.Dropped != 3 {
		t.Fatalf("unexpected stats %#v", got)
	}
}

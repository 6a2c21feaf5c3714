package testsupport

import (
	"context"
	"testing"

	"dailete/internal/catalog"
	"dailete/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewPodcast registers a podcast for tests using the provided store.
func NewPodcast(t testing.TB, store *catalog.Store, feedURL, title string) *catalog.Podcast {
	t.Helper()

	podcast, err := store.AddPodcast(context.Background(), feedURL, title)
	if err != nil {
		t.Fatalf("store.AddPodcast: %v", err)
	}
	return podcast
}

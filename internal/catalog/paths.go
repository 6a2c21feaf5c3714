package catalog

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactPath returns where the final artifact for an episode lives.
func ArtifactPath(storageRoot, podcastID, episodeID, ext string) string {
	return filepath.Join(storageRoot, podcastID, episodeID+"."+strings.TrimPrefix(ext, "."))
}

// PublicURL returns the download URL published for an episode artifact. A
// base address without a scheme is treated as plain http.
func PublicURL(baseAddress, podcastID, episodeID, ext string) string {
	base := strings.TrimRight(strings.TrimSpace(baseAddress), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	file := episodeID + "." + strings.TrimPrefix(ext, ".")
	return base + "/podcasts/" + url.PathEscape(podcastID) + "/" + url.PathEscape(file)
}

// RemoveArtifacts deletes the stored files for the given episodes and then the
// podcast directory if it is empty. Missing files are not an error.
func RemoveArtifacts(storageRoot, podcastID string, episodeIDs []string, ext string) error {
	var errs []error
	for _, episodeID := range episodeIDs {
		path := ArtifactPath(storageRoot, podcastID, episodeID, ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	dir := filepath.Join(storageRoot, podcastID)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dailete/internal/catalog"
	"dailete/internal/config"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	var showURLs bool
	cmd := &cobra.Command{
		Use:   "episodes <podcast-id>",
		Short: "List processed episodes for a podcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				podcastID := strings.TrimSpace(args[0])
				podcast, err := store.GetPodcast(cmd.Context(), podcastID)
				if err != nil {
					return err
				}
				if podcast == nil {
					return fmt.Errorf("podcast %q not found", podcastID)
				}
				episodes, err := store.ListEpisodes(cmd.Context(), podcastID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, toEpisodeJSON(cfg, episodes))
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", podcast.DisplayName())
				if len(episodes) == 0 {
					fmt.Fprintln(out, "No processed episodes")
					return nil
				}
				headers := []string{"Episode", "Outcome", "Original", "Final", "Saved", "Size", "Processed"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
				if showURLs {
					headers = append(headers, "URL")
					aligns = append(aligns, alignLeft)
				}
				rows := make([][]string, 0, len(episodes))
				for _, episode := range episodes {
					row := []string{
						episode.ID,
						episode.Outcome,
						formatSeconds(episode.Original),
						formatSeconds(episode.Final),
						formatSeconds(episode.TimeSaved),
						formatBytes(episode.FileSize),
						formatTimestamp(episode.ProcessedAt),
					}
					if showURLs {
						row = append(row, catalog.PublicURL(cfg.Server.BaseAddress, podcastID, episode.ID, cfg.Encoding.Extension))
					}
					rows = append(rows, row)
				}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showURLs, "urls", false, "Include public download URLs")
	return cmd
}

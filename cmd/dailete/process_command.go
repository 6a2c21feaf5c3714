package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dailete/internal/catalog"
	"dailete/internal/daemonrun"
	"dailete/internal/pipeline"
	"dailete/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var podcastID, episodeID, episodeURL string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Acquire, align, and store a single episode now",
		Long: "Runs one episode through dual acquisition and alignment without the daemon.\n" +
			"The podcast must already be subscribed; the result is recorded in the catalog.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			rt, err := daemonrun.NewRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			podcast, err := rt.Store.GetPodcast(cmd.Context(), podcastID)
			if err != nil {
				return err
			}
			if podcast == nil {
				return fmt.Errorf("podcast %q is not subscribed", podcastID)
			}

			result, err := rt.Scheduler.ProcessOnce(cmd.Context(), pipeline.Job{
				PodcastID:   podcast.ID,
				PodcastName: podcast.DisplayName(),
				EpisodeID:   strings.TrimSpace(episodeID),
				URL:         strings.TrimSpace(episodeURL),
			})
			if errors.Is(err, workflow.ErrAlreadyProcessed) {
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %s is already in the catalog\n", episodeID)
				return nil
			}
			if err != nil {
				return err
			}
			publicURL := catalog.PublicURL(cfg.Server.BaseAddress, podcast.ID, episodeID, cfg.Encoding.Extension)
			if ctx.jsonOutput() {
				return writeJSON(cmd, toProcessJSON(publicURL, result))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Outcome:    %s\n", result.Outcome)
			fmt.Fprintf(out, "Original:   %s\n", formatSeconds(result.OriginalDuration))
			fmt.Fprintf(out, "Final:      %s\n", formatSeconds(result.FinalDuration))
			fmt.Fprintf(out, "Time saved: %s\n", formatSeconds(result.TimeSaved))
			fmt.Fprintf(out, "File:       %s (%s)\n", result.FinalPath, formatBytes(result.FileSize))
			fmt.Fprintf(out, "URL:        %s\n", publicURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&podcastID, "podcast", "", "Subscribed podcast identifier")
	cmd.Flags().StringVar(&episodeID, "episode", "", "Episode identifier (used as the file name)")
	cmd.Flags().StringVar(&episodeURL, "url", "", "Episode enclosure URL")
	_ = cmd.MarkFlagRequired("podcast")
	_ = cmd.MarkFlagRequired("episode")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dailete/internal/acquire"
	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/feed"
)

func newPodcastCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "podcast",
		Aliases: []string{"podcasts"},
		Short:   "Manage podcast subscriptions",
	}
	cmd.AddCommand(newPodcastAddCommand(ctx))
	cmd.AddCommand(newPodcastListCommand(ctx))
	cmd.AddCommand(newPodcastRemoveCommand(ctx))
	return cmd
}

func newPodcastAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <feed-url>",
		Short: "Subscribe to a podcast feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				logger, err := ctx.logger(cfg)
				if err != nil {
					return err
				}
				feedURL := strings.TrimSpace(args[0])
				reader := feed.NewReader(acquire.NewDirectClient(cfg.RequestTimeout()), cfg.Fetch.LocalUserAgent, logger)
				feedTitle, err := reader.Validate(cmd.Context(), feedURL)
				if err != nil {
					return fmt.Errorf("validate feed: %w", err)
				}
				if strings.TrimSpace(title) != "" {
					feedTitle = title
				}

				podcast, err := store.AddPodcast(cmd.Context(), feedURL, feedTitle)
				if errors.Is(err, catalog.ErrPodcastExists) && podcast != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Already subscribed as %s (%s)\n", podcast.ID, podcast.DisplayName())
					return nil
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, podcast)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s as %s\n", podcast.DisplayName(), podcast.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Override the feed title")
	return cmd
}

func newPodcastListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List subscribed podcasts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				podcasts, err := store.ListPodcasts(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, podcasts)
				}
				out := cmd.OutOrStdout()
				if len(podcasts) == 0 {
					fmt.Fprintln(out, "No podcasts subscribed")
					return nil
				}
				rows := make([][]string, 0, len(podcasts))
				for _, podcast := range podcasts {
					episodes, err := store.ListEpisodes(cmd.Context(), podcast.ID)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						podcast.ID,
						podcast.DisplayName(),
						strconv.Itoa(len(episodes)),
						podcast.FeedURL,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Episodes", "Feed"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newPodcastRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepFiles bool
	cmd := &cobra.Command{
		Use:     "remove <podcast-id>",
		Aliases: []string{"rm"},
		Short:   "Unsubscribe a podcast and delete its episodes",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				podcastID := strings.TrimSpace(args[0])
				if err := acquire.ValidateID(podcastID); err != nil {
					return err
				}
				removed, err := store.RemovePodcast(cmd.Context(), podcastID)
				if err != nil {
					return err
				}
				if !keepFiles {
					if err := catalog.RemoveArtifacts(cfg.Paths.StorageDir, podcastID, removed, cfg.Encoding.Extension); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: some episode files were not deleted: %v\n", err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed podcast %s (%d episodes)\n", podcastID, len(removed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Leave processed episode files on disk")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dailete/internal/acquire"
	"dailete/internal/catalog"
	"dailete/internal/config"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and add to the processing queue",
	}
	cmd.AddCommand(newQueueAddCommand(ctx))
	cmd.AddCommand(newQueueListCommand(ctx))
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <podcast-id> <episode-id> <url>",
		Short: "Queue a specific episode for the daemon to process",
		Long: "Persists the request in the catalog. A running daemon picks it up on its\n" +
			"next queue drain (workflow.queue_poll_interval).",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				podcastID := strings.TrimSpace(args[0])
				episodeID := strings.TrimSpace(args[1])
				for _, id := range []string{podcastID, episodeID} {
					if err := acquire.ValidateID(id); err != nil {
						return err
					}
				}
				item, added, err := store.Enqueue(cmd.Context(), podcastID, episodeID, args[2])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"item": item, "added": added})
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "Episode %s is already queued (#%d)\n", episodeID, item.ID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued episode %s as #%d\n", episodeID, item.ID)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List episodes waiting to be processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				items, err := store.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.PodcastID,
						item.EpisodeID,
						formatTimestamp(item.CreatedAt),
						item.URL,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Podcast", "Episode", "Queued", "URL"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

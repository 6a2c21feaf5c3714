package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/daemon"
	"dailete/internal/preflight"
)

type statusReport struct {
	ConfigPath   string             `json:"config_path"`
	ConfigExists bool               `json:"config_exists"`
	Daemon       *daemon.Status     `json:"daemon,omitempty"`
	DaemonError  string             `json:"daemon_error,omitempty"`
	Catalog      catalog.Summary    `json:"catalog"`
	Checks       []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, catalog, and dependency status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				report := statusReport{
					ConfigPath:   ctx.configPath,
					ConfigExists: ctx.configSeen,
					Checks:       preflight.RunAll(cmd.Context(), cfg),
				}
				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				report.Catalog = summary
				report.Daemon, err = fetchDaemonStatus(cmd.Context(), cfg)
				if err != nil {
					report.DaemonError = err.Error()
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				renderStatus(cmd, report)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	lines := renderSectionHeader("Daemon", colorize)
	switch {
	case report.Daemon != nil && report.Daemon.Running:
		lines = append(lines, renderStatusLine("Dailete", statusOK, fmt.Sprintf("Running (pid %d)", report.Daemon.PID), colorize))
		workflow := report.Daemon.Workflow
		lines = append(lines, renderStatusLine("Draining", statusInfo, yesNo(workflow.Draining), colorize))
		lines = append(lines, renderStatusLine("Last feed poll", statusInfo, formatTimestamp(workflow.LastPoll), colorize))
		if workflow.LastEpisode != "" {
			lines = append(lines, renderStatusLine("Last episode", statusInfo, workflow.LastEpisode, colorize))
		}
		if workflow.LastError != "" {
			lines = append(lines, renderStatusLine("Last error", statusWarn, workflow.LastError, colorize))
		}
	case report.DaemonError != "":
		lines = append(lines, renderStatusLine("Dailete", statusError, "Not running ("+report.DaemonError+")", colorize))
	default:
		lines = append(lines, renderStatusLine("Dailete", statusWarn, "HTTP server disabled (server.bind is empty)", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Catalog", colorize)...)
	configDetail := report.ConfigPath
	if !report.ConfigExists {
		configDetail += " (not found, using defaults)"
	}
	lines = append(lines, renderStatusLine("Config", statusInfo, configDetail, colorize))
	lines = append(lines, renderStatusLine("Podcasts", statusInfo, fmt.Sprintf("%d", report.Catalog.Podcasts), colorize))
	lines = append(lines, renderStatusLine("Episodes", statusInfo, fmt.Sprintf("%d", report.Catalog.Episodes), colorize))
	lines = append(lines, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", report.Catalog.Pending), colorize))
	lines = append(lines, renderStatusLine("Time saved", statusInfo, formatSeconds(report.Catalog.TimeSaved), colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	lines = append(lines, checkLines(report.Checks, colorize)...)

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

// fetchDaemonStatus asks a running daemon for its status over the HTTP API.
// It returns nil, nil when the HTTP server is disabled.
func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (*daemon.Status, error) {
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil, nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("parse server.bind: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+net.JoinHostPort(host, port)+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Server.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("no daemon answering on %s", bind)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

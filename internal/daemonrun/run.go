package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"dailete/internal/acquire"
	"dailete/internal/audiotool"
	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/daemon"
	"dailete/internal/feed"
	"dailete/internal/logging"
	"dailete/internal/metrics"
	"dailete/internal/pipeline"
	"dailete/internal/preflight"
	"dailete/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Runtime holds the collaborators shared by the daemon and one-shot commands.
type Runtime struct {
	Store     *catalog.Store
	Pipeline  *pipeline.Pipeline
	Feeds     *feed.Reader
	Scheduler *workflow.Scheduler
}

// Close releases the catalog handle.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// NewRuntime opens the catalog and wires acquisition, audio tools, metrics
// recording, the pipeline, and the scheduler from cfg. Metrics go to the
// global meter provider, which is a no-op unless metrics.InitProvider ran.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	fetcher, err := acquire.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	recorder, err := metrics.NewRecorder(nil, logger)
	if err != nil {
		return nil, err
	}
	tools := audiotool.NewExec(cfg.Encoding.FFmpegBinary, cfg.Encoding.FFprobeBinary, logger)
	p, err := pipeline.NewFromConfig(cfg, fetcher, tools, recorder, logger)
	if err != nil {
		return nil, err
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, err
	}
	feeds := feed.NewReader(acquire.NewDirectClient(cfg.RequestTimeout()), cfg.Fetch.LocalUserAgent, logger)
	return &Runtime{
		Store:     store,
		Pipeline:  p,
		Feeds:     feeds,
		Scheduler: workflow.NewScheduler(cfg, store, p, feeds, logger),
	}, nil
}

// Run starts the dailete daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("dailete-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       opts.LogLevel,
		Format:      cfg.Logging.Format,
		File:        logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	targets := []logging.RetentionTarget{
		{Dir: cfg.Paths.LogDir, Pattern: "dailete-*.log", Exclude: []string{logPath}},
	}
	targets = append(targets, diagnosticsTargets(cfg.Paths.DiagnosticsDir)...)
	logging.CleanupOldFiles(logger, cfg.Logging.RetentionDays, targets...)
	pidPath := filepath.Join(cfg.Paths.DataDir, "dailete.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := checkReadiness(signalCtx, logger, cfg); err != nil {
		return err
	}

	shutdownMetrics, err := metrics.InitProvider(signalCtx, opts.Version)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(shutdownCtx)
	}()

	rt, err := NewRuntime(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon wiring failed", "daemon_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check proxy address and catalog database access"),
		)
		return err
	}

	d, err := daemon.New(cfg, rt.Store, rt.Scheduler, rt.Feeds, logger)
	if err != nil {
		_ = rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and the server bind address"),
			logging.String(logging.FieldImpact, "no episodes will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dailete daemon shutting down")
	return nil
}

// checkReadiness logs every failed preflight check. Missing binaries or
// unusable directories abort startup; an unreachable proxy only warns because
// it may come up later and failed jobs are retried.
func checkReadiness(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	var fatal []string
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported check and restart the daemon"),
		)
		if result.Name != preflight.ProxyCheckName {
			fatal = append(fatal, result.Name)
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("preflight failed: %v", fatal)
	}
	return nil
}

// diagnosticsTargets returns one retention target per podcast directory of
// kept captures.
func diagnosticsTargets(root string) []logging.RetentionTarget {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var targets []logging.RetentionTarget
	for _, entry := range entries {
		if entry.IsDir() {
			targets = append(targets, logging.RetentionTarget{Dir: filepath.Join(root, entry.Name())})
		}
	}
	return targets
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

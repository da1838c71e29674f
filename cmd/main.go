package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ring-scanner/internal/api"
	"github.com/ring-scanner/internal/checker"
	"github.com/ring-scanner/internal/config"
	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/output"
	"github.com/ring-scanner/internal/runner"
	"github.com/ring-scanner/internal/snapshot"
	"github.com/ring-scanner/internal/storage"
	"github.com/ring-scanner/internal/targets"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

type options struct {
	configPath    string
	ports         string
	count         int
	timeoutMs     int
	ping          bool
	pingTimeoutMs int
	once          bool
	json          bool
	quiet         bool
	interval      int
	concurrency   int
	rate          float64
	listen        string
	storageType   string
	storagePath   string
	historyLimit  int
	logLevel      string
	logFormat     string
	metrics       bool
	pubsubProject string
	pubsubTopic   string
}

func main() {
	os.Exit(execute())
}

func execute() int {
	opts := &options{}
	exitCode := output.ExitOK

	rootCmd := newRootCmd(opts, func(cmd *cobra.Command, args []string) error {
		code, err := run(cmd, opts, args)
		exitCode = code
		return err
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("❌"), err)
		if output.IsConfigError(err) {
			return output.ExitConfigError
		}
		if exitCode == output.ExitOK {
			exitCode = output.ExitTargetsDown
		}
	}
	return exitCode
}

func newRootCmd(opts *options, runE func(cmd *cobra.Command, args []string) error) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ring [hosts...]",
		Short:         "Check TCP port and ICMP reachability of hosts",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a JSON configuration file")
	flags.StringVarP(&opts.ports, "ports", "p", "80", "Ports to check, e.g. 80,443,8000-8100")
	flags.IntVarP(&opts.count, "count", "c", 3, "Attempts per target")
	flags.IntVarP(&opts.timeoutMs, "timeout", "t", 2000, "TCP connect timeout in milliseconds")
	flags.BoolVar(&opts.ping, "ping", false, "Also probe each host with ICMP echo")
	flags.IntVar(&opts.pingTimeoutMs, "ping-timeout", 1000, "ICMP reply timeout in milliseconds")
	flags.BoolVarP(&opts.once, "once", "i", false, "Run a single scan and exit")
	flags.BoolVarP(&opts.json, "json", "j", false, "Print reports as JSON")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print scan summaries")
	flags.IntVar(&opts.interval, "interval", 5, "Seconds to wait between scans")
	flags.IntVar(&opts.concurrency, "concurrency", 512, "Maximum attempts in flight (0 = unbounded)")
	flags.Float64Var(&opts.rate, "rate", 0, "Maximum attempts started per second (0 = unlimited)")
	flags.StringVar(&opts.listen, "listen", "", "Serve the HTTP status API on this address, e.g. :8080")
	flags.StringVar(&opts.storageType, "storage", "none", "Report history backend: none, file, sqlite, redis")
	flags.StringVar(&opts.storagePath, "storage-path", "", "File path, or redis address, for report history")
	flags.IntVar(&opts.historyLimit, "history-limit", 100, "Reports kept in history")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVar(&opts.metrics, "metrics", false, "Expose Prometheus metrics on the API server")
	flags.StringVar(&opts.pubsubProject, "pubsub-project", "", "Google Cloud project for publishing reports")
	flags.StringVar(&opts.pubsubTopic, "pubsub-topic", "", "Pub/Sub topic for publishing reports")

	return rootCmd
}

// loadConfig reads the config file, if any, and applies explicitly set flags
// on top of it.
func loadConfig(cmd *cobra.Command, opts *options, hosts []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if len(hosts) > 0 {
		cfg.Scan.Hosts = hosts
	}
	if changed("ports") {
		cfg.Scan.Ports = opts.ports
	}
	if changed("count") {
		cfg.Scan.Count = opts.count
	}
	if changed("timeout") {
		cfg.Scan.TimeoutMs = opts.timeoutMs
	}
	if changed("ping") {
		cfg.Scan.Ping = opts.ping
	}
	if changed("ping-timeout") {
		cfg.Scan.PingTimeoutMs = opts.pingTimeoutMs
	}
	if changed("once") {
		cfg.Scan.Once = opts.once
	}
	if changed("interval") {
		cfg.Scan.IntervalSeconds = opts.interval
	}
	if changed("concurrency") {
		cfg.Scan.Concurrency = opts.concurrency
	}
	if changed("rate") {
		cfg.Scan.RatePerSecond = opts.rate
	}
	if changed("json") {
		cfg.Output.JSON = opts.json
	}
	if changed("quiet") {
		cfg.Output.Quiet = opts.quiet
	}
	if changed("listen") {
		cfg.API.Addr = opts.listen
	}
	if changed("storage") {
		cfg.Storage.Type = opts.storageType
	}
	if changed("storage-path") {
		cfg.Storage.Path = opts.storagePath
	}
	if changed("history-limit") {
		cfg.Storage.HistoryLimit = opts.historyLimit
	}
	if changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = opts.metrics
	}
	if changed("pubsub-project") {
		cfg.Output.PubSub.ProjectID = opts.pubsubProject
	}
	if changed("pubsub-topic") {
		cfg.Output.PubSub.Topic = opts.pubsubTopic
	}

	return cfg, cfg.Validate()
}

// setupLogging configures logrus on stderr. Quiet output raises the default
// info level to warn.
func setupLogging(cfg config.LoggingConfig, quiet bool) {
	log.SetOutput(os.Stderr)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if level, err := log.ParseLevel(cfg.Level); err == nil {
		if quiet && level == log.InfoLevel {
			level = log.WarnLevel
		}
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		log.SetLevel(log.InfoLevel)
	}
}

func run(cmd *cobra.Command, opts *options, hosts []string) (int, error) {
	cfg, err := loadConfig(cmd, opts, hosts)
	if err != nil {
		return output.ExitConfigError, err
	}
	setupLogging(cfg.Logging, cfg.Output.Quiet)
	log.Debugf("Starting ring v%s", version)

	// Reject bad hosts and ports before any probing
	probeTargets, err := targets.Expand(cfg.Scan.Hosts, cfg.Scan.Ports, cfg.Scan.Ping)
	if err != nil {
		return output.ExitConfigError, err
	}
	ports, err := targets.ParsePorts(cfg.Scan.Ports)
	if err != nil {
		return output.ExitConfigError, err
	}
	log.Debugf("Expanded %d targets", len(probeTargets))

	if cfg.Scan.Ping {
		if err := checker.CheckICMPCapability(); err != nil {
			log.Warnf("ICMP probes will likely fail: %v", err)
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace, registry)

	// Initialize storage
	var store storage.Storage
	if cfg.Storage.Type != "none" {
		store, err = storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path, cfg.Storage.HistoryLimit)
		if err != nil {
			return output.ExitTargetsDown, fmt.Errorf("initialize storage: %w", err)
		}
	}

	// Initialize snapshot manager
	snapshotMgr := snapshot.NewManager(store, metricsCollector)
	defer func() {
		if err := snapshotMgr.Close(); err != nil {
			log.Errorf("Failed to close storage: %v", err)
		}
	}()

	if err := snapshotMgr.LoadFromStorage(); err != nil {
		log.Warnf("Failed to load previous report: %v (starting fresh)", err)
	}

	// Reporters
	var reporters output.Multi
	if cfg.Output.JSON {
		reporters = append(reporters, output.NewJSONReporter(os.Stdout))
	} else {
		human := output.NewHumanReporter(os.Stdout, cfg.Output.Quiet)
		human.PrintBanner()
		human.PrintHeader(cfg.Scan.Hosts, ports, cfg.Scan.Ping)
		reporters = append(reporters, human)
	}

	if cfg.Output.PubSub.Topic != "" {
		publisher, err := output.NewPubSubReporter(ctx, cfg.Output.PubSub.ProjectID, cfg.Output.PubSub.Topic, metricsCollector)
		if err != nil {
			return output.ExitTargetsDown, err
		}
		defer publisher.Close()
		reporters = append(reporters, publisher)
	}

	executor := checker.NewExecutor(checker.NewChecker(checker.NewIDSource(time.Now().UnixNano())), cfg.Scan, metricsCollector)
	scanRunner := runner.New(cfg.Scan, executor, snapshotMgr, reporters, metricsCollector)

	// Start API server
	var apiServer *api.Server
	if cfg.API.Addr != "" {
		var trigger api.Trigger
		if !cfg.Scan.Once {
			trigger = scanRunner
		}
		apiServer = api.NewServer(cfg, snapshotMgr, metricsCollector, registry, trigger)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("API server failed: %v", err)
			}
		}()
	}

	// Stop between cycles on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Info("Shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := scanRunner.Run(ctx)

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("API server shutdown error: %v", err)
		}
	}

	if err != nil {
		if output.IsConfigError(err) {
			return output.ExitConfigError, err
		}
		return output.ExitTargetsDown, err
	}

	return output.ExitCode(report), nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"netwatch/config"
	"netwatch/internal/api"
	"netwatch/internal/changes"
	"netwatch/internal/export"
	"netwatch/internal/logger"
	"netwatch/internal/metrics"
	"netwatch/internal/monitor"
	"netwatch/internal/pipeline"
	"netwatch/internal/scheduler"
	"netwatch/internal/snapshot"
	"netwatch/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("netwatch.yml"); err == nil {
		return "netwatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "netwatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadConfig reads the config file when one is found and falls back to
// defaults otherwise.
func loadConfig(configArg string) (*config.Config, string, error) {
	path := findConfigFile(configArg)
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, path, err
		}
		cfg = loaded
	} else {
		// Without a config file, log to the console.
		cfg.NetWatch.Logging.Enabled = true
		cfg.NetWatch.Logging.Console = true
	}
	applyDefaults(cfg)
	return cfg, path, nil
}

func applyDefaults(cfg *config.Config) {
	nw := &cfg.NetWatch

	if nw.Poll.Interval <= 0 {
		nw.Poll.Interval = 2 * time.Second
	}
	if nw.Poll.Timeout <= 0 {
		nw.Poll.Timeout = 5 * time.Second
	}
	if nw.Poll.BackoffInitial <= 0 {
		nw.Poll.BackoffInitial = time.Second
	}
	if nw.Poll.BackoffMax <= 0 {
		nw.Poll.BackoffMax = 30 * time.Second
	}

	if nw.Source.Mode == "" {
		nw.Source.Mode = "system"
	}
	if nw.Source.Kind == "" {
		nw.Source.Kind = "inet"
	}

	if nw.Changes.Capacity <= 0 {
		nw.Changes.Capacity = changes.DefaultCapacity
	}
	if nw.Changes.DefaultLimit <= 0 {
		nw.Changes.DefaultLimit = monitor.DefaultChangeLimit
	}

	if nw.Output.Mode == "" {
		nw.Output.Mode = "none"
	}
	if nw.Output.BatchSize <= 0 {
		nw.Output.BatchSize = 500
	}
	if nw.Output.FlushInterval <= 0 {
		nw.Output.FlushInterval = 2 * time.Second
	}
	if nw.Output.File.Path == "" {
		nw.Output.File.Path = "output/changes.jsonl"
	}
	if nw.Output.Redis.Key == "" {
		nw.Output.Redis.Key = "netwatch:changes"
	}
	if nw.Output.Redis.MaxLen <= 0 {
		nw.Output.Redis.MaxLen = 10000
	}
	if nw.Output.ClickHouse.Database == "" {
		nw.Output.ClickHouse.Database = "netwatch"
	}
	if nw.Output.ClickHouse.Table == "" {
		nw.Output.ClickHouse.Table = "changes"
	}

	if nw.Capture.File.Path == "" {
		nw.Capture.File.Path = "output/capture.jsonl"
	}

	if nw.API.Enabled == nil {
		enabled := true
		nw.API.Enabled = &enabled
	}
	if nw.API.Addr == "" {
		nw.API.Addr = "127.0.0.1:7878"
	}
	if nw.Export.Dir == "" {
		nw.Export.Dir = "output"
	}

	if nw.Logging.Level == "" {
		nw.Logging.Level = "info"
	}
}

// core is the wired poll loop shared by every subcommand.
type core struct {
	store     *snapshot.Store
	log       *changes.Log
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
}

func newCore(cfg *config.Config, m *metrics.Metrics, opts ...scheduler.Option) (*core, error) {
	nw := cfg.NetWatch

	src, err := buildSource(nw.Source)
	if err != nil {
		return nil, fmt.Errorf("build connection source: %w", err)
	}
	classifier, err := buildClassifier(nw.Risk)
	if err != nil {
		return nil, fmt.Errorf("build risk classifier: %w", err)
	}

	c := &core{
		store:   snapshot.NewStore(),
		log:     changes.NewLog(nw.Changes.Capacity),
		metrics: m,
	}
	opts = append([]scheduler.Option{scheduler.WithMetrics(m)}, opts...)
	c.scheduler = scheduler.New(scheduler.Config{
		Interval:       nw.Poll.Interval,
		Timeout:        nw.Poll.Timeout,
		BackoffInitial: nw.Poll.BackoffInitial,
		BackoffMax:     nw.Poll.BackoffMax,
	}, src, classifier, c.store, changes.NewDetector(), c.log, opts...)
	c.monitor = monitor.New(c.store, c.log, c.scheduler, nw.Changes.DefaultLimit)
	return c, nil
}

func runMonitor(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	cfg, configPath, err := loadConfig(configArg)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	nw := cfg.NetWatch

	if err := logger.Init(nw.Logging.Enabled, nw.Logging.Level, nw.Logging.File, nw.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Infof("NetWatch starting")
	if configPath != "" {
		logger.Infof("Config loaded from: %s", configPath)
	} else {
		logger.Infof("No config file found; using defaults")
	}

	changeWriter, err := buildChangeWriter(nw.Output)
	if err != nil {
		logger.Errorf("Failed to create change writer: %v", err)
		log.Fatalf("Failed to create change writer: %v", err)
	}
	rawWriter, err := buildRawWriter(nw.Capture)
	if err != nil {
		logger.Errorf("Failed to create capture writer: %v", err)
		log.Fatalf("Failed to create capture writer: %v", err)
	}

	m := metrics.New()
	var publisher *pipeline.Publisher
	var opts []scheduler.Option
	if changeWriter != nil || rawWriter != nil {
		publisher = pipeline.NewPublisher(changeWriter, rawWriter, m, nw.Output.BatchSize, nw.Output.FlushInterval)
		opts = append(opts, scheduler.WithSink(publisher))
	}
	c, err := newCore(cfg, m, opts...)
	if err != nil {
		logger.Errorf("Failed to start: %v", err)
		log.Fatalf("Failed to start: %v", err)
	}

	if recent, ok := changeWriter.(recentChanges); ok {
		seedChangeLog(context.Background(), c.log, recent)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	running := 0
	start := func(name string, run func(context.Context) error) {
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("%s error: %v", name, err)
				cancel()
			}
		}()
	}

	if publisher != nil {
		start("Publisher", publisher.Run)
	}
	start("Scheduler", c.scheduler.Run)
	if nw.API.IsEnabled() {
		srv := api.New(c.monitor, api.Config{
			Status: func() (string, error) {
				return c.scheduler.State().String(), c.scheduler.LastError()
			},
			Metrics:   c.metrics.Handler(),
			ExportDir: nw.Export.Dir,
		})
		start("API", func(ctx context.Context) error { return srv.ListenAndServe(ctx, nw.API.Addr) })
	}

	<-ctx.Done()
	logger.Infof("Shutting down")
	for i := 0; i < running; i++ {
		<-done
	}
	c.store.Reset()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Errorf("Error closing publisher: %v", err)
		}
	}
	logger.Infof("NetWatch stopped")
	return 0
}

// recentChanges is implemented by sinks that can read back what they stored.
type recentChanges interface {
	Recent(ctx context.Context, n int64) ([]models.ChangeEvent, error)
}

// seedChangeLog refills the in-memory log from the sink so recent changes
// survive a restart.
func seedChangeLog(ctx context.Context, changeLog *changes.Log, src recentChanges) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	events, err := src.Recent(ctx, int64(changeLog.Capacity()))
	if err != nil {
		logger.Warnf("Failed to read back recent changes: %v", err)
		return
	}
	slices.Reverse(events)
	changeLog.Append(events...)
	logger.Infof("Change log seeded with %d events", len(events))
}

// pollOnce loads config and runs a single poll for the one-shot subcommands.
func pollOnce(configArg string) (*core, *config.Config, error) {
	cfg, _, err := loadConfig(configArg)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetOutput(os.Stderr, logger.ParseLevel(cfg.NetWatch.Logging.Level))
	c, err := newCore(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := c.scheduler.Poll(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("poll connections: %w", err)
	}
	return c, cfg, nil
}

func runSnapshot(args []string) int {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	summaries := fs.Bool("summaries", false, "Print process and port summaries instead of connections")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, _, err := pollOnce(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
		return 1
	}

	var out any
	if *summaries {
		procs, _ := c.monitor.ProcessSummaries()
		ports, _ := c.monitor.PortSummaries()
		out = map[string]any{"processes": procs, "ports": ports}
	} else {
		conns, err := c.monitor.Connections()
		if err != nil {
			fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
			return 1
		}
		out = conns
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode snapshot: %v\n", err)
		return 1
	}
	return 0
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	formatArg := fs.String("format", "json", "Export format: json or csv")
	outDir := fs.String("out", "", "Output directory (defaults to export.dir)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	format, err := export.ParseFormat(*formatArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	c, cfg, err := pollOnce(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		return 1
	}
	dir := *outDir
	if dir == "" {
		dir = cfg.NetWatch.Export.Dir
	}

	path, err := c.monitor.ExportSnapshot(dir, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		return 1
	}
	fmt.Println(path)
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			os.Exit(runMonitor(os.Args[2:]))
		case "snapshot":
			os.Exit(runSnapshot(os.Args[2:]))
		case "export":
			os.Exit(runExport(os.Args[2:]))
		default:
			// First arg is a config path.
			os.Exit(runMonitor(os.Args[1:]))
		}
	}

	os.Exit(runMonitor(nil))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"netmon/internal/config"
	"netmon/internal/execx"
	"netmon/internal/httpapi"
	"netmon/internal/logging"
	"netmon/internal/metrics"
	"netmon/internal/model"
	"netmon/internal/monitor"
	"netmon/internal/scheduler"
	"netmon/internal/store"
)

const usage = `netmon - network health monitoring agent

Usage:
  netmon init --config <path>
  netmon run --config <path> [--listen addr] [--target host] [--interval 1s] [--ledger ws://...]
  netmon probe --config <path> [--json]
  netmon history --config <path> [--limit 20] [--json]
  netmon clear-history --config <path>
  netmon stats --config <path> [--window 5m] [--path metrics.csv]
  netmon export csv --config <path> --out <file|->
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "run":
		handleRun(os.Args[2:])
	case "probe":
		handleProbe(os.Args[2:])
	case "history":
		handleHistory(os.Args[2:])
	case "clear-history":
		handleClearHistory(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	ledgerURL := fs.String("ledger", "", "ledger websocket endpoint")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}
	if _, err := os.Stat(*configPath); err == nil {
		fatal(fmt.Errorf("%s already exists", *configPath))
	}

	cfg := config.Default()
	cfg.Ledger.Endpoint = *ledgerURL
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "HTTP listen address")
	target := fs.String("target", "", "ping target")
	interval := fs.Duration("interval", 0, "cycle interval")
	ledgerURL := fs.String("ledger", "", "ledger websocket endpoint")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	historyPath := fs.String("history", "", "history file path")
	backend := fs.String("backend", "", "history backend (yaml|bolt)")
	metricsPath := fs.String("metrics-path", "", "metrics CSV path")
	logLevel := fs.String("log-level", "", "log level")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	overrideMonitor(&cfg.Monitor, *target, *interval, *stunList, *historyPath, *backend, *metricsPath)
	if *ledgerURL != "" {
		cfg.Ledger.Endpoint = *ledgerURL
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger, err := logging.New(cfg.Server.LogLevel, logging.WithFormat(cfg.Server.LogFormat))
	if err != nil {
		fatal(err)
	}

	mon, closer, err := monitor.Build(cfg, logger)
	if err != nil {
		fatal(err)
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	srv := httpapi.NewServer(mon, mon.Metrics().Handler(), logger.With("component", "http"))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Server.Listen) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		_ = closer.Close()
		fatal(err)
	}
}

func handleProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	target := fs.String("target", "", "ping target")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	asJSON := fs.Bool("json", false, "print the probe set as JSON")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	overrideMonitor(&cfg.Monitor, *target, 0, *stunList, "", "", "")
	config.ApplyDefaults(&cfg)

	ctx, cancel := signalContext()
	defer cancel()

	collector := monitor.NewCollector(cfg.Monitor, execx.NewOSRunner())
	sched := &scheduler.Scheduler{Probe: collector.Collect}
	ev := sched.RunOnce(ctx, 1)
	if ev.Err != nil {
		fatal(ev.Err)
	}
	set := *ev.Set

	if *asJSON {
		fatal(writeJSON(os.Stdout, set))
		return
	}
	fmt.Fprintf(os.Stdout, "cycle=%s duration=%s\n", set.ID, set.Duration().Round(time.Millisecond))
	fmt.Fprintf(os.Stdout, "latency=%dms replies=%v\n", set.MaxLatency(cfg.Monitor.FailureLatencyMs), set.PingLatenciesMs)
	fmt.Fprintf(os.Stdout, "local=%s public=%s nat=%s\n", set.LocalAddress, set.PublicAddress, set.NATType)
	fmt.Fprintf(os.Stdout, "devices=%d\n", len(set.Peers)+1)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tHARDWARE ID\tKIND")
	for _, p := range set.Peers {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Address, p.HardwareID, p.Kind)
	}
	_ = tw.Flush()
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	limit := fs.Int("limit", 20, "most recent cycles to show (0 = all)")
	asJSON := fs.Bool("json", false, "print as JSON")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	sets, err := loadHistory(cfg)
	if err != nil {
		fatal(err)
	}
	if *limit > 0 && len(sets) > *limit {
		sets = sets[len(sets)-*limit:]
	}

	if *asJSON {
		fatal(writeJSON(os.Stdout, sets))
		return
	}
	if len(sets) == 0 {
		fmt.Fprintln(os.Stdout, "no history")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tCYCLE\tLATENCY\tDURATION\tDEVICES\tLOCAL\tPUBLIC")
	for _, set := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%dms\t%d\t%s\t%s\n",
			set.FinishedAt.Local().Format(time.DateTime),
			set.ID,
			set.MaxLatency(cfg.Monitor.FailureLatencyMs),
			set.Duration().Milliseconds(),
			len(set.Peers)+1,
			set.LocalAddress,
			set.PublicAddress)
	}
	_ = tw.Flush()
}

func handleClearHistory(args []string) {
	fs := flag.NewFlagSet("clear-history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	backend, err := store.Open(cfg.Monitor.HistoryBackend, cfg.Monitor.HistoryPath)
	if err != nil {
		fatal(err)
	}
	defer backend.Close()

	if err := backend.Save(nil); err != nil {
		_ = backend.Close()
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, "history cleared")
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	window := fs.Duration("window", 5*time.Minute, "time window")
	path := fs.String("path", "", "metrics CSV path override")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	metricsPath := selectMetricsPath(cfg, *path)
	if metricsPath == "" {
		fatal(errors.New("metrics path required"))
	}

	items, err := metrics.ReadCSV(metricsPath)
	if err != nil {
		fatal(err)
	}

	cutoff := time.Now().UTC().Add(-*window)
	summary := metrics.Summarize(items, cutoff)
	if summary.Count == 0 {
		fmt.Fprintln(os.Stdout, "no samples in window")
		return
	}

	fmt.Fprintf(os.Stdout, "cycles=%d failed=%d from=%s to=%s\n", summary.Count, summary.Failed, summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "latency avg=%.2fms p95=%.2fms min=%.2fms max=%.2fms\n", summary.AvgLatencyMs, summary.P95LatencyMs, summary.MinLatencyMs, summary.MaxLatencyMs)
	fmt.Fprintf(os.Stdout, "cycle duration avg=%.2fms peers avg=%.2f\n", summary.AvgDurationMs, summary.AvgPeers)
}

func handleExport(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "export subcommand required\n")
		os.Exit(2)
	}
	if args[0] != "csv" {
		fmt.Fprintf(os.Stderr, "unknown export format %q\n", args[0])
		os.Exit(2)
	}

	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	out := fs.String("out", "", "output file, - for stdout")
	_ = fs.Parse(args[1:])

	if *out == "" {
		fatal(errors.New("--out is required"))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	sets, err := loadHistory(cfg)
	if err != nil {
		fatal(err)
	}
	samples := make([]model.Sample, 0, len(sets))
	for _, set := range sets {
		samples = append(samples, set.Sample(cfg.Monitor.FailureLatencyMs))
	}

	if *out == "-" {
		fatal(metrics.WriteCSV(os.Stdout, samples))
		return
	}
	file, err := os.OpenFile(*out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		fatal(err)
	}
	if err := metrics.WriteCSV(file, samples); err != nil {
		_ = file.Close()
		fatal(err)
	}
	fatal(file.Close())
	fmt.Fprintf(os.Stdout, "exported %d cycles to %s\n", len(samples), *out)
}

func loadHistory(cfg config.Config) ([]model.ProbeSet, error) {
	backend, err := store.Open(cfg.Monitor.HistoryBackend, cfg.Monitor.HistoryPath)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	return backend.Load()
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func overrideMonitor(cfg *config.MonitorConfig, target string, interval time.Duration, stunList, historyPath, backend, metricsPath string) {
	if target != "" {
		cfg.PingTarget = target
	}
	if interval > 0 {
		cfg.CycleIntervalMs = int(interval / time.Millisecond)
	}
	if stunList != "" {
		cfg.STUNServers = splitList(stunList)
	}
	if historyPath != "" {
		cfg.HistoryPath = historyPath
	}
	if backend != "" {
		cfg.HistoryBackend = backend
	}
	if metricsPath != "" {
		cfg.MetricsPath = metricsPath
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func selectMetricsPath(cfg config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.Monitor.MetricsPath
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

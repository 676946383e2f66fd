// Command gt3x2csv converts an ActiGraph .gt3x recording to CSV and,
// optionally, a SQLite store, plots and a Kafka topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/gt3x/internal/config"
	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/monitoring"
	"github.com/banshee-data/gt3x/internal/version"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitChecksum = 3
)

var (
	formatFlag    = flag.String("format", "", "Output format: actilife or plain (default actilife)")
	configPath    = flag.String("config", "", "Export config file (.json, .yaml or .yml)")
	rawFlag       = flag.Bool("raw", false, "Write device units instead of g")
	decimalsFlag  = flag.Int("decimals", -1, "Decimal places for acceleration values (default 3, or 0 with -raw)")
	unitsFlag     = flag.String("units", "", "Acceleration units: g or mps2 (default g)")
	timezoneFlag  = flag.String("timezone", "", "Timezone for timestamps: an IANA name or 'device' (default UTC)")
	encodingFlag  = flag.String("encoding", "", "Force a payload encoding: auto, short8, int16, int24 or packed12")
	strictFlag    = flag.Bool("strict", false, "Exit with status 3 if any record, or the log member, fails its checksum")
	dbPath        = flag.String("db", "", "SQLite database to store the recording, summary and samples in")
	plotPath      = flag.String("plot", "", "Write a PNG plot of the three axes")
	chartPath     = flag.String("chart", "", "Write an interactive HTML chart of the three axes")
	kafkaBrokers  = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers to publish sample batches to")
	kafkaTopic    = flag.String("kafka-topic", "", "Kafka topic (default gt3x.samples)")
	metricsListen = flag.String("metrics-listen", "", "Serve /metrics and /status on this address until interrupted")
	debugFlag     = flag.Bool("debug", false, "Log every record")
	versionFlag   = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: gt3x2csv [flags] <input.gt3x> <output.csv>\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if *versionFlag {
		fmt.Println("gt3x2csv", version.String())
		return exitOK
	}
	if flag.NArg() != 2 {
		flag.Usage()
		return exitUsage
	}
	monitoring.SetDebug(*debugFlag)

	cfg, err := buildConfig(*configPath, flagConfig())
	if err != nil {
		log.Printf("gt3x2csv: %v", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conv := conversion{
		Input:  flag.Arg(0),
		Output: flag.Arg(1),
		Config: cfg,
		FS:     fsutil.OSFileSystem{},
	}
	var (
		srv      *http.Server
		serveErr <-chan error
		status   *statusHandler
	)
	if *metricsListen != "" {
		status = newStatusHandler(flag.Arg(0))
		srv, serveErr, err = serveMetrics(*metricsListen, status)
		if err != nil {
			log.Printf("gt3x2csv: %v", err)
			return exitFailure
		}
		conv.Progress = status
		conv.OnDiagnostic = status.diagnostic
	}

	res, err := convert(ctx, conv)
	if res != nil {
		printSummary(os.Stdout, res)
	}
	if status != nil {
		status.finish(res, err)
	}
	code := exitOK
	switch {
	case err != nil:
		log.Printf("gt3x2csv: %v", err)
		code = exitFailure
	case cfg.GetStrictChecksum() && res.ChecksumMismatches() > 0:
		log.Printf("gt3x2csv: %d checksum failure(s)", res.ChecksumMismatches())
		code = exitChecksum
	}

	if srv != nil {
		log.Printf("serving metrics on %s until interrupted", srv.Addr)
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				log.Printf("metrics server: %v", err)
				if code == exitOK {
					code = exitFailure
				}
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown: %v", err)
		}
	}
	return code
}

// flagConfig returns the explicitly set flags as a config overlay.
func flagConfig() *config.ExportConfig {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := config.EmptyExportConfig()
	if set["format"] {
		cfg.Format = config.StringPtr(*formatFlag)
	}
	if set["raw"] {
		cfg.Raw = config.BoolPtr(*rawFlag)
	}
	if set["decimals"] {
		cfg.Decimals = config.IntPtr(*decimalsFlag)
	}
	if set["units"] {
		cfg.Units = config.StringPtr(*unitsFlag)
	}
	if set["timezone"] {
		cfg.Timezone = config.StringPtr(*timezoneFlag)
	}
	if set["encoding"] {
		cfg.PayloadEncoding = config.StringPtr(*encodingFlag)
	}
	if set["strict"] {
		cfg.StrictChecksum = config.BoolPtr(*strictFlag)
	}
	if set["db"] {
		cfg.DBPath = config.StringPtr(*dbPath)
	}
	if set["plot"] {
		cfg.PlotPath = config.StringPtr(*plotPath)
	}
	if set["chart"] {
		cfg.ChartPath = config.StringPtr(*chartPath)
	}
	if set["kafka-brokers"] {
		cfg.KafkaBrokers = splitList(*kafkaBrokers)
	}
	if set["kafka-topic"] {
		cfg.KafkaTopic = config.StringPtr(*kafkaTopic)
	}
	return cfg
}

// buildConfig layers flags over the config file over defaults.
func buildConfig(path string, flags *config.ExportConfig) (*config.ExportConfig, error) {
	cfg := config.EmptyExportConfig()
	if path != "" {
		loaded, err := config.LoadExportConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Merge(flags)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// serveMetrics binds addr before returning, so a busy port fails here, then
// serves /metrics and /status in the background. The channel yields the
// serve error, if any, and is closed when the server stops.
func serveMetrics(addr string, status http.Handler) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.Handle("/status", status)
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return srv, errc, nil
}

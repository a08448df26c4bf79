package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowsentry/flowsentry/pkg/config"
	"github.com/flowsentry/flowsentry/pkg/events"
	fsio "github.com/flowsentry/flowsentry/pkg/io"
	"github.com/flowsentry/flowsentry/pkg/io/flowlog"
	"github.com/flowsentry/flowsentry/pkg/io/pcap"
	"github.com/flowsentry/flowsentry/pkg/logger"
	"github.com/flowsentry/flowsentry/pkg/metrics"
	"github.com/flowsentry/flowsentry/pkg/report"
	"github.com/flowsentry/flowsentry/pkg/stream"
)

var (
	watchInput       string
	watchPcap        string
	watchIface       string
	watchJSONPath    string
	watchMetricsAddr string
	watchStatusEvery int
	watchTrees       int
	watchBuffer      int
	watchThreshold   float64
	watchRetrain     int
	watchSeed        int64
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream flow events through the anomaly detector",
	Long: `Watch reads network flow events from a flow log (--input, "-" for stdin),
a PCAP file (--pcap) or a live interface (--iface), feeds them through the
streaming detector, and reports anomalies to the console and optionally to a
JSON-lines file.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInput, "input", "i", "", `flow log path, "-" for stdin`)
	watchCmd.Flags().StringVar(&watchPcap, "pcap", "", "PCAP file to replay")
	watchCmd.Flags().StringVar(&watchIface, "iface", "", "network interface for live capture")
	watchCmd.Flags().StringVar(&watchJSONPath, "json", "", "append findings to this JSON-lines file")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().IntVar(&watchStatusEvery, "status-every", 0, "print a status line every N events")
	watchCmd.Flags().IntVar(&watchTrees, "trees", 0, "isolation trees per forest")
	watchCmd.Flags().IntVar(&watchBuffer, "buffer", 0, "training buffer / sliding window size")
	watchCmd.Flags().Float64Var(&watchThreshold, "threshold", 0, "anomaly score threshold in [0,1]")
	watchCmd.Flags().IntVar(&watchRetrain, "retrain", 0, "events between retrains")
	watchCmd.Flags().Int64Var(&watchSeed, "seed", 0, "random seed (0 = time-based)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadWatchConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync failure is uninteresting

	reader, err := openEventReader(cfg)
	if err != nil {
		return err
	}
	defer reader.Close()

	var opts []stream.Option
	if watchSeed != 0 {
		opts = append(opts, stream.WithSeed(watchSeed))
	}
	detector, err := stream.New(cfg.Detector, events.NewExtractor(), opts...)
	if err != nil {
		return err
	}

	console := report.NewConsole(os.Stderr)

	var jsonWriter *report.JSONWriter
	if cfg.Output.JSONPath != "" {
		jsonWriter, err = report.NewJSONWriter(cfg.Output.JSONPath)
		if err != nil {
			return err
		}
		defer jsonWriter.Close()
	}

	m := metrics.New()
	if cfg.Output.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{
			Addr:              cfg.Output.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %v", err)
			}
		}()
		defer server.Close()
		log.Infof("serving metrics on %s", cfg.Output.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventCh, err := reader.Events(ctx)
	if err != nil {
		return err
	}

	log.Infof("watching: trees=%d buffer=%d threshold=%.2f retrain=%d",
		cfg.Detector.NTrees, cfg.Detector.BufferSize, cfg.Detector.Threshold,
		cfg.Detector.RetrainInterval)

	trainCount := 0
	for event := range eventCh {
		rep, err := detector.Process(event)
		if err != nil {
			log.Errorf("process event %d: %v", detector.TotalEvents(), err)
			continue
		}

		m.EventsTotal.Inc()
		if detector.Trained() {
			m.Trained.Set(1)
		}
		if detector.TrainCount() > trainCount {
			trainCount = detector.TrainCount()
			m.RetrainsTotal.Inc()
			log.Debugf("forest trained (count=%d, events=%d)", trainCount, detector.TotalEvents())
		}

		if rep != nil {
			m.AnomaliesTotal.Inc()
			m.AnomalyScore.Observe(rep.Score)

			finding := report.Report{
				Event:       rep.Observation.(events.NetworkEvent),
				Score:       rep.Score,
				EventNumber: rep.EventNumber,
			}
			console.Print(finding)
			if jsonWriter != nil {
				if err := jsonWriter.Write(finding); err != nil {
					log.Errorf("write finding: %v", err)
				}
			}
		}

		if cfg.Output.StatusEvery > 0 && detector.TotalEvents()%cfg.Output.StatusEvery == 0 {
			console.PrintStatus(detector.TotalEvents(), detector.TotalAnomalies(), detector.Trained())
		}
	}

	if !detector.Trained() {
		log.Warnf("feed ended before the buffer filled (%d events); nothing was scored",
			detector.TotalEvents())
	}
	console.PrintSummary(detector.TotalEvents(), detector.TotalAnomalies())

	return nil
}

// loadWatchConfig merges the config file, environment and explicit flags.
func loadWatchConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if cmd.Flags().Changed("trees") {
		cfg.Detector.NTrees = watchTrees
	}
	if cmd.Flags().Changed("buffer") {
		cfg.Detector.BufferSize = watchBuffer
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Detector.Threshold = watchThreshold
	}
	if cmd.Flags().Changed("retrain") {
		cfg.Detector.RetrainInterval = watchRetrain
	}
	if cmd.Flags().Changed("json") {
		cfg.Output.JSONPath = watchJSONPath
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Output.MetricsAddr = watchMetricsAddr
	}
	if cmd.Flags().Changed("status-every") {
		cfg.Output.StatusEvery = watchStatusEvery
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEventReader picks the observation source from the flags.
func openEventReader(cfg *config.Config) (fsio.EventReader, error) {
	sources := 0
	for _, s := range []string{watchInput, watchPcap, watchIface} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, fmt.Errorf("exactly one of --input, --pcap or --iface is required")
	}

	switch {
	case watchPcap != "":
		return pcap.NewFileReader(watchPcap)
	case watchIface != "":
		return pcap.NewLiveReader(watchIface, 65535, true, time.Second)
	default:
		return flowlog.NewReader(watchInput)
	}
}

package main

import (
	"flag"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/scenario"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Parse flags
	path := flag.String("scenario", "", "Scenario file (.yaml, .yml or .toml)")
	reply := flag.Bool("reply", true, "Run the outgoing pass when the scenario declares a reply")
	pretty := flag.Bool("pretty", false, "Indent the JSON report")
	dumpMetrics := flag.Bool("metrics", false, "Log collected metrics after the run")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(reg, cfg.Metrics.Namespace)
	}

	s, err := scenario.Load(*path)
	if err != nil {
		logger.Fatal("Failed to load scenario", zap.String("path", *path), zap.Error(err))
	}

	report, err := scenario.Run(s, scenario.Options{
		Logger:           logger,
		Metrics:          metrics,
		StrictHeader:     cfg.IPC.StrictHeader,
		TraceDescriptors: cfg.IPC.TraceDescriptors,
		Reply:            *reply,
	})
	if err != nil {
		logger.Fatal("Failed to run scenario", zap.String("scenario", s.Name), zap.Error(err))
	}

	data, err := report.JSON(*pretty)
	if err != nil {
		logger.Fatal("Failed to encode report", zap.Error(err))
	}
	os.Stdout.Write(append(data, '\n'))

	if *dumpMetrics && metrics != nil {
		logMetrics(logger, reg)
	}
	if report.Failed() {
		_ = logger.Sync()
		os.Exit(1)
	}
}

// logMetrics logs every counter and gauge sample in reg.
func logMetrics(logger *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("Failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}

			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			logger.Info("metric",
				zap.String("name", mf.GetName()),
				zap.String("labels", strings.Join(labels, ",")),
				zap.Float64("value", value))
		}
	}
}

package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fifoexport/internal/config"
	"fifoexport/internal/logging"
	"fifoexport/internal/metrics"
	"fifoexport/internal/metrics/datadog"
	"fifoexport/internal/metrics/prompush"
)

// globalFlags are shared by every subcommand. Non-empty values override the
// job file.
type globalFlags struct {
	config         string
	logLevel       string
	logFormat      string
	metricsBackend string
}

var errNoConfig = errors.New("--config is required")

// configError marks failures to load or validate the job file.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rc := &cobra.Command{
		Use:   "fifoexport",
		Short: "Stream files into a warehouse through a named pipe",
		Long: `fifoexport reads CSV, JSON, text, Avro or Parquet inputs from local disk,
HTTP or object storage and feeds them to the warehouse's bulk loader through
a named pipe, without staging the data on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	pf := rc.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "job file (YAML or JSON)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: json or console")
	pf.StringVar(&g.metricsBackend, "metrics-backend", "", "metrics backend: none, prometheus or datadog")

	rc.AddCommand(
		newExportCommand(g, stdout),
		newValidateCommand(g, stdout),
		newStatementCommand(g, stdout),
	)
	return rc
}

// loadJob reads the job file and applies flag overrides. set holds extra
// dotted-key overrides from the subcommand.
func loadJob(g *globalFlags, set map[string]any) (*config.Job, error) {
	if g.config == "" {
		return nil, &configError{err: errNoConfig}
	}
	l := config.NewLoader()
	if g.logLevel != "" {
		l.Set("observability.logging.level", g.logLevel)
	}
	if g.logFormat != "" {
		l.Set("observability.logging.format", g.logFormat)
	}
	if g.metricsBackend != "" {
		l.Set("observability.metrics.backend", g.metricsBackend)
	}
	for k, v := range set {
		l.Set(k, v)
	}
	job, err := l.Load(g.config)
	if err != nil {
		return nil, &configError{err: err}
	}
	return job, nil
}

// validJob loads the job and fails on error-severity issues. Warnings are
// returned for the caller to report.
func validJob(g *globalFlags, set map[string]any) (*config.Job, config.Issues, error) {
	job, err := loadJob(g, set)
	if err != nil {
		return nil, nil, err
	}
	issues := config.ValidateJob(*job)
	if err := issues.Err(); err != nil {
		return job, issues, &configError{err: err}
	}
	return job, issues, nil
}

func newLogger(job *config.Job) (*zap.Logger, error) {
	log, err := logging.New(logging.Config{
		Level:  job.Observability.Logging.Level,
		Format: job.Observability.Logging.Format,
		Output: job.Observability.Logging.Output,
	})
	if err != nil {
		return nil, &configError{err: err}
	}
	return log.With(zap.String("job", job.Job)), nil
}

// setupMetrics installs the configured backend. The returned func flushes
// it and must run before exit.
func setupMetrics(job *config.Job, log *zap.Logger) func() {
	m := job.Observability.Metrics
	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(m.Backend) {
	case "", "none":
		log.Debug("metrics disabled")
		return func() {}
	case "prometheus":
		b, err = prompush.NewBackend(job.Job, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, GlobalTags: m.Tags})
	default:
		log.Warn("unknown metrics backend, metrics disabled", zap.String("backend", m.Backend))
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend init failed, metrics disabled", zap.String("backend", m.Backend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	log.Debug("metrics enabled", zap.String("backend", m.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
	}
}

func logIssues(log *zap.Logger, issues config.Issues) {
	for _, i := range issues {
		if i.Severity == config.SeverityWarning {
			log.Warn("config", zap.String("path", i.Path), zap.String("issue", i.Message))
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fifoexport/internal/config"
	"fifoexport/internal/datasource"
	"fifoexport/internal/datasource/httpds"
	"fifoexport/internal/datasource/objstore"
	"fifoexport/internal/delimited"
	"fifoexport/internal/export"
	"fifoexport/internal/parser"
	"fifoexport/internal/record"
	"fifoexport/internal/transformer"
	"fifoexport/internal/warehouse"
)

type exportFlags struct {
	parallel  int
	attemptID string
}

func newExportCommand(g *globalFlags, stdout io.Writer) *cobra.Command {
	f := &exportFlags{}
	ec := &cobra.Command{
		Use:   "export",
		Short: "Load every input of the job into the target table",
		Long: `Expands source.paths and runs one export attempt per input. Each attempt
creates a private named pipe, starts the warehouse's bulk load against it and
streams the parsed records into it. SIGINT and SIGTERM abort running attempts
and remove their pipes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExport(ctx, g, f, stdout)
		},
	}
	flags := ec.Flags()
	flags.IntVarP(&f.parallel, "parallel", "p", 0, "concurrent attempts (overrides runtime.parallel)")
	flags.StringVar(&f.attemptID, "attempt-id", "", "attempt id; a random UUID when empty, suffixed with the input index for several inputs")
	return ec
}

// exporter holds what every attempt of one run shares.
type exporter struct {
	job    *config.Job
	wh     warehouse.Warehouse
	ds     delimited.DelimiterSet
	opener *datasource.Opener
	log    *zap.Logger
}

type attemptResult struct {
	input   string
	attempt string
	res     export.Result
	err     error
}

func runExport(ctx context.Context, g *globalFlags, f *exportFlags, stdout io.Writer) error {
	set := map[string]any{}
	if f.parallel > 0 {
		set["runtime.parallel"] = f.parallel
	}
	job, issues, err := validJob(g, set)
	if err != nil {
		return err
	}
	log, err := newLogger(job)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logIssues(log, issues)

	flush := setupMetrics(job, log)
	defer flush()

	inputs, err := datasource.Expand(job.Source.Paths)
	if err != nil {
		return &configError{err: err}
	}
	if len(inputs) == 0 {
		return &configError{err: errors.New("source.paths expanded to no inputs")}
	}
	wh, err := warehouse.Lookup(job.Target.Kind)
	if err != nil {
		return &configError{err: err}
	}
	ds, err := job.Delimiters.Set()
	if err != nil {
		return &configError{err: err}
	}

	x := &exporter{
		job:    job,
		wh:     wh,
		ds:     ds,
		opener: datasource.NewOpener(sourceOptions(job.Source), log),
		log:    log,
	}

	results := make([]attemptResult, len(inputs))
	ids := attemptIDs(f.attemptID, len(inputs))

	// Attempts are independent: a failed input does not cancel the others.
	var eg errgroup.Group
	eg.SetLimit(max(1, job.Runtime.Parallel))
	for i, in := range inputs {
		eg.Go(func() error {
			res, err := x.runAttempt(ctx, in, ids[i])
			results[i] = attemptResult{input: in, attempt: ids[i], res: res, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	writeSummary(stdout, results)

	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.input, r.err))
		}
	}
	if len(errs) > 0 {
		log.Error("export failed", zap.Int("failed", len(errs)), zap.Int("inputs", len(inputs)))
		return errors.Join(errs...)
	}
	log.Info("export complete", zap.Int("inputs", len(inputs)))
	return nil
}

func attemptIDs(base string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		switch {
		case base == "":
			ids[i] = uuid.NewString()
		case n == 1:
			ids[i] = base
		default:
			ids[i] = fmt.Sprintf("%s-%d", base, i+1)
		}
	}
	return ids
}

// runAttempt exports one input: open, parse, transform, stream.
func (x *exporter) runAttempt(ctx context.Context, input, attempt string) (export.Result, error) {
	log := x.log.With(zap.String("attempt", attempt), zap.String("input", input))
	job := x.job

	rc, err := x.opener.Open(ctx, input)
	if err != nil {
		return export.Result{}, &export.Error{Kind: export.KindRecord, Op: "open input", Err: err}
	}
	defer rc.Close()

	src, err := parser.Open(job.Format.Kind, rc, job.Target.Columns, job.Format.Options)
	if err != nil {
		return export.Result{}, &export.Error{Kind: export.KindRecord, Op: "read " + job.Format.Kind + " header", Err: err}
	}
	if c, ok := src.(record.Closer); ok {
		defer c.Close()
	}

	target := job.Target.Warehouse()
	if len(target.Columns) == 0 {
		target.Columns = src.Columns()
	}
	stage, err := transformer.Wrap(src, job.Transform.Spec(target.Columns), log)
	if err != nil {
		return export.Result{}, &export.Error{Kind: export.KindRecord, Op: "build transform", Err: err}
	}

	drv := export.New(x.wh, export.Config{
		Job:           job.Job,
		Attempt:       attempt,
		WorkDir:       job.Runtime.WorkDir,
		PipeName:      job.Runtime.PipeName,
		Target:        target,
		Delimiters:    x.ds,
		Grace:         job.Runtime.ShutdownGrace,
		ProgressEvery: job.Runtime.ProgressEvery,
	}, log)
	res, err := drv.Run(ctx, stage)

	if st, ok := stage.(*transformer.Stage); ok && (st.Rejected() > 0 || st.Duplicates() > 0) {
		log.Info("transform summary", zap.Int64("rejected", st.Rejected()), zap.Int64("duplicates", st.Duplicates()))
	}
	return res, err
}

func sourceOptions(s config.Source) datasource.Options {
	return datasource.Options{
		Decode: datasource.DecodeOptions{
			Encoding:   s.Encoding,
			Normalize:  s.Normalize,
			Decompress: s.Decompress,
		},
		HTTP: httpds.Config{
			Timeout:            s.HTTP.Timeout,
			RetryMax:           s.HTTP.RetryMax,
			InsecureSkipVerify: s.HTTP.InsecureSkipVerify,
			Headers:            s.HTTP.Headers,
		},
		Objects: objstore.Config{
			S3: objstore.S3Config{
				Region:       s.S3.Region,
				Endpoint:     s.S3.Endpoint,
				UsePathStyle: s.S3.UsePathStyle,
			},
			GCS: objstore.GCSConfig{
				CredentialsFile: s.GCS.CredentialsFile,
				Endpoint:        s.GCS.Endpoint,
			},
			Azure: objstore.AzureConfig{
				AccountURL:       s.Azure.AccountURL,
				ConnectionString: s.Azure.ConnectionString,
			},
		},
	}
}

func writeSummary(w io.Writer, results []attemptResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tATTEMPT\tRECORDS\tROWS\tBYTES\tDIGEST\tELAPSED\tSTATUS")
	for _, r := range results {
		status := "ok"
		if r.err != nil {
			status = "failed"
			if k := export.KindOf(r.err); k != 0 {
				status = "failed (" + k.String() + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%016x\t%s\t%s\n",
			r.input, r.attempt, r.res.Records, r.res.Rows, r.res.Bytes, r.res.Digest,
			r.res.Elapsed.Truncate(time.Millisecond), status)
	}
	_ = tw.Flush()
}

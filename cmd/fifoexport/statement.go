package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fifoexport/internal/fifo"
	"fifoexport/internal/warehouse"
)

func newStatementCommand(g *globalFlags, stdout io.Writer) *cobra.Command {
	var pipe string
	sc := &cobra.Command{
		Use:   "statement",
		Short: "Print the bulk-load statement an attempt would run",
		Long: `Renders the load statement for the job's target with the configured
delimiters, as it would run against the pipe of an attempt. Delimiter
settings the warehouse cannot honor are listed as SQL comments.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			job, _, err := validJob(g, nil)
			if err != nil {
				return err
			}
			wh, err := warehouse.Lookup(job.Target.Kind)
			if err != nil {
				return &configError{err: err}
			}
			ds, err := job.Delimiters.Set()
			if err != nil {
				return &configError{err: err}
			}
			if pipe == "" {
				pipe = fifo.AttemptPath(job.Runtime.WorkDir, "<attempt>", job.Runtime.PipeName)
			}
			st, warns, err := warehouse.Render(wh, job.Target.Warehouse(), pipe, ds)
			if err != nil {
				return &configError{err: err}
			}
			for _, w := range warns {
				fmt.Fprintf(stdout, "-- %s: %s\n", w.Setting, w.Message)
			}
			fmt.Fprintln(stdout, st.SQL)
			return nil
		},
	}
	sc.Flags().StringVar(&pipe, "pipe", "", "pipe path to render (default <work_dir>/<attempt>/<pipe_name>)")
	return sc
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fifoexport/internal/config"
)

func newValidateCommand(g *globalFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint the job file without touching inputs or the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			job, err := loadJob(g, nil)
			if err != nil {
				return err
			}
			issues := config.ValidateJob(*job)
			for _, i := range issues {
				fmt.Fprintf(stdout, "%s: %s: %s\n", i.Severity, i.Path, i.Message)
			}
			if err := issues.Err(); err != nil {
				return &configError{err: err}
			}
			fmt.Fprintf(stdout, "configuration is valid: %s\n", g.config)
			return nil
		},
	}
}

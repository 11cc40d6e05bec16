package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
	"github.com/paynet/cnab/pkg/cnab/detect"
	"github.com/paynet/cnab/pkg/cnab/validate"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var (
		dialect     string
		strictWidth bool
	)

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate a CNAB file without persisting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			d := parseDialect(dialect)
			if d == "" {
				det, err := detect.Detect(string(content))
				if err != nil {
					return err
				}
				d = det.Dialect
			}

			var report *validate.Report
			switch d {
			case cnab.Dialect240:
				f, err := cnab240.Parse(string(content), cnab240.Options{StrictWidth: strictWidth})
				if err != nil {
					return err
				}
				report = validate.File240(f, validate.Options{})
			case cnab.Dialect400:
				f, err := cnab400.Parse(string(content), cnab400.Options{StrictWidth: strictWidth})
				if err != nil {
					return err
				}
				report = validate.File400(f)
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "force dialect (240 or 400) instead of detecting")
	cmd.Flags().BoolVar(&strictWidth, "strict-width", false, "reject lines with the wrong width instead of padding")

	return cmd
}

package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/ingest"
)

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	var (
		dialect           string
		forceReprocess    bool
		webhookURL        string
		skipWebhook       bool
		includeValidation bool
	)

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Ingest a CNAB file end to end",
		Long:  "Detects the format, parses, validates, extracts barcodes and persists the file. Duplicate content short-circuits unless --force is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := newIngestService(st).Process(cmd.Context(), content, ingest.Options{
				FileName:          filepath.Base(args[0]),
				Dialect:           parseDialect(dialect),
				ForceReprocess:    forceReprocess,
				WebhookURL:        webhookURL,
				SkipWebhook:       skipWebhook,
				IncludeValidation: includeValidation,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "force dialect (240 or 400) instead of detecting")
	cmd.Flags().BoolVar(&forceReprocess, "force", false, "reprocess even if the content hash is already stored")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "override the configured webhook endpoint")
	cmd.Flags().BoolVar(&skipWebhook, "no-webhook", false, "skip webhook dispatch")
	cmd.Flags().BoolVar(&includeValidation, "validation", true, "include the full validation report in the output")

	return cmd
}

func parseDialect(s string) cnab.Dialect {
	switch s {
	case "240", "cnab240":
		return cnab.Dialect240
	case "400", "cnab400":
		return cnab.Dialect400
	}
	return ""
}

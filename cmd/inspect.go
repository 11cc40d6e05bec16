package cmd

import (
	"github.com/spf13/cobra"
)

// NewInspectCmd creates the inspect command with subcommands
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect persisted ingest data",
		Long:  "Query the audit trail: operations, stored files and extracted barcodes.",
	}

	cmd.AddCommand(newInspectCensusCmd())
	cmd.AddCommand(newInspectOperationsCmd())
	cmd.AddCommand(newInspectFileCmd())
	cmd.AddCommand(newInspectBarcodesCmd())

	return cmd
}

func newInspectCensusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "census",
		Short: "Count stored keys per table",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			census, err := st.Inspect()
			if err != nil {
				return err
			}
			return printJSON(census)
		},
	}
}

func newInspectOperationsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List recent operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ops, err := st.ListOperations(limit)
			if err != nil {
				return err
			}
			return printJSON(ops)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to list (0 = all)")

	return cmd
}

func newInspectFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file [sha256-hash]",
		Short: "Show the stored file for a content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			fp, err := st.GetFileByHash(args[0])
			if err != nil {
				return err
			}
			return printJSON(fp)
		},
	}
}

func newInspectBarcodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "barcodes [file-id]",
		Short: "List the barcodes extracted from a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			barcodes, err := st.ListBarcodes(args[0])
			if err != nil {
				return err
			}
			return printJSON(barcodes)
		},
	}
}

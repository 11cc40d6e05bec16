package cmd

import (
	"github.com/spf13/cobra"
)

// NewBoletoCmd creates the boleto command with subcommands
func NewBoletoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boleto",
		Short: "Check and pay boletos through the settlement API",
	}

	cmd.AddCommand(newBoletoCheckCmd())
	cmd.AddCommand(newBoletoPayCmd())

	return cmd
}

func newBoletoCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [barcode]",
		Short: "Consult the settlement API about a barcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := newSwapClient().CheckBoleto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(check)
		},
	}
}

func newBoletoPayCmd() *cobra.Command {
	var document string

	cmd := &cobra.Command{
		Use:   "pay [barcode]",
		Short: "Order payment of a boleto",
		Long:  "Checks the boleto first, then orders its payment. The payer document falls back to the configured company CNPJ.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newSwapClient().PayBoleto(cmd.Context(), args[0], document)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&document, "document", "", "payer document (CPF or CNPJ)")

	return cmd
}

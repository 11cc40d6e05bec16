package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/paynet/cnab/pkg/cnab/detect"
)

// NewDetectCmd creates the detect command
func NewDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [file]",
		Short: "Detect the CNAB dialect of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := detect.Detect(string(content))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

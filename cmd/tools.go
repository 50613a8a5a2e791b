// File: cmd/tools.go
package cmd

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/browsergate/internal/tools"
)

func newToolsCmd() *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue with input schemas as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(tools.Default().Descriptors())
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print on a single line")
	return cmd
}

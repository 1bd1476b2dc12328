package generate

import (
	"github.com/spf13/cobra"
	"github.com/steplock/steplock/cmd/generate/config"
)

var (
	Cmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate resources",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.AddCommand(config.Cmd)
}

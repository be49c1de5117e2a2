package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightseq/internal/pattern"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check pattern documents for errors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		invalid := 0
		for _, path := range args {
			p, err := pattern.LoadFile(path)
			if err != nil {
				invalid++
				failColor.Fprintf(out, "✗ %s\n", path)
				for _, line := range strings.Split(err.Error(), "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
				continue
			}
			okColor.Fprintf(out, "✓ %s", path)
			fmt.Fprintf(out, " (%s, %d steps)\n", p.Name, len(p.Steps))
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d documents invalid", invalid, len(args))
		}
		return nil
	},
}

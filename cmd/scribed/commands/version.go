package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/scribe/cmd/scribed/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatOutput == "json" {
			return printJSON(map[string]string{
				"version": build.Version,
				"commit":  build.Commit,
				"date":    build.Date,
				"go":      runtime.Version(),
			})
		}
		fmt.Println(build.String())
		if verbose {
			fmt.Printf("  go: %s\n", runtime.Version())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/sessiontrace/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and platform information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("sessiontrace %s %s/%s\n", buildinfo.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

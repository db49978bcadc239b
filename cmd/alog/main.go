package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var mainCommand = &cobra.Command{
	Use:   "alog",
	Short: "Actor-based log aggregation toolkit",
	Long: `alog runs a supervised logger actor behind a well-known name and
provides helpers for working with its compact output.`,
	SilenceUsage: true,
}

func init() {
	mainCommand.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (ALOG_* environment variables override it)")
}

func main() {
	if err := mainCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

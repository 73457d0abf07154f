package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agungkristd/session-switcher/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var dataDirFlag string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "session-switcher",
		Short:         "Save and switch named browser sessions per site",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.session-switcher, env SWITCHER_DATA_DIR)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(dataDirFlag)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "session-switcher %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chromapicker/license-server/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "licensed",
	Short:   "ChromaPicker license server",
	Long:    `licensed issues and validates ChromaPicker license keys: it mints a key when a Stripe checkout completes and answers license-status lookups from the extension`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Run(context.Background(), Version); err != nil {
			log.Error().Err(err).Msg("License server exited with error")
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("licensed %s\n", Version)
		fmt.Printf("  build time: %s\n", BuildTime)
		fmt.Printf("  git commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atrilabs/atri-runtime/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "atri",
		Short: "Session runtime for apps built in the visual editor",
		Long: `atri runs the server side of an app built in the visual editor.

Each browser tab that opens a route gets an isolated session. The
route's generated hooks initialize and update the session state, and
every change is pushed to the client as a minimal delta over a
WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to atri.json or its directory (default: search from the working directory)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		routesCmd(&configPath),
		probeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

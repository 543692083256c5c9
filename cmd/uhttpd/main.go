// File: cmd/uhttpd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// uhttpd runs the uhttp reactor as a standalone daemon.

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "uhttpd",
		Short: "Single-threaded non-blocking TCP reactor",
		Long: `uhttpd binds a listening socket and drives the uhttp reactor:
every pass accepts pending connections, then polls each tracked
connection for hangup, error and receive readiness.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "uhttpd: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uhttpd %s (%s) %s %s/%s\n",
				version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

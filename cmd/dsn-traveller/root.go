// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// These are filled at build time with -ldflags.
var (
	Tag    = "unknown"
	Commit = "unknown"
)

var (
	configPath  string
	sessionPath string
	graphDir    string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "dsn-traveller",
	Short: "Travelling the Matrix network, for Science!",
	Long: `dsn-traveller joins Matrix rooms, records which users share which rooms
over which servers into a pseudonymized network graph, and probes the
federation surface of the servers it finds on the way.`,
	SilenceUsage: true,
}

func Execute() error {
	rootCmd.Version = fmt.Sprintf("%s (%s)", Tag, Commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", "session.yaml", "path to the stored homeserver session")
	rootCmd.PersistentFlags().StringVar(&graphDir, "graph-dir", "", "override the graph output directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/florianjacob/dsn-traveller/pkg/explore"
	"github.com/florianjacob/dsn-traveller/pkg/federation"
	"github.com/florianjacob/dsn-traveller/pkg/frontier"
	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
)

var (
	exploreMaxServers  int
	exploreMaxRooms    int
	exploreConcurrency int
	exploreTimeout     time.Duration
)

var exploreCmd = &cobra.Command{
	Use:   "explore [server names...]",
	Short: "walk the federation from the given servers and store what is found",
	Long: `explore probes the federation surface of the given servers, lists their
public room directories through the bot's homeserver, and follows the
servers named in room aliases, breadth-first, until the frontier drains or
the budget is spent. Without arguments it starts from the bot's own server.`,
	RunE: runExplore,
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	exploreCmd.Flags().IntVar(&exploreMaxServers, "max-servers", 0, "stop after visiting this many servers (0: config value)")
	exploreCmd.Flags().IntVar(&exploreMaxRooms, "max-rooms", 0, "cap on public rooms recorded per server (0: config value)")
	exploreCmd.Flags().IntVar(&exploreConcurrency, "concurrency", 0, "simultaneous probes in flight (0: config value)")
	exploreCmd.Flags().DurationVar(&exploreTimeout, "timeout", 0, "per-server request timeout (0: config value)")
}

func runExplore(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	t, err := app.traveller(ctx)
	if err != nil {
		return err
	}

	limits := explore.Limits{
		MaxServers:        app.cfg.Explore.MaxServers,
		MaxRoomsPerServer: app.cfg.Explore.MaxRoomsPerServer,
		Concurrency:       app.cfg.Explore.Concurrency,
		RequestTimeout:    app.cfg.Explore.RequestTimeout.Get(),
	}
	if exploreMaxServers > 0 {
		limits.MaxServers = exploreMaxServers
	}
	if exploreMaxRooms > 0 {
		limits.MaxRoomsPerServer = exploreMaxRooms
	}
	if exploreConcurrency > 0 {
		limits.Concurrency = exploreConcurrency
	}
	if exploreTimeout > 0 {
		limits.RequestTimeout = exploreTimeout
	}

	f := frontier.New(app.log)
	seeds := args
	if len(seeds) == 0 {
		seeds = []string{t.Client().UserID.Homeserver()}
	}
	for _, seed := range seeds {
		f.Add(seed)
	}
	if f.Len() == 0 {
		return fmt.Errorf("no valid servers to start from")
	}

	g := matrixgraph.New()
	explorer := explore.New(f, federation.NewClient(app.log), t, g, limits, app.log)
	stats, err := explorer.Run(ctx)
	if err != nil {
		return err
	}
	app.log.Info().
		Int("visited", stats.ServersVisited).
		Int("reachable", stats.ServersReachable).
		Int("rooms", stats.RoomsSeen).
		Int("discovered", stats.ServersDiscovered).
		Msg("Finished exploring")

	if err := g.Anonymized().Save(app.cfg.GraphDir); err != nil {
		return err
	}
	app.log.Info().Str("dir", app.cfg.GraphDir).Msg("Stored network graph")

	fmt.Printf("Visited %d servers (%d reachable) and saw %d public rooms.\n",
		stats.ServersVisited, stats.ServersReachable, stats.RoomsSeen)
	return nil
}

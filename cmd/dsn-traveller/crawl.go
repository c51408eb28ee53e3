// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"github.com/spf13/cobra"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
	"github.com/florianjacob/dsn-traveller/pkg/report"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "visit all joined rooms and store the network graph",
	RunE:  runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	t, err := app.traveller(ctx)
	if err != nil {
		return err
	}

	g := matrixgraph.New()
	stats, err := t.Crawl(ctx, g)
	if err != nil {
		return err
	}
	app.log.Info().
		Int("rooms", stats.Rooms).
		Int("users", stats.Users).
		Int("servers", stats.Servers).
		Msg("Queried room membership")

	// Re-salt the pseudonyms before anything touches disk.
	if err := g.Anonymized().Save(app.cfg.GraphDir); err != nil {
		return err
	}
	app.log.Info().Str("dir", app.cfg.GraphDir).Msg("Stored network graph")

	return app.sendToControlRoom(ctx, t,
		report.CrawlMessage(stats.Rooms, stats.Servers, stats.Users))
}

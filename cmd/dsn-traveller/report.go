// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
	"github.com/florianjacob/dsn-traveller/pkg/report"
)

var (
	reportJSON bool
	reportSend bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "summarize the stored network graph",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the summary as JSON instead of the styled view")
	reportCmd.Flags().BoolVar(&reportSend, "send", false, "also post the headline numbers to the control room")
}

func runReport(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	g, err := matrixgraph.Load(app.cfg.GraphDir)
	if err != nil {
		return err
	}
	s := report.Summarize(g)

	if reportJSON {
		if err := s.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		fmt.Println(report.Render(s))
	}

	if reportSend {
		ctx := cmd.Context()
		t, err := app.traveller(ctx)
		if err != nil {
			return err
		}
		return app.sendToControlRoom(ctx, t, report.CrawlMessage(s.Rooms, s.Servers, s.Users))
	}
	return nil
}

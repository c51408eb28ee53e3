// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/florianjacob/dsn-traveller/pkg/report"
)

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "leave all previously-joined rooms",
	RunE:  runLeave,
}

func init() {
	rootCmd.AddCommand(leaveCmd)
}

func runLeave(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	t, err := app.traveller(ctx)
	if err != nil {
		return err
	}

	controlRoom, err := t.ResolveRoom(ctx, app.cfg.ControlRoom)
	if err != nil {
		return fmt.Errorf("could not resolve control room: %w", err)
	}
	left, joined, err := t.Leave(ctx, controlRoom)
	if err != nil {
		return err
	}

	message := report.LeaveMessage(left, joined)
	if _, err := t.SendReport(ctx, controlRoom, message); err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

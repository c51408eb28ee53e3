// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/florianjacob/dsn-traveller/pkg/report"
)

var joinStdin bool

var joinCmd = &cobra.Command{
	Use:   "join [room aliases...]",
	Short: "join the given rooms and follow pending invites",
	RunE:  runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().BoolVar(&joinStdin, "stdin", false, "read room aliases from stdin instead of positional arguments, one alias per line")
}

func runJoin(cmd *cobra.Command, args []string) error {
	if joinStdin && len(args) > 0 {
		return fmt.Errorf("--stdin and positional room aliases are mutually exclusive")
	}
	list := args
	if joinStdin {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				list = append(list, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read room aliases: %w", err)
		}
	}
	aliases := make([]id.RoomAlias, 0, len(list))
	for _, room := range list {
		if !strings.HasPrefix(room, "#") {
			return fmt.Errorf("invalid room alias: %s", room)
		}
		aliases = append(aliases, id.RoomAlias(room))
	}

	app, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	t, err := app.traveller(ctx)
	if err != nil {
		return err
	}

	stats, err := t.JoinRooms(ctx, aliases)
	if err != nil {
		return err
	}
	app.log.Info().
		Int("joined", stats.Joined).
		Int("invites", stats.InvitesFollowed).
		Msg("Finished joining rooms")

	return app.sendToControlRoom(ctx, t,
		report.JoinMessage(stats.Joined, stats.InvitesFollowed, stats.Left))
}

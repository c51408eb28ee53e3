// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"fmt"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
)

// CrawlStats summarizes what a membership crawl saw.
type CrawlStats struct {
	Rooms   int
	Users   int
	Servers int
}

// Crawl visits every joined room and records the room, its members and
// their servers into the graph: user-server, user-room and server-room
// edges, the same structure for every room. Member queries only hit the
// own homeserver; failures on single rooms are logged and skipped.
func (t *Traveller) Crawl(ctx context.Context, g *matrixgraph.Graph) (CrawlStats, error) {
	resp, err := t.mx.JoinedRooms(ctx)
	if err != nil {
		return CrawlStats{}, fmt.Errorf("failed to list joined rooms: %w", err)
	}

	total := len(resp.JoinedRooms)
	for i, roomID := range resp.JoinedRooms {
		if i > 0 {
			if err := pause(ctx, t.crawlDelay); err != nil {
				return statsOf(g), err
			}
		}

		members, err := t.mx.JoinedMembers(ctx, roomID)
		if err != nil {
			t.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Could not fetch room members")
			continue
		}

		roomNode := g.Room(roomID.String())
		for userID := range members.Joined {
			if t.skipMember(userID) {
				continue
			}
			server := userID.Homeserver()
			if server == "" {
				t.log.Warn().Str("user_id", userID.String()).Msg("Skipping user ID without server part")
				continue
			}
			userNode := g.User(userID.String())
			serverNode := g.Server(server)
			g.Connect(userNode, serverNode)
			g.Connect(userNode, roomNode)
			g.Connect(serverNode, roomNode)
		}
		t.log.Info().Int("done", i+1).Int("total", total).Msg("Crawled room")
	}
	return statsOf(g), nil
}

func statsOf(g *matrixgraph.Graph) CrawlStats {
	counts := g.Counts()
	return CrawlStats{Rooms: counts.Rooms, Users: counts.Users, Servers: counts.Servers}
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// DirectoryEntry is one room from a server's public room directory.
type DirectoryEntry struct {
	RoomID         id.RoomID
	CanonicalAlias id.RoomAlias
	Name           string
	Members        int
}

// PublicRooms lists up to limit rooms from the public directory of the
// given server. The listing is requested over federation by the bot's own
// homeserver, so remote servers only ever see a server-to-server query.
// The client has no method for this endpoint, so the request is built by
// hand.
func (t *Traveller) PublicRooms(ctx context.Context, server string, limit int) ([]DirectoryEntry, error) {
	query := make(map[string]string, 2)
	if server != "" {
		query["server"] = server
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	reqURL := t.mx.BuildURLWithQuery(mautrix.ClientURLPath{"v3", "publicRooms"}, query)

	var resp mautrix.RespPublicRooms
	if _, err := t.mx.MakeRequest(ctx, http.MethodGet, reqURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch public rooms of %s: %w", server, err)
	}
	entries := make([]DirectoryEntry, 0, len(resp.Chunk))
	for _, room := range resp.Chunk {
		entries = append(entries, DirectoryEntry{
			RoomID:         room.RoomID,
			CanonicalAlias: room.CanonicalAlias,
			Name:           room.Name,
			Members:        room.NumJoinedMembers,
		})
	}
	return entries, nil
}

// ServerOfAlias extracts the server name from a room alias, empty when the
// alias has no server part.
func ServerOfAlias(alias id.RoomAlias) string {
	return serverOfAlias(alias)
}

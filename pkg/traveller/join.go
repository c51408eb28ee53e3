// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"fmt"
	"sort"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// JoinStats summarizes a join run.
type JoinStats struct {
	// Joined counts rooms newly joined from the given alias list.
	Joined int
	// InvitesFollowed counts pending invites that were accepted.
	InvitesFollowed int
	// Left counts rooms the account has left or was kicked or banned
	// from; those are not rejoined.
	Left int
}

// JoinRooms follows all pending invites and then joins the given aliases,
// skipping rooms the account already joined, is invited to, or was kicked
// from. Individual join failures are logged and skipped; only the initial
// sync can fail the whole run.
func (t *Traveller) JoinRooms(ctx context.Context, aliases []id.RoomAlias) (JoinStats, error) {
	var stats JoinStats

	t.log.Info().Msg("Syncing account state")
	resp, err := t.syncState(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to sync account state: %w", err)
	}
	stats.Left = len(resp.Rooms.Leave)
	t.log.Info().
		Int("joined", len(resp.Rooms.Join)).
		Int("invited", len(resp.Rooms.Invite)).
		Int("left", len(resp.Rooms.Leave)).
		Msg("Current account state")

	if stats.InvitesFollowed, err = t.followInvites(ctx, resp.Rooms.Invite); err != nil {
		return stats, err
	}

	if len(aliases) == 0 {
		t.log.Info().Msg("No new rooms given to join")
		return stats, nil
	}
	if stats.InvitesFollowed > 0 {
		// keep the join pacing across the invite/alias boundary
		if err := pause(ctx, t.joinDelay); err != nil {
			return stats, err
		}
	}

	joined := roomIDSet(resp.Rooms.Join)
	invited := roomIDSet(resp.Rooms.Invite)
	left := roomIDSet(resp.Rooms.Leave)

	for i, alias := range aliases {
		if t.skipRoomAlias(alias) {
			t.log.Info().Str("alias", alias.String()).Msg("Ignoring room")
			continue
		}
		roomID, err := t.ResolveRoom(ctx, alias.String())
		if err != nil {
			t.log.Warn().Err(err).Str("alias", alias.String()).Msg("Could not resolve room")
			continue
		}
		if _, ok := joined[roomID]; ok {
			t.log.Debug().Str("room_id", roomID.String()).Msg("Already joined")
			continue
		}
		if _, ok := invited[roomID]; ok {
			t.log.Debug().Str("room_id", roomID.String()).Msg("Invite already handled")
			continue
		}
		if _, ok := left[roomID]; ok {
			// was kicked or banned earlier, do not push back in
			t.log.Debug().Str("room_id", roomID.String()).Msg("Previously left, not rejoining")
			continue
		}

		if _, err := t.mx.JoinRoom(ctx, alias.String(), nil); err != nil {
			t.log.Warn().Err(err).Str("alias", alias.String()).Msg("Error joining room")
		} else {
			stats.Joined++
			t.log.Info().
				Str("alias", alias.String()).
				Int("done", stats.Joined).
				Int("total", len(aliases)).
				Msg("Joined room")
		}
		if i < len(aliases)-1 {
			if err := pause(ctx, t.joinDelay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// followInvites accepts each pending invite, preferring the canonical
// alias from the stripped invite state so the ignore pattern applies, and
// falling back to joining by room ID when no alias is known. That fallback
// covers e.g. direct invites from IRC bridge service bots.
func (t *Traveller) followInvites(ctx context.Context, invites map[id.RoomID]*mautrix.SyncInvitedRoom) (int, error) {
	roomIDs := make([]id.RoomID, 0, len(invites))
	for roomID := range invites {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Slice(roomIDs, func(i, j int) bool { return roomIDs[i] < roomIDs[j] })

	followed := 0
	for i, roomID := range roomIDs {
		if i > 0 {
			if err := pause(ctx, t.joinDelay); err != nil {
				return followed, err
			}
		}

		alias := canonicalAliasOfInvite(invites[roomID])
		if alias != "" && t.skipRoomAlias(alias) {
			t.log.Info().Str("alias", alias.String()).Msg("Ignoring invite")
			continue
		}

		var err error
		if alias != "" {
			_, err = t.mx.JoinRoom(ctx, alias.String(), nil)
		} else {
			_, err = t.mx.JoinRoomByID(ctx, roomID)
		}
		if err != nil {
			t.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Error following invite")
		} else {
			followed++
			t.log.Info().
				Str("room_id", roomID.String()).
				Int("done", followed).
				Int("total", len(invites)).
				Msg("Followed invite")
		}
	}
	return followed, nil
}

// syncState performs a one-shot sync stripped down to room state, the
// minimum needed to learn current memberships and pending invites.
func (t *Traveller) syncState(ctx context.Context) (*mautrix.RespSync, error) {
	nothing := &mautrix.FilterPart{NotTypes: []event.Type{event.NewEventType("*")}}
	filter := &mautrix.Filter{
		AccountData: nothing,
		Presence:    nothing,
		Room: &mautrix.RoomFilter{
			IncludeLeave: true,
			AccountData:  nothing,
			Ephemeral:    nothing,
			Timeline:     nothing,
			State: &mautrix.FilterPart{
				Types: []event.Type{event.StateCanonicalAlias},
			},
		},
	}
	created, err := t.mx.CreateFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync filter: %w", err)
	}
	return t.mx.SyncRequest(ctx, 0, "", created.FilterID, true, event.PresenceOffline)
}

func canonicalAliasOfInvite(invite *mautrix.SyncInvitedRoom) id.RoomAlias {
	for _, evt := range invite.State.Events {
		if evt.Type != event.StateCanonicalAlias {
			continue
		}
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			continue
		}
		if content, ok := evt.Content.Parsed.(*event.CanonicalAliasEventContent); ok {
			return content.Alias
		}
	}
	return ""
}

func roomIDSet[T any](rooms map[id.RoomID]T) map[id.RoomID]struct{} {
	set := make(map[id.RoomID]struct{}, len(rooms))
	for roomID := range rooms {
		set[roomID] = struct{}{}
	}
	return set
}

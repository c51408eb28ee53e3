// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/id"
)

// Leave departs from every joined room except the control room. Rooms are
// both left and forgotten, so the homeserver can drop out of their
// federation entirely and a later join run does not see them as
// kicked-from. Per-room failures are logged and skipped.
func (t *Traveller) Leave(ctx context.Context, controlRoom id.RoomID) (left, joined int, err error) {
	resp, err := t.mx.JoinedRooms(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list joined rooms: %w", err)
	}

	joined = len(resp.JoinedRooms)
	for _, roomID := range resp.JoinedRooms {
		if roomID == controlRoom {
			joined--
			continue
		}
		if err := pause(ctx, t.crawlDelay); err != nil {
			return left, joined, err
		}
		if err := t.leaveAndForget(ctx, roomID); err != nil {
			t.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Error leaving room")
			continue
		}
		left++
		t.log.Info().
			Str("room_id", roomID.String()).
			Int("done", left).
			Int("total", joined).
			Msg("Left room")
	}
	return left, joined, nil
}

func (t *Traveller) leaveAndForget(ctx context.Context, roomID id.RoomID) error {
	if _, err := t.mx.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave failed: %w", err)
	}
	if _, err := t.mx.ForgetRoom(ctx, roomID); err != nil {
		return fmt.Errorf("forget failed: %w", err)
	}
	return nil
}

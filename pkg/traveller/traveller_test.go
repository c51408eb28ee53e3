// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

// TestLogin verifies password login returns a client with stored
// credentials and the session to persist for later runs.
func TestLogin(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)

	client, session, err := Login(context.Background(), fake.Server.URL, "traveller", "hunter2", zerolog.Nop())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !fake.CalledPath("/login") {
		t.Fatal("expected a login request")
	}
	if session.AccessToken != "syt_test" {
		t.Errorf("unexpected access token %q", session.AccessToken)
	}
	if session.UserID != testUserID {
		t.Errorf("unexpected user ID %q", session.UserID)
	}
	if session.DeviceID != "TESTDEV" {
		t.Errorf("unexpected device ID %q", session.DeviceID)
	}
	if client.UserID != testUserID || client.AccessToken != "syt_test" {
		t.Error("client did not store the credentials from the login response")
	}
}

// TestNewMatrixClient verifies a client built from a stored session reuses
// its credentials without hitting the homeserver.
func TestNewMatrixClient(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)

	client, session, err := Login(context.Background(), fake.Server.URL, "traveller", "hunter2", zerolog.Nop())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	restored, err := NewMatrixClient(fake.Server.URL, session, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMatrixClient failed: %v", err)
	}
	if restored.UserID != client.UserID {
		t.Errorf("restored client user ID %q does not match login %q", restored.UserID, client.UserID)
	}
	if restored.AccessToken != session.AccessToken || restored.DeviceID != session.DeviceID {
		t.Error("restored client does not carry the stored session credentials")
	}
	if calls := fake.CallCount("/login"); calls != 1 {
		t.Errorf("expected a single login request, got %d", calls)
	}
}

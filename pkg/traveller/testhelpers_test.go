// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

const testUserID = id.UserID("@traveller:example.org")

// fakeHS simulates the slice of the client-server API the traveller uses.
// It records calls and serves canned data from its public maps.
type fakeHS struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []string

	// JoinedRooms is returned from the joined_rooms endpoint.
	JoinedRooms []id.RoomID
	// Members maps room ID to its joined members.
	Members map[id.RoomID][]id.UserID
	// Aliases maps room alias to room ID for directory lookups.
	Aliases map[id.RoomAlias]id.RoomID
	// SyncBody, when set, is served verbatim from /sync.
	SyncBody string
	// PublicRoomsByServer maps a server name to its directory listing.
	PublicRoomsByServer map[string][]map[string]any
	// FailPaths maps path substrings to a status code to return.
	FailPaths map[string]int
}

func newFakeHS(t *testing.T) *fakeHS {
	t.Helper()
	f := &fakeHS{
		Members:             make(map[id.RoomID][]id.UserID),
		Aliases:             make(map[id.RoomAlias]id.RoomID),
		PublicRoomsByServer: make(map[string][]map[string]any),
		FailPaths:           make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeHS) record(method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+path)
}

// CalledPath reports whether any recorded call contains the substring.
func (f *fakeHS) CalledPath(fragment string) bool {
	return f.CallCount(fragment) > 0
}

// CallCount counts recorded calls containing the substring.
func (f *fakeHS) CallCount(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, fragment) {
			n++
		}
	}
	return n
}

func (f *fakeHS) handler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	f.record(r.Method, path)

	for fragment, code := range f.FailPaths {
		if strings.Contains(path, fragment) {
			writeError(w, code)
			return
		}
	}

	switch {
	case path == "/_matrix/client/v3/login":
		writeOK(w, map[string]any{
			"access_token": "syt_test",
			"user_id":      testUserID,
			"device_id":    "TESTDEV",
		})
	case path == "/_matrix/client/v3/joined_rooms":
		writeOK(w, map[string]any{"joined_rooms": f.JoinedRooms})
	case strings.HasSuffix(path, "/joined_members"):
		roomID := pathSegment(path, "rooms")
		members := make(map[id.UserID]map[string]any)
		for _, userID := range f.Members[id.RoomID(roomID)] {
			members[userID] = map[string]any{}
		}
		writeOK(w, map[string]any{"joined": members})
	case strings.Contains(path, "/directory/room/"):
		alias := id.RoomAlias(path[strings.Index(path, "/directory/room/")+len("/directory/room/"):])
		roomID, ok := f.Aliases[alias]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errcode":"M_NOT_FOUND","error":"Room alias not found"}`))
			return
		}
		writeOK(w, map[string]any{"room_id": roomID, "servers": []string{"example.org"}})
	case strings.Contains(path, "/join/") || strings.HasSuffix(path, "/join"):
		writeOK(w, map[string]any{"room_id": "!joined:example.org"})
	case strings.HasSuffix(path, "/leave"), strings.HasSuffix(path, "/forget"):
		writeOK(w, map[string]any{})
	case strings.Contains(path, "/send/"):
		writeOK(w, map[string]any{"event_id": "$event1"})
	case strings.Contains(path, "/filter"):
		writeOK(w, map[string]any{"filter_id": "1"})
	case path == "/_matrix/client/v3/sync":
		w.Header().Set("Content-Type", "application/json")
		body := f.SyncBody
		if body == "" {
			body = `{"next_batch":"s1","rooms":{"join":{},"invite":{},"leave":{}}}`
		}
		_, _ = w.Write([]byte(body))
	case path == "/_matrix/client/v3/publicRooms":
		chunk := f.PublicRoomsByServer[r.URL.Query().Get("server")]
		if chunk == nil {
			chunk = []map[string]any{}
		}
		writeOK(w, map[string]any{"chunk": chunk, "total_room_count_estimate": len(chunk)})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errcode":"M_UNRECOGNIZED","error":"Unknown endpoint"}`))
	}
}

// pathSegment returns the path element following the given one.
func pathSegment(path, after string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == after && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func writeOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"errcode":"M_UNKNOWN","error":"fake failure %d"}`, code)
}

func newTestTraveller(t *testing.T, f *fakeHS, opts Options) *Traveller {
	t.Helper()
	client, err := mautrix.NewClient(f.Server.URL, testUserID, "syt_test")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	client.Log = zerolog.Nop()
	tr, err := New(client, zerolog.Nop(), opts)
	if err != nil {
		t.Fatalf("failed to create traveller: %v", err)
	}
	return tr
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package federation

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/crypto/canonicaljson"
)

// fakeFed simulates the public federation surface of a single homeserver:
// well-known, version and key endpoints. It records calls and can be told
// to fail specific paths.
type fakeFed struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls map[string]int

	// WellKnownTarget, when set, is served as the m.server delegation.
	WellKnownTarget string
	// KeyBody overrides the generated key response when non-nil.
	KeyBody []byte
	// FailPaths maps path prefixes to a status code to return.
	FailPaths map[string]int
	// FailCount makes a failing path recover after this many errors.
	FailCount map[string]int

	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	serverName string
	software   string
	version    string
}

func newFakeFed(t *testing.T) *fakeFed {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	f := &fakeFed{
		calls:     make(map[string]int),
		FailPaths: make(map[string]int),
		FailCount: make(map[string]int),
		priv:      priv,
		pub:       pub,
		software:  "Synapse",
		version:   "1.98.0",
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	// The fake's Matrix server name is its listener address, so probes of
	// that name hit this server directly.
	f.serverName = strings.TrimPrefix(f.Server.URL, "http://")
	t.Cleanup(f.Server.Close)
	return f
}

// Name returns the fake's Matrix server name (host:port).
func (f *fakeFed) Name() string {
	return f.serverName
}

func (f *fakeFed) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFed) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	for prefix, code := range f.FailPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			if remaining, limited := f.FailCount[prefix]; limited && remaining <= 0 {
				break
			}
			if _, limited := f.FailCount[prefix]; limited {
				f.FailCount[prefix]--
			}
			f.mu.Unlock()
			if code == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			w.WriteHeader(code)
			return
		}
	}
	f.mu.Unlock()

	switch r.URL.Path {
	case "/.well-known/matrix/server":
		if f.WellKnownTarget == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]string{"m.server": f.WellKnownTarget})
	case "/_matrix/federation/v1/version":
		writeJSON(w, map[string]any{
			"server": map[string]string{"name": f.software, "version": f.version},
		})
	case "/_matrix/key/v2/server":
		if f.KeyBody != nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(f.KeyBody)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(f.signedKeyResponse(f.serverName))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// signedKeyResponse builds a key/v2/server document self-signed with the
// fake's ed25519 key.
func (f *fakeFed) signedKeyResponse(serverName string) []byte {
	payload := map[string]any{
		"server_name":    serverName,
		"valid_until_ts": time.Now().Add(24 * time.Hour).UnixMilli(),
		"verify_keys": map[string]any{
			"ed25519:test": map[string]string{
				"key": base64.RawStdEncoding.EncodeToString(f.pub),
			},
		},
	}
	unsigned, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	canonical, err := canonicaljson.CanonicalJSON(unsigned)
	if err != nil {
		panic(err)
	}
	sig := ed25519.Sign(f.priv, canonical)
	payload["signatures"] = map[string]any{
		serverName: map[string]string{
			"ed25519:test": base64.RawStdEncoding.EncodeToString(sig),
		},
	}
	signed, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return signed
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient() *Client {
	c := NewClient(zerolog.Nop())
	c.Insecure = true
	c.RetryBackoff = time.Millisecond
	return c
}

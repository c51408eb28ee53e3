// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package federation

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"maunium.net/go/mautrix/crypto/canonicaljson"
)

type serverKeyResponse struct {
	ServerName   string `json:"server_name"`
	ValidUntilTS int64  `json:"valid_until_ts"`
	VerifyKeys   map[string]struct {
		Key string `json:"key"`
	} `json:"verify_keys"`
	Signatures map[string]map[string]string `json:"signatures"`
}

// fetchServerKeys downloads /_matrix/key/v2/server and verifies the
// response's self-signatures. Every advertised verify key must have signed
// the response. Returns the verified key IDs and the key expiry.
func (c *Client) fetchServerKeys(ctx context.Context, host, server string) ([]string, time.Time, error) {
	raw, err := c.getRaw(ctx, host, "/_matrix/key/v2/server")
	if err != nil {
		return nil, time.Time{}, err
	}
	return verifyServerKeys(raw, server)
}

func verifyServerKeys(raw []byte, server string) ([]string, time.Time, error) {
	var resp serverKeyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse key response: %w", err)
	}
	if resp.ServerName != server {
		return nil, time.Time{}, fmt.Errorf("key response is for %q, expected %q", resp.ServerName, server)
	}
	if len(resp.VerifyKeys) == 0 {
		return nil, time.Time{}, fmt.Errorf("server %s advertises no verify keys", server)
	}

	signed, err := signedPayload(raw)
	if err != nil {
		return nil, time.Time{}, err
	}

	keyIDs := make([]string, 0, len(resp.VerifyKeys))
	for keyID, verifyKey := range resp.VerifyKeys {
		if !strings.HasPrefix(keyID, "ed25519:") {
			continue
		}
		pub, err := base64.RawStdEncoding.DecodeString(verifyKey.Key)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, time.Time{}, fmt.Errorf("invalid public key %s", keyID)
		}
		sigB64, ok := resp.Signatures[resp.ServerName][keyID]
		if !ok {
			return nil, time.Time{}, fmt.Errorf("missing self-signature for key %s", keyID)
		}
		sig, err := base64.RawStdEncoding.DecodeString(sigB64)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return nil, time.Time{}, fmt.Errorf("invalid signature for key %s", keyID)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), signed, sig) {
			return nil, time.Time{}, fmt.Errorf("self-signature check failed for key %s", keyID)
		}
		keyIDs = append(keyIDs, keyID)
	}
	if len(keyIDs) == 0 {
		return nil, time.Time{}, fmt.Errorf("server %s has no ed25519 verify keys", server)
	}
	sort.Strings(keyIDs)
	return keyIDs, time.UnixMilli(resp.ValidUntilTS).UTC(), nil
}

// signedPayload strips the signatures and unsigned fields and reduces the
// rest to Matrix canonical JSON, the exact bytes the server signed.
func signedPayload(raw []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse key response: %w", err)
	}
	delete(obj, "signatures")
	delete(obj, "unsigned")
	stripped, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return canonicaljson.CanonicalJSON(stripped)
}

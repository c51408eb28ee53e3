// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

// Session is the stored homeserver login, written after the first
// interactive login so later runs reuse the access token.
type Session struct {
	AccessToken string      `yaml:"access_token"`
	UserID      id.UserID   `yaml:"user_id"`
	DeviceID    id.DeviceID `yaml:"device_id"`
}

// LoadSession reads a stored session. A missing file is reported as-is so
// callers can fall back to interactive login.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if session.AccessToken == "" || session.UserID == "" {
		return nil, fmt.Errorf("session in %s is incomplete", path)
	}
	return &session, nil
}

// Save writes the session with owner-only permissions; it contains the
// access token.
func (s *Session) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

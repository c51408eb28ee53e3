// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package traveller drives the bot's own homeserver account: joining the
// rooms it is told about or invited to, crawling the membership of every
// joined room into the network graph, reporting to the control room, and
// eventually departing from everything again.
//
// All room operations are paced with configurable delays. Joins cause
// federation requests on the homeserver, which other servers rate limit
// aggressively; membership queries only hit the own homeserver and can run
// much tighter.
package traveller

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/florianjacob/dsn-traveller/pkg/config"
)

// DefaultIgnoreRoomPattern skips rooms that mirror twitter timelines. The
// users in those rooms are display-only and never act on Matrix, unlike
// bridged IRC or Discord users, which stay in the graph.
const DefaultIgnoreRoomPattern = `^#twitter_#`

// DefaultIgnoreMemberPattern leaves out known observer bots, plus the
// servers that asked to be excluded from recording as a whole. The bot's
// own account is always excluded on top of this.
const DefaultIgnoreMemberPattern = `^(@voyager:t2bot\.io|@.*:weho\.st|@.*:disroot\.org)$`

// Options tunes a Traveller. Zero values mean no pacing and no extra
// ignore patterns.
type Options struct {
	JoinDelay  time.Duration
	CrawlDelay time.Duration
	// IgnoreRooms is a regexp matched against room aliases to skip.
	IgnoreRooms string
	// IgnoreMembers is a regexp matched against user IDs to leave out of
	// the graph, e.g. observer bots or servers that opted out of being
	// recorded. The bot's own account is always left out.
	IgnoreMembers string
}

// Traveller wraps an authenticated Matrix client with the travelling
// operations.
type Traveller struct {
	mx            *mautrix.Client
	log           zerolog.Logger
	joinDelay     time.Duration
	crawlDelay    time.Duration
	ignoreRooms   *regexp.Regexp
	ignoreMembers *regexp.Regexp
}

// New wraps an authenticated client.
func New(client *mautrix.Client, log zerolog.Logger, opts Options) (*Traveller, error) {
	t := &Traveller{
		mx:         client,
		log:        log.With().Str("component", "traveller").Logger(),
		joinDelay:  opts.JoinDelay,
		crawlDelay: opts.CrawlDelay,
	}
	var err error
	if opts.IgnoreRooms != "" {
		if t.ignoreRooms, err = regexp.Compile(opts.IgnoreRooms); err != nil {
			return nil, fmt.Errorf("invalid room ignore pattern: %w", err)
		}
	}
	if opts.IgnoreMembers != "" {
		if t.ignoreMembers, err = regexp.Compile(opts.IgnoreMembers); err != nil {
			return nil, fmt.Errorf("invalid member ignore pattern: %w", err)
		}
	}
	return t, nil
}

// Client returns the underlying Matrix client.
func (t *Traveller) Client() *mautrix.Client {
	return t.mx
}

// NewMatrixClient builds a client from a stored session.
func NewMatrixClient(homeserverURL string, session *config.Session, log zerolog.Logger) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(homeserverURL, session.UserID, session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.DeviceID = session.DeviceID
	client.Log = log
	return client, nil
}

// Login performs a password login and returns the client together with the
// session to store for later runs.
func Login(ctx context.Context, homeserverURL, username, password string, log zerolog.Logger) (*mautrix.Client, *config.Session, error) {
	client, err := mautrix.NewClient(homeserverURL, "", "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Log = log

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	resp, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: username,
		},
		Password:                 password,
		InitialDeviceDisplayName: fmt.Sprintf("dsn-traveller on %s", hostname),
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}
	session := &config.Session{
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID,
		DeviceID:    resp.DeviceID,
	}
	return client, session, nil
}

// ResolveRoom turns a room alias into a room ID, passing room IDs through.
func (t *Traveller) ResolveRoom(ctx context.Context, idOrAlias string) (id.RoomID, error) {
	if !strings.HasPrefix(idOrAlias, "#") {
		return id.RoomID(idOrAlias), nil
	}
	resp, err := t.mx.ResolveAlias(ctx, id.RoomAlias(idOrAlias))
	if err != nil {
		return "", fmt.Errorf("failed to resolve alias %s: %w", idOrAlias, err)
	}
	return resp.RoomID, nil
}

// SendReport posts a text message to the given room, normally the control
// room.
func (t *Traveller) SendReport(ctx context.Context, room id.RoomID, message string) (id.EventID, error) {
	resp, err := t.mx.SendText(ctx, room, message)
	if err != nil {
		return "", fmt.Errorf("failed to send report: %w", err)
	}
	return resp.EventID, nil
}

func (t *Traveller) skipMember(userID id.UserID) bool {
	if userID == t.mx.UserID {
		return true
	}
	return t.ignoreMembers != nil && t.ignoreMembers.MatchString(userID.String())
}

func (t *Traveller) skipRoomAlias(alias id.RoomAlias) bool {
	return t.ignoreRooms != nil && t.ignoreRooms.MatchString(alias.String())
}

// pause sleeps for the given delay unless the context ends first.
func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// serverOfAlias extracts the server part of a room alias.
func serverOfAlias(alias id.RoomAlias) string {
	_, server, found := strings.Cut(alias.String(), ":")
	if !found {
		return ""
	}
	return server
}

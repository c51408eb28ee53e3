// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"

	"github.com/florianjacob/dsn-traveller/pkg/config"
	"github.com/florianjacob/dsn-traveller/pkg/traveller"
)

// app bundles what every subcommand needs: the validated configuration and
// the compiled logger.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

// loadApp reads the configuration, falling back to an interactive setup on
// the first run.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if cfg, err = setupConfig(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	if graphDir != "" {
		cfg.GraphDir = graphDir
	}
	if logLevel != "" {
		lvl, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		cfg.Logging.MinLevel = &lvl
	}
	log, err := cfg.CompileLogger()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

// traveller builds the authenticated Matrix side, logging in interactively
// when no session is stored yet.
func (a *app) traveller(ctx context.Context) (*traveller.Traveller, error) {
	var client *mautrix.Client
	session, err := config.LoadSession(sessionPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if client, session, err = interactiveLogin(ctx, a); err != nil {
			return nil, err
		}
		if err = session.Save(sessionPath); err != nil {
			return nil, err
		}
		fmt.Fprintln(os.Stderr, "Logged in.")
	case err != nil:
		return nil, err
	default:
		if client, err = traveller.NewMatrixClient(a.cfg.HomeserverURL, session, a.log); err != nil {
			return nil, err
		}
	}

	opts := traveller.Options{
		JoinDelay:     a.cfg.Crawl.JoinDelay.Get(),
		CrawlDelay:    a.cfg.Crawl.CrawlDelay.Get(),
		IgnoreRooms:   a.cfg.Crawl.IgnoreRooms,
		IgnoreMembers: a.cfg.Crawl.IgnoreMembers,
	}
	if opts.IgnoreRooms == "" {
		opts.IgnoreRooms = traveller.DefaultIgnoreRoomPattern
	}
	if opts.IgnoreMembers == "" {
		opts.IgnoreMembers = traveller.DefaultIgnoreMemberPattern
	}
	return traveller.New(client, a.log, opts)
}

// sendToControlRoom resolves the configured control room and posts the
// message there, echoing it to stdout as well.
func (a *app) sendToControlRoom(ctx context.Context, t *traveller.Traveller, message string) error {
	roomID, err := t.ResolveRoom(ctx, a.cfg.ControlRoom)
	if err != nil {
		return fmt.Errorf("could not resolve control room: %w", err)
	}
	if _, err := t.SendReport(ctx, roomID, message); err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func setupConfig() (*config.Config, error) {
	fmt.Fprintf(os.Stderr, "No configuration found at %s, creating one.\n", configPath)
	cfg := config.Default()
	var err error
	if cfg.HomeserverURL, err = promptLine("homeserver URL"); err != nil {
		return nil, err
	}
	if cfg.ControlRoom, err = promptLine("control room (alias or room ID)"); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(configPath); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Configuration written to %s.\n", configPath)
	return cfg, nil
}

func interactiveLogin(ctx context.Context, a *app) (*mautrix.Client, *config.Session, error) {
	fmt.Fprintf(os.Stderr, "No stored session found at %s, logging in.\n", sessionPath)
	username, err := promptLine("username")
	if err != nil {
		return nil, nil, err
	}
	password, err := promptLine("password")
	if err != nil {
		return nil, nil, err
	}
	return traveller.Login(ctx, a.cfg.HomeserverURL, username, password, a.log)
}

var stdin = bufio.NewReader(os.Stdin)

func promptLine(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

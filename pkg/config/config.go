// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the traveller's configuration and the stored
// homeserver session. Configuration problems are fatal at startup; nothing
// here is retried or papered over.
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Duration is a time.Duration that reads and writes as a string like
// "500ms" or "64s" in YAML.
type Duration time.Duration

func (d Duration) Get() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// CrawlConfig paces the homeserver-side room operations. The defaults keep
// well under typical federation rate limits; joining thousands of rooms is
// a multi-day affair on purpose.
type CrawlConfig struct {
	JoinDelay  Duration `yaml:"join_delay"`
	CrawlDelay Duration `yaml:"crawl_delay"`
	// IgnoreRooms and IgnoreMembers override the built-in skip patterns
	// for bridged display-only rooms and opted-out users. Empty means the
	// built-in defaults.
	IgnoreRooms   string `yaml:"ignore_rooms"`
	IgnoreMembers string `yaml:"ignore_members"`
}

// ExploreConfig bounds the federation traversal.
type ExploreConfig struct {
	MaxServers        int      `yaml:"max_servers"`
	MaxRoomsPerServer int      `yaml:"max_rooms_per_server"`
	Concurrency       int      `yaml:"concurrency"`
	RequestTimeout    Duration `yaml:"request_timeout"`
}

// Config is the traveller configuration, stored next to the binary as
// config.yaml.
type Config struct {
	HomeserverURL string `yaml:"homeserver_url"`
	// ControlRoom is the room ID or alias the bot reports its travels to.
	ControlRoom string            `yaml:"control_room"`
	GraphDir    string            `yaml:"graph_dir"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Explore     ExploreConfig     `yaml:"explore"`
	Logging     zeroconfig.Config `yaml:"logging"`
}

// Default returns the configuration used when a field is left empty.
func Default() *Config {
	return &Config{
		GraphDir: "graph",
		Crawl: CrawlConfig{
			JoinDelay:  Duration(64 * time.Second),
			CrawlDelay: Duration(500 * time.Millisecond),
		},
		Explore: ExploreConfig{
			MaxServers:        500,
			MaxRoomsPerServer: 200,
			Concurrency:       8,
			RequestTimeout:    Duration(30 * time.Second),
		},
	}
}

// Load reads and validates the configuration file. A missing file is
// reported as-is so callers can fall back to interactive setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	u, err := url.Parse(c.HomeserverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("homeserver_url %q is not a valid URL", c.HomeserverURL)
	}
	if c.ControlRoom == "" {
		return fmt.Errorf("control_room is not set")
	}
	if c.ControlRoom[0] != '!' && c.ControlRoom[0] != '#' {
		return fmt.Errorf("control_room %q is neither a room ID nor an alias", c.ControlRoom)
	}
	if c.GraphDir == "" {
		return fmt.Errorf("graph_dir is not set")
	}
	if c.Explore.Concurrency < 1 {
		return fmt.Errorf("explore.concurrency must be at least 1")
	}
	return nil
}

// CompileLogger builds the zerolog logger from the logging section,
// defaulting to colored stderr output when no writers are configured.
func (c *Config) CompileLogger() (zerolog.Logger, error) {
	logging := c.Logging
	if len(logging.Writers) == 0 {
		logging.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStderr,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}
	log, err := logging.Compile()
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to configure logging: %w", err)
	}
	return *log, nil
}

// WriteExample writes the annotated example configuration to path,
// refusing to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(ExampleConfig), 0o644)
}

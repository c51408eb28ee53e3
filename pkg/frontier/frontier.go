// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package frontier keeps the crawl's work queue: the servers still to be
// visited, deduplicated against everything already seen. The queue is
// breadth-first, so the traversal expands the network ring by ring from
// its starting points.
package frontier

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Frontier is a FIFO queue of server names with a seen/visited registry.
// A server name enters the queue at most once over the frontier's lifetime,
// no matter how often it is discovered. All methods are safe for concurrent
// use.
type Frontier struct {
	mu      sync.Mutex
	queue   []string
	seen    map[string]struct{}
	visited map[string]struct{}
	log     zerolog.Logger
}

// New returns an empty frontier.
func New(log zerolog.Logger) *Frontier {
	return &Frontier{
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
		log:     log.With().Str("component", "frontier").Logger(),
	}
}

// Add enqueues a server for visiting. Names already seen are ignored, and
// malformed names are dropped with a log line rather than failing the
// caller; a single bad identifier must not stop a crawl.
func (f *Frontier) Add(server string) bool {
	name, ok := normalizeServerName(server)
	if !ok {
		f.log.Warn().Str("server", server).Msg("Skipping malformed server name")
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[name]; dup {
		return false
	}
	f.seen[name] = struct{}{}
	f.queue = append(f.queue, name)
	return true
}

// Next dequeues the oldest pending server and marks it visited. The second
// return is false when the queue is empty.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return "", false
	}
	name := f.queue[0]
	f.queue = f.queue[1:]
	f.visited[name] = struct{}{}
	return name, true
}

// Drain dequeues up to max pending servers at once, marking them visited.
// A max of zero or less drains the whole queue.
func (f *Frontier) Drain(max int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queue)
	if max > 0 && max < n {
		n = max
	}
	batch := make([]string, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	for _, name := range batch {
		f.visited[name] = struct{}{}
	}
	return batch
}

// Len reports how many servers are queued but not yet visited.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Visited reports how many servers have been handed out.
func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Seen reports whether the server has ever been enqueued.
func (f *Frontier) Seen(server string) bool {
	name, ok := normalizeServerName(server)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, found := f.seen[name]
	return found
}

// normalizeServerName validates a Matrix server name, hostname or IP
// literal with an optional port, and lowercases the host part.
func normalizeServerName(server string) (string, bool) {
	name := strings.TrimSpace(server)
	if name == "" || strings.ContainsAny(name, " \t/@#!?") {
		return "", false
	}

	host := name
	port := ""
	if h, p, err := net.SplitHostPort(name); err == nil {
		host, port = h, p
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return "", false
		}
	} else if strings.HasPrefix(name, "[") {
		// bracketed IPv6 literal without port, SplitHostPort rejects it
		host = strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
		if !strings.HasSuffix(name, "]") || net.ParseIP(host) == nil {
			return "", false
		}
	} else if strings.Count(name, ":") > 0 {
		return "", false
	}

	if host == "" {
		return "", false
	}
	if net.ParseIP(host) == nil && !validHostname(host) {
		return "", false
	}

	normalized := strings.ToLower(host)
	if strings.Contains(normalized, ":") {
		normalized = "[" + normalized + "]"
	}
	if port != "" {
		normalized += ":" + port
	}
	return normalized, true
}

func validHostname(host string) bool {
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-' && i > 0 && i < len(label)-1:
			default:
				return false
			}
		}
	}
	return true
}

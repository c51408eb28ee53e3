// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package explore walks the federation: it takes servers off the frontier,
// probes their federation surface, records them and their public rooms in
// the graph, and feeds every server discovered in room aliases back into
// the frontier, until the frontier drains or the budget is spent.
package explore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/florianjacob/dsn-traveller/pkg/federation"
	"github.com/florianjacob/dsn-traveller/pkg/frontier"
	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
	"github.com/florianjacob/dsn-traveller/pkg/traveller"
)

// Prober probes a single server's federation surface.
type Prober interface {
	Probe(ctx context.Context, server string) federation.ProbeResult
}

// Directory lists the public rooms of a server.
type Directory interface {
	PublicRooms(ctx context.Context, server string, limit int) ([]traveller.DirectoryEntry, error)
}

// Limits bounds a traversal. Zero values disable the respective bound,
// except Concurrency, which falls back to 1.
type Limits struct {
	MaxServers        int
	MaxRoomsPerServer int
	Concurrency       int
	RequestTimeout    time.Duration
}

// Stats summarizes a finished traversal.
type Stats struct {
	ServersVisited    int
	ServersReachable  int
	RoomsSeen         int
	ServersDiscovered int
}

// Explorer runs the traversal. Construct with New.
type Explorer struct {
	frontier  *frontier.Frontier
	prober    Prober
	directory Directory
	graph     *matrixgraph.Graph
	limits    Limits
	log       zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

func New(f *frontier.Frontier, p Prober, d Directory, g *matrixgraph.Graph, limits Limits, log zerolog.Logger) *Explorer {
	if limits.Concurrency < 1 {
		limits.Concurrency = 1
	}
	return &Explorer{
		frontier:  f,
		prober:    p,
		directory: d,
		graph:     g,
		limits:    limits,
		log:       log.With().Str("component", "explorer").Logger(),
	}
}

// Run drains the frontier in breadth-first waves with bounded concurrency.
// Per-server failures are recorded and skipped; Run only fails when the
// context ends.
func (e *Explorer) Run(ctx context.Context) (Stats, error) {
	for {
		if err := ctx.Err(); err != nil {
			return e.snapshot(), err
		}

		budget := 0
		if e.limits.MaxServers > 0 {
			budget = e.limits.MaxServers - e.frontier.Visited()
			if budget <= 0 {
				e.log.Info().Int("max_servers", e.limits.MaxServers).Msg("Server budget spent")
				break
			}
		}
		batch := e.frontier.Drain(budget)
		if len(batch) == 0 {
			break
		}
		e.log.Info().Int("batch", len(batch)).Int("queued", e.frontier.Len()).Msg("Visiting next wave")

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(e.limits.Concurrency)
		for _, server := range batch {
			server := server
			group.Go(func() error {
				e.visit(groupCtx, server)
				return groupCtx.Err()
			})
		}
		if err := group.Wait(); err != nil {
			return e.snapshot(), err
		}
	}
	return e.snapshot(), nil
}

func (e *Explorer) visit(ctx context.Context, server string) {
	probeCtx := ctx
	if e.limits.RequestTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, e.limits.RequestTimeout)
		defer cancel()
	}

	result := e.prober.Probe(probeCtx, server)
	e.graph.NoteServer(server, matrixgraph.ServerInfo{
		Reachable: result.Reachable,
		LastSeen:  result.ProbedAt,
		Software:  result.Software,
		Version:   result.Version,
		KeyIDs:    result.KeyIDs,
	})

	e.mu.Lock()
	e.stats.ServersVisited++
	if result.Reachable {
		e.stats.ServersReachable++
	}
	e.mu.Unlock()

	if !result.Reachable {
		e.log.Debug().Str("server", server).Str("error", result.Error).Msg("Server unreachable")
		return
	}

	entries, err := e.directory.PublicRooms(probeCtx, server, e.limits.MaxRoomsPerServer)
	if err != nil {
		e.log.Warn().Err(err).Str("server", server).Msg("Could not list public rooms")
		return
	}
	if e.limits.MaxRoomsPerServer > 0 && len(entries) > e.limits.MaxRoomsPerServer {
		entries = entries[:e.limits.MaxRoomsPerServer]
	}

	serverNode := e.graph.Server(server)
	rooms, discovered := 0, 0
	for _, entry := range entries {
		if entry.RoomID == "" {
			continue
		}
		roomNode := e.graph.Room(entry.RoomID.String())
		e.graph.Connect(serverNode, roomNode)
		rooms++

		if entry.CanonicalAlias == "" {
			continue
		}
		domain := traveller.ServerOfAlias(entry.CanonicalAlias)
		if domain != "" && e.frontier.Add(domain) {
			discovered++
		}
	}

	e.mu.Lock()
	e.stats.RoomsSeen += rooms
	e.stats.ServersDiscovered += discovered
	e.mu.Unlock()

	e.log.Info().
		Str("server", server).
		Int("rooms", rooms).
		Int("new_servers", discovered).
		Msg("Visited server")
}

func (e *Explorer) snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
